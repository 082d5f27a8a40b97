package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/sikshyahq/sikshya/apps/api/echo"
	"github.com/sikshyahq/sikshya/core/user"
	testutil "github.com/sikshyahq/sikshya/tests"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	pwd := "LokSewa@2026"
	usr := testutil.CreateUser(t, usrRepo, "Asha Gurung", "ashagrg", "asha@test.np", pwd, []string{user.RoleStudent}, true)
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.np", pwd, []string{user.RoleStudent}, false)

	login := func(uname, password string) ([]byte, int) {
		body := marchallObj(t, echoapi.LoginRequest{Username: uname, Password: password})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		app.ServeHTTP(rec, req)
		return rec.Body.Bytes(), rec.Code
	}

	t.Run("ok", func(t *testing.T) {
		body, code := login(usr.Username, pwd)
		require.Equal(t, http.StatusOK, code, string(body))

		var resp echoapi.LoginResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("ok with email", func(t *testing.T) {
		_, code := login(usr.Email, pwd)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("bad password", func(t *testing.T) {
		_, code := login(usr.Username, "nope nope")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, code := login("ghost", pwd)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("deactivated account", func(t *testing.T) {
		_, code := login(naughty.Username, pwd)
		assert.Equal(t, http.StatusForbidden, code)
	})
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.np", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.np", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teach@test.np", "", []string{user.RoleTeacher}, true)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "get all", path: "/v1/users", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, admin, student, teacher),
		},
		{
			name: "filter role=teacher:", path: "/v1/users?role=" + user.RoleTeacher, token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, teacher),
		},
		{
			name: "search unknown", path: "/v1/users?search=lol", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.np", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.np", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other1", "other@test.np", "", []string{user.RoleStudent}, true)

	tests := []httpTest{
		{
			name: "own profile", path: "/v1/users/" + student.ID, token: getToken(t, student),
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "admin can read anyone", path: "/v1/users/" + student.ID, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "peers are invisible", path: "/v1/users/" + other.ID, token: getToken(t, student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
