package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sikshyahq/sikshya/core/course"
	"github.com/sikshyahq/sikshya/core/user"
	testutil "github.com/sikshyahq/sikshya/tests"
)

func Test_courseApi_catalog(t *testing.T) {
	app := setup(t)

	phy := testutil.CreateCourse(t, courseRepo, "Bridge Course Physics", "Physics", 1200)
	chem := testutil.CreateCourse(t, courseRepo, "Bridge Course Chemistry", "Chemistry", 1100)

	t.Run("public list", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, phy, chem)}, rec)
	})

	t.Run("filter by subject", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses?subject=Chemistry")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, chem)}, rec)
	})

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses/"+phy.ID)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, phy)}, rec)
	})

	t.Run("retrieve unknown", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses/6b7a0a92-0000-0000-0000-000000000000")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "course not found"}),
		}, rec)
	})
}

func Test_courseApi_create(t *testing.T) {
	app := setup(t)

	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teach@test.np", "", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.np", "", []string{user.RoleStudent}, true)

	body := marchallObj(t, course.NewCourse{
		Title:     "Loksewa Prep",
		Subject:   "General Knowledge",
		TeacherID: teacher.ID,
		Price:     800,
	})

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/courses", body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("students may not create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses", getToken(t, student), body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("ok", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses", getToken(t, teacher), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var crs course.Course
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &crs))
		assert.Equal(t, "Loksewa Prep", crs.Title)
		assert.Equal(t, teacher.ID, crs.TeacherID)
		assert.NotEmpty(t, crs.ID)
	})

	t.Run("missing title", func(t *testing.T) {
		bad := marchallObj(t, course.NewCourse{Subject: "Physics"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses", getToken(t, teacher), bad)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		}, rec)
	})
}

func Test_courseApi_update(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, courseRepo, "Bridge Course Physics", "Physics", 1200)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teach@test.np", "", []string{user.RoleTeacher}, true)

	fPtr := func(f float64) *float64 { return &f }
	bPtr := func(b bool) *bool { return &b }
	body := marchallObj(t, course.UpdateCourse{Price: fPtr(999), IsPublished: bPtr(false)})

	req, rec := newAuthRequest(http.MethodPut, "/v1/courses/"+crs.ID, getToken(t, teacher), body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated course.Course
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, float64(999), updated.Price)
	assert.False(t, updated.IsPublished)
	assert.Equal(t, crs.Title, updated.Title)
}
