package tests

import (
	"encoding/json"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/sikshyahq/sikshya/apps/api/echo"
	"github.com/sikshyahq/sikshya/core/payment"
	"github.com/sikshyahq/sikshya/core/user"
	testutil "github.com/sikshyahq/sikshya/tests"
)

var codeFormat = regexp.MustCompile(`^[A-Z0-9]{2}-[A-Z0-9]{2}-[A-Z0-9]{2}-[A-Z0-9]{2}$`)

func validClaimBody(t *testing.T, courseID string) []byte {
	return marchallObj(t, map[string]interface{}{
		"buyer_name":     "Asha Gurung",
		"contact":        "98xxxxxxx",
		"payment_method": payment.MethodCash,
		"course_id":      courseID,
		"amount":         1200,
	})
}

func Test_paymentApi_issueUnlockCode(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, courseRepo, "Bridge Course Physics", "Physics", 1200)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.np", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.np", "", []string{user.RoleStudent}, true)
	adminToken := getToken(t, admin)

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/payments/unlock-codes", validClaimBody(t, crs.ID))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("admin required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/unlock-codes", getToken(t, student), validClaimBody(t, crs.ID))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("ok", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/unlock-codes", adminToken, validClaimBody(t, crs.ID))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp echoapi.IssueUnlockCodeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		assert.Regexp(t, codeFormat, resp.PlainCode)
		assert.NotEmpty(t, resp.UnlockCodeID)
		assert.Equal(t, payment.StatusCompleted, resp.Transaction.Status)
		assert.Equal(t, crs.ID, resp.Transaction.CourseID)
		assert.Equal(t, admin.ID, resp.Transaction.IssuedByID)
		assert.Equal(t, resp.UnlockCodeID, resp.Transaction.UnlockCodeID)
		assert.WithinDuration(t, time.Now().Add(conf.Payment.UnlockCodeValidity), resp.ExpiresOn, time.Minute)

		// the code is retrievable but never again in plaintext
		req, rec = newAuthRequest(http.MethodGet, "/v1/payments/unlock-codes/"+resp.UnlockCodeID, adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var code payment.UnlockCode
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &code))
		assert.Equal(t, payment.HashCode(resp.PlainCode), code.CodeHash)
		assert.False(t, code.IsUsed)
		assert.NotContains(t, rec.Body.String(), resp.PlainCode)
	})

	t.Run("course not found", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/unlock-codes", adminToken,
			validClaimBody(t, "1f8872f1-13c2-470b-a743-ede1db0561f6"))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "course not found"}),
		}, rec)
	})

	t.Run("invalid claim", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"contact":        "98xxxxxxx",
			"payment_method": payment.MethodCash,
			"course_id":      crs.ID,
			"amount":         1200,
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/unlock-codes", adminToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"buyer_name": "this field is required"}),
		}, rec)
	})

	t.Run("invalid payment method", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"buyer_name":     "Asha Gurung",
			"contact":        "98xxxxxxx",
			"payment_method": "iou",
			"course_id":      crs.ID,
			"amount":         1200,
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/unlock-codes", adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		var fldErrs map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fldErrs))
		assert.Contains(t, fldErrs, "payment_method")
	})
}

func Test_paymentApi_transactions(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, courseRepo, "Loksewa Prep", "General Knowledge", 800)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.np", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, admin)

	// issue two codes so the list has content
	var issued []echoapi.IssueUnlockCodeResponse
	for i := 0; i < 2; i++ {
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/unlock-codes", adminToken, validClaimBody(t, crs.ID))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp echoapi.IssueUnlockCodeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		issued = append(issued, resp)
	}

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments/transactions", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var txns []payment.Transaction
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txns))
		assert.Len(t, txns, 2)
	})

	t.Run("list filtered by status", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments/transactions?status="+payment.StatusCancelled, adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...)}, rec)
	})

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments/transactions/"+issued[0].Transaction.ID, adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var txn payment.Transaction
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txn))
		assert.Equal(t, issued[0].Transaction.ID, txn.ID)
		assert.Equal(t, issued[0].UnlockCodeID, txn.UnlockCodeID)
	})

	t.Run("retrieve unknown", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments/transactions/4f5e6d7c-0000-0000-0000-000000000000", adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "transaction not found"}),
		}, rec)
	})

	t.Run("resend", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/unlock-codes/"+issued[1].UnlockCodeID+"/resend", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var code payment.UnlockCode
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &code))
		assert.Equal(t, issued[1].UnlockCodeID, code.ID)
	})
}
