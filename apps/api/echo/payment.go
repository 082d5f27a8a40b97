package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sikshyahq/sikshya/core/payment"
)

type paymentApi struct {
	svc      payment.Service
	validate *validator.Validate
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc payment.Service, validate *validator.Validate) {
	api := paymentApi{
		svc:      svc,
		validate: validate,
	}

	// offline payment recording is an admin-only surface
	pg := g.Group("/payments", jwt, adminMiddleware())

	pg.POST("/unlock-codes", api.issueUnlockCode)
	pg.GET("/unlock-codes/:id", api.retrieveUnlockCode)
	pg.POST("/unlock-codes/:id/resend", api.resendUnlockCode)

	pg.GET("/transactions", api.queryTransactions)
	pg.GET("/transactions/:id", api.retrieveTransaction)
}

// Handlers

func (api *paymentApi) issueUnlockCode(ctx echo.Context) error {
	var claim payment.Claim
	if err := ctx.Bind(&claim); err != nil {
		return errors.Wrap(err, "binding to Claim")
	}
	if err := claim.Validate(api.validate); err != nil {
		return err
	}

	// issuer identity comes from the token, never from the body
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	claim.IssuedByID = claims.Subject
	claim.IssuedByRole = claims.MaxRole()

	issued, err := api.svc.IssueUnlockCode(ctx.Request().Context(), claim)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, IssueUnlockCodeResponse{
		Transaction:  issued.Transaction,
		UnlockCodeID: issued.UnlockCode.ID,
		PlainCode:    issued.PlainCode,
		ExpiresOn:    issued.UnlockCode.ExpiresOn,
	})
}

func (api *paymentApi) retrieveUnlockCode(ctx echo.Context) error {
	code, err := api.svc.GetUnlockCode(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, code)
}

func (api *paymentApi) resendUnlockCode(ctx echo.Context) error {
	code, err := api.svc.ResendUnlockCode(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, code)
}

func (api *paymentApi) queryTransactions(ctx echo.Context) error {
	filter := new(payment.TransactionQueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []payment.Transaction{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	txns, err := api.svc.FilterTransactions(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	if txns == nil {
		txns = []payment.Transaction{}
	}
	return ctx.JSON(http.StatusOK, txns)
}

func (api *paymentApi) retrieveTransaction(ctx echo.Context) error {
	txn, err := api.svc.GetTransaction(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, txn)
}

// IssueUnlockCodeResponse is the one and only payload that ever carries the
// plaintext unlock code.
type IssueUnlockCodeResponse struct {
	Transaction  payment.Transaction `json:"transaction"`
	UnlockCodeID string              `json:"unlock_code_id"`
	PlainCode    string              `json:"plain_code"`
	ExpiresOn    time.Time           `json:"expires_on"`
}
