package payment

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sikshyahq/sikshya/core"
)

// Payment methods accepted for offline purchases.
const (
	MethodWalletTransfer = "personal-wallet-transfer"
	MethodBankTransfer   = "bank-transfer"
	MethodCash           = "cash"
	MethodOther          = "other"
)

var Methods = []string{MethodWalletTransfer, MethodBankTransfer, MethodCash, MethodOther}

// Payment reference types: what the buyer supplied as proof of payment.
const (
	RefTransactionID = "transaction-id"
	RefScreenshot    = "screenshot"
)

var RefTypes = []string{RefTransactionID, RefScreenshot}

// Transaction statuses.
const (
	// StatusPendingRedemption is reserved for non-instant payment methods;
	// offline issuance never enters it (see DESIGN.md).
	StatusPendingRedemption = "pending-code-redemption"
	StatusCompleted         = "completed"
	StatusCancelled         = "cancelled"
)

var Statuses = []string{StatusPendingRedemption, StatusCompleted, StatusCancelled}

// Transaction records an offline payment claim asserted complete by an admin.
type Transaction struct {
	ID           string    `json:"id"`
	BuyerName    string    `json:"buyer_name"`
	Contact      string    `json:"contact"`
	Method       string    `json:"payment_method"`
	RefType      string    `json:"payment_ref_type,omitempty"`
	RefValue     string    `json:"payment_ref_value,omitempty"`
	CourseID     string    `json:"course_id"`
	Amount       float64   `json:"amount"`
	Notes        string    `json:"notes,omitempty"`
	Status       string    `json:"status"`
	IssuedByID   string    `json:"issued_by_id"`
	IssuedByRole string    `json:"issued_by_role"`
	UnlockCodeID string    `json:"unlock_code_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// UnlockCode is a single-use redemption token bound to a Transaction.
// CodeHash is the only value ever matched against untrusted input;
// PlainCode is kept solely so the issuing admin can re-display or resend it.
type UnlockCode struct {
	ID             string    `json:"id"`
	PlainCode      string    `json:"-"`
	CodeHash       string    `json:"code_hash"`
	CourseID       string    `json:"course_id"`
	Recipient      string    `json:"recipient"`
	IssuedByID     string    `json:"issued_by_id"`
	IssuedByRole   string    `json:"issued_by_role"`
	IsUsed         bool      `json:"is_used"`
	UsedByID       string    `json:"used_by_id,omitempty"`
	UsedDeviceHash string    `json:"used_device_hash,omitempty"`
	UsedAt         time.Time `json:"used_at,omitempty"`
	ExpiresOn      time.Time `json:"expires_on"`
	TransactionID  string    `json:"transaction_id"`
	CreatedAt      time.Time `json:"created_at"` // UTC
}

// Claim is a validated offline purchase claim submitted by an admin.
// Issuer identity fields are set by the server from the authenticated admin,
// never bound from the request body.
type Claim struct {
	BuyerName string      `json:"buyer_name" validate:"required"`
	Contact   string      `json:"contact" validate:"required"`
	Method    string      `json:"payment_method" validate:"required,paymethod"`
	RefType   string      `json:"payment_ref_type" validate:"omitempty,payreftype"`
	RefValue  string      `json:"payment_ref_value" validate:"required_with=RefType"`
	CourseID  string      `json:"course_id" validate:"required"`
	Amount    json.Number `json:"amount" validate:"required"`
	Notes     string      `json:"notes"`

	IssuedByID   string `json:"-"`
	IssuedByRole string `json:"-"`
}

func (c *Claim) Clean() {
	c.BuyerName = core.CleanString(c.BuyerName)
	c.Contact = core.CleanString(c.Contact)
	c.Method = core.CleanString(c.Method, true /* lower */)
	c.RefType = core.CleanString(c.RefType, true /* lower */)
	c.RefValue = core.CleanString(c.RefValue)
	c.CourseID = core.CleanString(c.CourseID)
	c.Notes = core.CleanString(c.Notes)
}

func (c *Claim) Validate(validate *validator.Validate) error {
	c.Clean()
	return validate.Struct(c)
}

// AmountValue parses the claimed amount; ok is false unless it is a positive number.
func (c *Claim) AmountValue() (amount float64, ok bool) {
	amount, err := strconv.ParseFloat(c.Amount.String(), 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}

// IssuedCode is the result of a successful issuance: the plaintext code is
// returned exactly once; transmitting it to the buyer is the caller's problem.
type IssuedCode struct {
	Transaction Transaction `json:"transaction"`
	UnlockCode  UnlockCode  `json:"unlock_code"`
	PlainCode   string      `json:"plain_code"`
}

type TransactionQueryFilter struct {
	Search      string    `query:"search"`
	Status      string    `query:"status"`
	Method      string    `query:"payment_method"`
	CourseID    string    `query:"course_id"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *TransactionQueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Status == "" && qf.Method == "" && qf.CourseID == "" &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *TransactionQueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Method = core.CleanString(qf.Method, true /* lower */)
}
