package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sikshyahq/sikshya/core"
	"github.com/sikshyahq/sikshya/core/payment"
)

type transactionRow struct {
	ID           string      `db:"id"`
	CourseID     string      `db:"course_id"`
	BuyerName    string      `db:"buyer_name"`
	Contact      string      `db:"contact"`
	Method       string      `db:"method"`
	RefType      string      `db:"reference_type"`
	RefValue     string      `db:"reference_value"`
	Amount       float64     `db:"amount"`
	Status       string      `db:"status"`
	Notes        string      `db:"notes"`
	IssuedByID   null.String `db:"issued_by_id"`
	IssuedByRole string      `db:"issued_by_role"`
	UnlockCodeID null.String `db:"unlock_code_id"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (r transactionRow) transaction() payment.Transaction {
	return payment.Transaction{
		ID:           r.ID,
		BuyerName:    r.BuyerName,
		Contact:      r.Contact,
		Method:       r.Method,
		RefType:      r.RefType,
		RefValue:     r.RefValue,
		CourseID:     r.CourseID,
		Amount:       r.Amount,
		Notes:        r.Notes,
		Status:       r.Status,
		IssuedByID:   r.IssuedByID.String,
		IssuedByRole: r.IssuedByRole,
		UnlockCodeID: r.UnlockCodeID.String,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func newTransactionRow(txn payment.Transaction) transactionRow {
	return transactionRow{
		ID:           txn.ID,
		CourseID:     txn.CourseID,
		BuyerName:    txn.BuyerName,
		Contact:      txn.Contact,
		Method:       txn.Method,
		RefType:      txn.RefType,
		RefValue:     txn.RefValue,
		Amount:       txn.Amount,
		Status:       txn.Status,
		Notes:        txn.Notes,
		IssuedByID:   null.NewString(txn.IssuedByID, txn.IssuedByID != ""),
		IssuedByRole: txn.IssuedByRole,
		UnlockCodeID: null.NewString(txn.UnlockCodeID, txn.UnlockCodeID != ""),
		CreatedAt:    txn.CreatedAt.UTC(),
		UpdatedAt:    txn.UpdatedAt.UTC(),
	}
}

type unlockCodeRow struct {
	ID             string      `db:"id"`
	PlainCode      string      `db:"plain_code"`
	CodeHash       string      `db:"code_hash"`
	Recipient      string      `db:"recipient"`
	CourseID       string      `db:"course_id"`
	TransactionID  string      `db:"transaction_id"`
	IssuedByID     null.String `db:"issued_by_id"`
	IssuedByRole   string      `db:"issued_by_role"`
	IsUsed         bool        `db:"is_used"`
	UsedByID       null.String `db:"used_by_id"`
	UsedDeviceHash string      `db:"used_device_hash"`
	UsedAt         null.Time   `db:"used_at"`
	ExpiresOn      time.Time   `db:"expires_on"`
	CreatedAt      time.Time   `db:"created_at"`
}

func (r unlockCodeRow) unlockCode() payment.UnlockCode {
	return payment.UnlockCode{
		ID:             r.ID,
		PlainCode:      r.PlainCode,
		CodeHash:       r.CodeHash,
		CourseID:       r.CourseID,
		Recipient:      r.Recipient,
		IssuedByID:     r.IssuedByID.String,
		IssuedByRole:   r.IssuedByRole,
		IsUsed:         r.IsUsed,
		UsedByID:       r.UsedByID.String,
		UsedDeviceHash: r.UsedDeviceHash,
		UsedAt:         r.UsedAt.Time.UTC(),
		ExpiresOn:      r.ExpiresOn.UTC(),
		TransactionID:  r.TransactionID,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func newUnlockCodeRow(code payment.UnlockCode) unlockCodeRow {
	return unlockCodeRow{
		ID:             code.ID,
		PlainCode:      code.PlainCode,
		CodeHash:       code.CodeHash,
		Recipient:      code.Recipient,
		CourseID:       code.CourseID,
		TransactionID:  code.TransactionID,
		IssuedByID:     null.NewString(code.IssuedByID, code.IssuedByID != ""),
		IssuedByRole:   code.IssuedByRole,
		IsUsed:         code.IsUsed,
		UsedByID:       null.NewString(code.UsedByID, code.UsedByID != ""),
		UsedDeviceHash: code.UsedDeviceHash,
		UsedAt:         null.NewTime(code.UsedAt.UTC(), !code.UsedAt.IsZero()),
		ExpiresOn:      code.ExpiresOn.UTC(),
		CreatedAt:      code.CreatedAt.UTC(),
	}
}

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo paymentRepository) CreateTransaction(ctx context.Context, txn payment.Transaction) (payment.Transaction, error) {
	txn.ID = uuid.New().String()
	row := newTransactionRow(txn)
	q := `
	INSERT INTO transaction (id, course_id, buyer_name, contact, method, reference_type, reference_value,
		amount, status, notes, issued_by_id, issued_by_role, unlock_code_id, created_at, updated_at)
	VALUES (:id, :course_id, :buyer_name, :contact, :method, :reference_type, :reference_value,
		:amount, :status, :notes, :issued_by_id, :issued_by_role, :unlock_code_id, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return payment.Transaction{}, errors.Wrap(err, "creating transaction")
	}
	return txn, nil
}

func (repo paymentRepository) GetTransactionByID(ctx context.Context, id string) (payment.Transaction, error) {
	var row transactionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM transaction WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payment.Transaction{}, payment.ErrTransactionNotFound
		}
		return payment.Transaction{}, errors.Wrap(err, "getting transaction by id")
	}
	return row.transaction(), nil
}

func (repo paymentRepository) FilterTransactions(ctx context.Context, filter payment.TransactionQueryFilter, ordering ...core.DBOrdering) ([]payment.Transaction, error) {
	q := `SELECT * FROM transaction`
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, "(buyer_name ILIKE "+p+" OR contact ILIKE "+p+")")
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.Method != "" {
		conds = append(conds, "method = "+arg(filter.Method))
	}
	if filter.CourseID != "" {
		conds = append(conds, "course_id = "+arg(filter.CourseID))
	}
	if !filter.CreatedFrom.IsZero() {
		conds = append(conds, "created_at >= "+arg(filter.CreatedFrom.UTC()))
	}
	if !filter.CreatedTo.IsZero() {
		conds = append(conds, "created_at <= "+arg(filter.CreatedTo.UTC()))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderByClause(ordering, "created_at DESC")

	var rows []transactionRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering transactions")
	}
	txns := make([]payment.Transaction, 0, len(rows))
	for _, row := range rows {
		txns = append(txns, row.transaction())
	}
	return txns, nil
}

func (repo paymentRepository) SetTransactionUnlockCode(ctx context.Context, txnID, codeID string) (payment.Transaction, error) {
	q := `UPDATE transaction SET unlock_code_id = $1, updated_at = $2 WHERE id = $3`
	res, err := repo.db.ExecContext(ctx, q, codeID, time.Now().UTC(), txnID)
	if err != nil {
		return payment.Transaction{}, errors.Wrap(err, "setting transaction unlock code")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return payment.Transaction{}, payment.ErrTransactionNotFound
	}
	return repo.GetTransactionByID(ctx, txnID)
}

func (repo paymentRepository) CreateUnlockCode(ctx context.Context, code payment.UnlockCode) (payment.UnlockCode, error) {
	code.ID = uuid.New().String()
	row := newUnlockCodeRow(code)
	q := `
	INSERT INTO unlock_code (id, plain_code, code_hash, recipient, course_id, transaction_id, issued_by_id, issued_by_role,
		is_used, used_by_id, used_device_hash, used_at, expires_on, created_at)
	VALUES (:id, :plain_code, :code_hash, :recipient, :course_id, :transaction_id, :issued_by_id, :issued_by_role,
		:is_used, :used_by_id, :used_device_hash, :used_at, :expires_on, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		// the unique index on code_hash is the collision ground truth
		if isUniqueViolation(err) {
			return payment.UnlockCode{}, payment.ErrCodeHashExists
		}
		return payment.UnlockCode{}, errors.Wrap(err, "creating unlock code")
	}
	return code, nil
}

func (repo paymentRepository) GetUnlockCodeByID(ctx context.Context, id string) (payment.UnlockCode, error) {
	var row unlockCodeRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM unlock_code WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payment.UnlockCode{}, payment.ErrCodeNotFound
		}
		return payment.UnlockCode{}, errors.Wrap(err, "getting unlock code by id")
	}
	return row.unlockCode(), nil
}

func (repo paymentRepository) GetUnlockCodeByHash(ctx context.Context, hash string) (payment.UnlockCode, error) {
	var row unlockCodeRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM unlock_code WHERE code_hash = $1`, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payment.UnlockCode{}, payment.ErrCodeNotFound
		}
		return payment.UnlockCode{}, errors.Wrap(err, "getting unlock code by hash")
	}
	return row.unlockCode(), nil
}
