package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sikshyahq/sikshya/core"
	"github.com/sikshyahq/sikshya/core/payment"
)

type paymentRepository struct {
	db *paymentTables
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db.payment}
}

func (repo *paymentRepository) CreateTransaction(_ context.Context, txn payment.Transaction) (payment.Transaction, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	txn.ID = uuid.New().String()
	repo.db.transactions[txn.ID] = &txn
	return txn, nil
}

func (repo *paymentRepository) GetTransactionByID(_ context.Context, id string) (payment.Transaction, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if txn, ok := repo.db.transactions[id]; ok {
		return *txn, nil
	}
	return payment.Transaction{}, payment.ErrTransactionNotFound
}

func (repo *paymentRepository) FilterTransactions(_ context.Context, filter payment.TransactionQueryFilter, ordering ...core.DBOrdering) ([]payment.Transaction, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	txns := make([]payment.Transaction, 0)
	for _, txn := range repo.db.transactions {
		if matchesTransactionFilter(*txn, filter) {
			txns = append(txns, *txn)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })
	return txns, nil
}

func matchesTransactionFilter(txn payment.Transaction, filter payment.TransactionQueryFilter) bool {
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(txn.BuyerName), search) ||
			strings.Contains(strings.ToLower(txn.Contact), search)) {
			return false
		}
	}
	if filter.Status != "" && txn.Status != filter.Status {
		return false
	}
	if filter.Method != "" && txn.Method != filter.Method {
		return false
	}
	if filter.CourseID != "" && txn.CourseID != filter.CourseID {
		return false
	}
	if !filter.CreatedFrom.IsZero() && txn.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && txn.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func (repo *paymentRepository) SetTransactionUnlockCode(_ context.Context, txnID, codeID string) (payment.Transaction, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	txn, ok := repo.db.transactions[txnID]
	if !ok {
		return payment.Transaction{}, payment.ErrTransactionNotFound
	}
	txn.UnlockCodeID = codeID
	txn.UpdatedAt = time.Now().UTC()
	return *txn, nil
}

func (repo *paymentRepository) CreateUnlockCode(_ context.Context, code payment.UnlockCode) (payment.UnlockCode, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// codeHashIdx mimics the storage unique index on code_hash
	if _, taken := repo.db.codeHashIdx[code.CodeHash]; taken {
		return payment.UnlockCode{}, payment.ErrCodeHashExists
	}
	code.ID = uuid.New().String()
	repo.db.unlockCodes[code.ID] = &code
	repo.db.codeHashIdx[code.CodeHash] = code.ID
	return code, nil
}

func (repo *paymentRepository) GetUnlockCodeByID(_ context.Context, id string) (payment.UnlockCode, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if code, ok := repo.db.unlockCodes[id]; ok {
		return *code, nil
	}
	return payment.UnlockCode{}, payment.ErrCodeNotFound
}

func (repo *paymentRepository) GetUnlockCodeByHash(_ context.Context, hash string) (payment.UnlockCode, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if id, ok := repo.db.codeHashIdx[hash]; ok {
		return *repo.db.unlockCodes[id], nil
	}
	return payment.UnlockCode{}, payment.ErrCodeNotFound
}
