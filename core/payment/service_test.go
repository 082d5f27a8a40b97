package payment_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/sikshyahq/sikshya/core"
	"github.com/sikshyahq/sikshya/core/course"
	"github.com/sikshyahq/sikshya/core/payment"
	emailsvc "github.com/sikshyahq/sikshya/services/email"
	dummydb "github.com/sikshyahq/sikshya/storage/database/dummy"
	testutil "github.com/sikshyahq/sikshya/tests"
)

// stubCodeGenerator returns queued codes in order, then falls back to the real generator.
type stubCodeGenerator struct {
	codes []string
	calls int
	real  payment.CodeGenerator
}

func (g *stubCodeGenerator) Generate() (string, error) {
	defer func() { g.calls++ }()
	if g.calls < len(g.codes) {
		return g.codes[g.calls], nil
	}
	if g.real == nil {
		g.real = payment.NewCodeGenerator()
	}
	return g.real.Generate()
}

// blindHashRepo hides existing hashes from the pre-insert lookup, simulating
// the window where a concurrent issuer wins the race; the unique index on
// insert remains the source of truth.
type blindHashRepo struct {
	payment.Repository
}

func (r *blindHashRepo) GetUnlockCodeByHash(ctx context.Context, hash string) (payment.UnlockCode, error) {
	return payment.UnlockCode{}, payment.ErrCodeNotFound
}

type setup struct {
	db        *dummydb.DB
	repo      payment.Repository
	courseSvc course.Service
	conf      *core.Config
	crs       course.Course
}

func newSetup(t *testing.T) *setup {
	t.Helper()
	db := dummydb.Open()
	conf := core.NewTestConfig()
	repo := dummydb.NewPaymentRepository(db)
	courseSvc := course.NewService(dummydb.NewCourseRepository(db))
	crs := testutil.CreateCourse(t, dummydb.NewCourseRepository(db), "Bridge Course Physics", "Physics", 1200)
	return &setup{db: db, repo: repo, courseSvc: courseSvc, conf: conf, crs: crs}
}

func (s *setup) service(gen payment.CodeGenerator, repo ...payment.Repository) payment.Service {
	r := s.repo
	if len(repo) > 0 {
		r = repo[0]
	}
	if gen == nil {
		gen = payment.NewCodeGenerator()
	}
	return payment.NewService(r, s.courseSvc, gen, emailsvc.NewConsoleServiceMock(s.conf), testutil.NewLogger(), s.conf)
}

func validClaim(courseID string) payment.Claim {
	return payment.Claim{
		BuyerName:    "Asha Gurung",
		Contact:      "98xxxxxxx",
		Method:       payment.MethodCash,
		CourseID:     courseID,
		Amount:       json.Number("1200"),
		IssuedByID:   "admin-1",
		IssuedByRole: "admin",
	}
}

func TestIssueUnlockCode(t *testing.T) {
	s := newSetup(t)
	svc := s.service(nil)
	ctx := context.Background()

	before := time.Now().UTC()
	issued, err := svc.IssueUnlockCode(ctx, validClaim(s.crs.ID))
	if err != nil {
		t.Fatalf("IssueUnlockCode(): %v", err)
	}

	txn := issued.Transaction
	if txn.Status != payment.StatusCompleted {
		t.Errorf("transaction status = %q; want %q", txn.Status, payment.StatusCompleted)
	}
	if txn.Amount != 1200 {
		t.Errorf("transaction amount = %v; want 1200", txn.Amount)
	}
	if txn.IssuedByID != "admin-1" || txn.IssuedByRole != "admin" {
		t.Errorf("issuer identity = %q/%q; want admin-1/admin", txn.IssuedByID, txn.IssuedByRole)
	}

	code := issued.UnlockCode
	if code.IsUsed {
		t.Error("freshly issued code is marked used")
	}
	if issued.PlainCode == "" || payment.HashCode(issued.PlainCode) != code.CodeHash {
		t.Errorf("code hash mismatch: HashCode(%q) != %q", issued.PlainCode, code.CodeHash)
	}

	// ExpiresOn ≈ issuance + configured validity
	wantExpiry := before.Add(s.conf.Payment.UnlockCodeValidity)
	if code.ExpiresOn.Before(wantExpiry.Add(-time.Minute)) || code.ExpiresOn.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("ExpiresOn = %v; want ≈ %v", code.ExpiresOn, wantExpiry)
	}

	// bidirectional back-link
	gotTxn, err := svc.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetTransaction(): %v", err)
	}
	if gotTxn.UnlockCodeID != code.ID {
		t.Errorf("transaction.UnlockCodeID = %q; want %q", gotTxn.UnlockCodeID, code.ID)
	}
	gotCode, err := svc.GetUnlockCode(ctx, code.ID)
	if err != nil {
		t.Fatalf("GetUnlockCode(): %v", err)
	}
	if gotCode.TransactionID != txn.ID {
		t.Errorf("unlockCode.TransactionID = %q; want %q", gotCode.TransactionID, txn.ID)
	}
}

func TestIssueUnlockCodeCourseNotFound(t *testing.T) {
	s := newSetup(t)
	svc := s.service(nil)
	ctx := context.Background()

	claim := validClaim("2a56e232-9b1d-4f58-a31f-6d89c9bdb32b")
	if _, err := svc.IssueUnlockCode(ctx, claim); errors.Cause(err) != course.ErrNotFound {
		t.Fatalf("IssueUnlockCode() error = %v; want %v", err, course.ErrNotFound)
	}
	// no partial state
	txns, err := svc.FilterTransactions(ctx, payment.TransactionQueryFilter{})
	if err != nil {
		t.Fatalf("FilterTransactions(): %v", err)
	}
	if len(txns) != 0 {
		t.Errorf("transactions persisted = %d; want 0", len(txns))
	}
}

func TestIssueUnlockCodeValidation(t *testing.T) {
	s := newSetup(t)
	svc := s.service(nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		modify func(c *payment.Claim)
	}{
		{name: "missing buyer name", modify: func(c *payment.Claim) { c.BuyerName = "" }},
		{name: "missing contact", modify: func(c *payment.Claim) { c.Contact = "" }},
		{name: "missing payment method", modify: func(c *payment.Claim) { c.Method = "" }},
		{name: "unknown payment method", modify: func(c *payment.Claim) { c.Method = "iou" }},
		{name: "missing course id", modify: func(c *payment.Claim) { c.CourseID = "" }},
		{name: "zero amount", modify: func(c *payment.Claim) { c.Amount = json.Number("0") }},
		{name: "negative amount", modify: func(c *payment.Claim) { c.Amount = json.Number("-5") }},
		{name: "non-numeric amount", modify: func(c *payment.Claim) { c.Amount = json.Number("abc") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claim := validClaim(s.crs.ID)
			tt.modify(&claim)
			_, err := svc.IssueUnlockCode(ctx, claim)
			if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
				t.Fatalf("IssueUnlockCode() error = %v; want *core.ValidationError", err)
			}
		})
	}

	// validation fails before touching storage
	txns, err := svc.FilterTransactions(ctx, payment.TransactionQueryFilter{})
	if err != nil {
		t.Fatalf("FilterTransactions(): %v", err)
	}
	if len(txns) != 0 {
		t.Errorf("transactions persisted = %d; want 0", len(txns))
	}
}

func TestIssueUnlockCodeNoDeduplication(t *testing.T) {
	s := newSetup(t)
	svc := s.service(nil)
	ctx := context.Background()

	first, err := svc.IssueUnlockCode(ctx, validClaim(s.crs.ID))
	if err != nil {
		t.Fatalf("IssueUnlockCode() #1: %v", err)
	}
	second, err := svc.IssueUnlockCode(ctx, validClaim(s.crs.ID))
	if err != nil {
		t.Fatalf("IssueUnlockCode() #2: %v", err)
	}

	if first.Transaction.ID == second.Transaction.ID {
		t.Error("identical claims share a transaction record")
	}
	if first.UnlockCode.ID == second.UnlockCode.ID {
		t.Error("identical claims share an unlock code record")
	}
	if first.PlainCode == second.PlainCode {
		t.Errorf("identical claims got the same plaintext code %q", first.PlainCode)
	}
	if first.UnlockCode.CodeHash == second.UnlockCode.CodeHash {
		t.Errorf("identical claims got the same code hash %q", first.UnlockCode.CodeHash)
	}
}

func TestIssueUnlockCodeCollisionRetry(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	colliding := "AA-AA-AA-AA"
	free := "BB-BB-BB-BB"

	// occupy the colliding hash
	if _, err := s.repo.CreateUnlockCode(ctx, payment.UnlockCode{
		PlainCode: colliding,
		CodeHash:  payment.HashCode(colliding),
		ExpiresOn: time.Now().UTC().Add(time.Hour),
	}); err != nil {
		t.Fatalf("seeding colliding code: %v", err)
	}

	// 9 collisions, then a free slot on the 10th attempt
	codes := make([]string, 0, 10)
	for i := 0; i < 9; i++ {
		codes = append(codes, colliding)
	}
	codes = append(codes, free)

	svc := s.service(&stubCodeGenerator{codes: codes})
	issued, err := svc.IssueUnlockCode(ctx, validClaim(s.crs.ID))
	if err != nil {
		t.Fatalf("IssueUnlockCode(): %v", err)
	}
	if issued.PlainCode != free {
		t.Errorf("PlainCode = %q; want %q", issued.PlainCode, free)
	}
}

func TestIssueUnlockCodeCollisionExhausted(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	colliding := "AA-AA-AA-AA"
	if _, err := s.repo.CreateUnlockCode(ctx, payment.UnlockCode{
		PlainCode: colliding,
		CodeHash:  payment.HashCode(colliding),
		ExpiresOn: time.Now().UTC().Add(time.Hour),
	}); err != nil {
		t.Fatalf("seeding colliding code: %v", err)
	}

	codes := make([]string, 10)
	for i := range codes {
		codes[i] = colliding
	}

	svc := s.service(&stubCodeGenerator{codes: codes})
	_, err := svc.IssueUnlockCode(ctx, validClaim(s.crs.ID))
	if errors.Cause(err) != payment.ErrCodeGenerationExhausted {
		t.Fatalf("IssueUnlockCode() error = %v; want %v", err, payment.ErrCodeGenerationExhausted)
	}

	// documented partial state: the transaction from step 3 survives
	txns, err := svc.FilterTransactions(ctx, payment.TransactionQueryFilter{})
	if err != nil {
		t.Fatalf("FilterTransactions(): %v", err)
	}
	if len(txns) != 1 {
		t.Errorf("transactions persisted = %d; want 1", len(txns))
	}
}

func TestIssueUnlockCodeInsertRace(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	taken := "CC-CC-CC-CC"
	if _, err := s.repo.CreateUnlockCode(ctx, payment.UnlockCode{
		PlainCode: taken,
		CodeHash:  payment.HashCode(taken),
		ExpiresOn: time.Now().UTC().Add(time.Hour),
	}); err != nil {
		t.Fatalf("seeding taken code: %v", err)
	}

	// the pre-check sees nothing; the insert must still trip the unique index
	// and trigger a retry with a fresh code
	svc := s.service(
		&stubCodeGenerator{codes: []string{taken, "DD-DD-DD-DD"}},
		&blindHashRepo{Repository: s.repo},
	)
	issued, err := svc.IssueUnlockCode(ctx, validClaim(s.crs.ID))
	if err != nil {
		t.Fatalf("IssueUnlockCode(): %v", err)
	}
	if issued.PlainCode != "DD-DD-DD-DD" {
		t.Errorf("PlainCode = %q; want DD-DD-DD-DD", issued.PlainCode)
	}
}

// Search matches buyer name or contact only; payment references are reachable
// through their own filter fields, not free-text search.
func TestFilterTransactionsSearch(t *testing.T) {
	s := newSetup(t)
	svc := s.service(nil)
	ctx := context.Background()

	claim := validClaim(s.crs.ID)
	claim.RefType = payment.RefTransactionID
	claim.RefValue = "ESEWA-778899"
	if _, err := svc.IssueUnlockCode(ctx, claim); err != nil {
		t.Fatalf("IssueUnlockCode(): %v", err)
	}

	tests := []struct {
		name   string
		search string
		want   int
	}{
		{name: "by buyer name", search: "asha", want: 1},
		{name: "by contact", search: "98xxx", want: 1},
		{name: "reference value is not searched", search: "ESEWA-778899", want: 0},
		{name: "no match", search: "nobody", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns, err := svc.FilterTransactions(ctx, payment.TransactionQueryFilter{Search: tt.search})
			if err != nil {
				t.Fatalf("FilterTransactions(): %v", err)
			}
			if len(txns) != tt.want {
				t.Errorf("FilterTransactions(search=%q) = %d transactions; want %d", tt.search, len(txns), tt.want)
			}
		})
	}
}

func TestResendUnlockCode(t *testing.T) {
	s := newSetup(t)
	svc := s.service(nil)
	ctx := context.Background()

	claim := validClaim(s.crs.ID)
	claim.Contact = "asha@test.test"
	issued, err := svc.IssueUnlockCode(ctx, claim)
	if err != nil {
		t.Fatalf("IssueUnlockCode(): %v", err)
	}

	code, err := svc.ResendUnlockCode(ctx, issued.UnlockCode.ID)
	if err != nil {
		t.Fatalf("ResendUnlockCode(): %v", err)
	}
	if code.PlainCode != issued.PlainCode {
		t.Errorf("resent PlainCode = %q; want %q", code.PlainCode, issued.PlainCode)
	}

	if _, err = svc.ResendUnlockCode(ctx, "e4cd53d1-6f29-4963-8b9f-b3ac25895f92"); errors.Cause(err) != payment.ErrCodeNotFound {
		t.Errorf("ResendUnlockCode(unknown) error = %v; want %v", err, payment.ErrCodeNotFound)
	}
}
