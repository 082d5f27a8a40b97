package payment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/sikshyahq/sikshya/core"
	"github.com/sikshyahq/sikshya/core/course"
)

var (
	// errors
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCodeNotFound        = errors.New("unlock code not found")
	// ErrCodeHashExists is the repository's collision signal: the code_hash
	// unique index rejected an insert. The pre-insert lookup is an optimization
	// only; this is the source of truth under concurrent issuers.
	ErrCodeHashExists = errors.New("an unlock code with this hash already exists")
	// ErrCodeGenerationExhausted is fatal to one issuance attempt. Colliding on
	// every try at a 36^8 code space points at broken randomness, so it is
	// surfaced rather than masked by retrying forever.
	ErrCodeGenerationExhausted = errors.New("unlock code generation attempts exhausted")
)

type (
	Repository interface {
		CreateTransaction(ctx context.Context, txn Transaction) (Transaction, error)
		GetTransactionByID(ctx context.Context, id string) (Transaction, error)
		// FilterTransactions applies AND operation on available filter fields.
		// TransactionQueryFilter.Search does a case-insensitive match on one of
		// Transaction.BuyerName or Transaction.Contact.
		FilterTransactions(ctx context.Context, filter TransactionQueryFilter, ordering ...core.DBOrdering) ([]Transaction, error)
		// SetTransactionUnlockCode back-links a Transaction to its issued code.
		SetTransactionUnlockCode(ctx context.Context, txnID, codeID string) (Transaction, error)
		// CreateUnlockCode persists a code record; returns ErrCodeHashExists if
		// the hash is already taken.
		CreateUnlockCode(ctx context.Context, code UnlockCode) (UnlockCode, error)
		GetUnlockCodeByID(ctx context.Context, id string) (UnlockCode, error)
		GetUnlockCodeByHash(ctx context.Context, hash string) (UnlockCode, error)
	}

	Service interface {
		// IssueUnlockCode records the claim's Transaction and hands back exactly
		// one unused, uniquely-hashed code bound to it.
		IssueUnlockCode(ctx context.Context, claim Claim) (IssuedCode, error)
		GetTransaction(ctx context.Context, id string) (Transaction, error)
		FilterTransactions(ctx context.Context, filter TransactionQueryFilter, ordering ...core.DBOrdering) ([]Transaction, error)
		GetUnlockCode(ctx context.Context, id string) (UnlockCode, error)
		// ResendUnlockCode re-delivers an issued code to its buyer contact.
		ResendUnlockCode(ctx context.Context, id string) (UnlockCode, error)
	}

	service struct {
		repo      Repository
		courseSvc course.Service
		gen       CodeGenerator
		mailSvc   core.EmailService
		logger    core.Logger
		conf      *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	courseSvc course.Service,
	gen CodeGenerator,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		repo:      repo,
		courseSvc: courseSvc,
		gen:       gen,
		mailSvc:   mailSvc,
		logger:    logger,
		conf:      conf,
	}
}

// validateClaim enforces the issuance input contract before any persistence.
func validateClaim(claim *Claim) (amount float64, err error) {
	claim.Clean()

	var flds []core.FieldError
	reqd := func(field, val string) {
		if val == "" {
			flds = append(flds, core.FieldError{Field: field, Error: "this field is required"})
		}
	}
	reqd("buyer_name", claim.BuyerName)
	reqd("contact", claim.Contact)
	reqd("payment_method", claim.Method)
	reqd("course_id", claim.CourseID)

	if claim.Method != "" && !contains(Methods, claim.Method) {
		flds = append(flds, core.FieldError{Field: "payment_method", Error: "invalid payment method"})
	}
	if claim.RefType != "" && !contains(RefTypes, claim.RefType) {
		flds = append(flds, core.FieldError{Field: "payment_ref_type", Error: "invalid payment reference type"})
	}

	amount, ok := claim.AmountValue()
	if !ok {
		flds = append(flds, core.FieldError{Field: "amount", Error: "amount must be a positive number"})
	}

	if len(flds) > 0 {
		return 0, core.NewValidationError(errors.New("invalid claim"), flds...)
	}
	return amount, nil
}

func contains(vals []string, val string) bool {
	for _, v := range vals {
		if v == val {
			return true
		}
	}
	return false
}

func (svc *service) IssueUnlockCode(ctx context.Context, claim Claim) (IssuedCode, error) {
	amount, err := validateClaim(&claim)
	if err != nil {
		return IssuedCode{}, err
	}

	// referential check; no partial state on a dangling course id
	crs, err := svc.courseSvc.GetByID(ctx, claim.CourseID)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return IssuedCode{}, course.ErrNotFound
		}
		return IssuedCode{}, errors.Wrap(err, fmt.Sprintf("finding course %s", claim.CourseID))
	}

	// the offline payment is asserted complete by the issuing admin;
	// this system does not verify the off-band payment itself
	now := time.Now().UTC()
	txn, err := svc.repo.CreateTransaction(ctx, Transaction{
		BuyerName:    claim.BuyerName,
		Contact:      claim.Contact,
		Method:       claim.Method,
		RefType:      claim.RefType,
		RefValue:     claim.RefValue,
		CourseID:     crs.ID,
		Amount:       amount,
		Notes:        claim.Notes,
		Status:       StatusCompleted,
		IssuedByID:   claim.IssuedByID,
		IssuedByRole: claim.IssuedByRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return IssuedCode{}, errors.Wrap(err, "creating transaction")
	}

	code, err := svc.generateCode(ctx, txn, crs)
	if err != nil {
		return IssuedCode{}, err
	}

	// back-link; a failure here leaves an orphaned-but-valid code behind,
	// picked up by the reconciliation job, so it is logged and not rolled back
	if linked, err := svc.repo.SetTransactionUnlockCode(ctx, txn.ID, code.ID); err != nil {
		svc.logger.Error(
			fmt.Sprintf("back-linking transaction %s to unlock code %s: %v", txn.ID, code.ID, err), err)
	} else {
		txn = linked
	}

	svc.sendUnlockCodeMail(txn, crs, code)

	return IssuedCode{Transaction: txn, UnlockCode: code, PlainCode: code.PlainCode}, nil
}

// generateCode draws fresh codes until one's hash is free, up to the configured
// attempt cap. The unique index on code_hash is the ground truth; the lookup
// before insert only saves a doomed round-trip.
func (svc *service) generateCode(ctx context.Context, txn Transaction, crs course.Course) (UnlockCode, error) {
	maxAttempts := svc.conf.Payment.UnlockCodeMaxAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		plain, err := svc.gen.Generate()
		if err != nil {
			return UnlockCode{}, errors.Wrap(err, "generating code")
		}
		hash := HashCode(plain)

		if _, err = svc.repo.GetUnlockCodeByHash(ctx, hash); err == nil {
			continue // taken
		} else if errors.Cause(err) != ErrCodeNotFound {
			return UnlockCode{}, errors.Wrap(err, "checking code hash")
		}

		now := time.Now().UTC()
		code, err := svc.repo.CreateUnlockCode(ctx, UnlockCode{
			PlainCode:     plain,
			CodeHash:      hash,
			CourseID:      crs.ID,
			Recipient:     txn.BuyerName,
			IssuedByID:    txn.IssuedByID,
			IssuedByRole:  txn.IssuedByRole,
			IsUsed:        false,
			ExpiresOn:     now.Add(svc.conf.Payment.UnlockCodeValidity),
			TransactionID: txn.ID,
			CreatedAt:     now,
		})
		if err != nil {
			if errors.Cause(err) == ErrCodeHashExists {
				continue // lost the race to a concurrent issuer
			}
			return UnlockCode{}, errors.Wrap(err, "creating unlock code")
		}
		return code, nil
	}
	return UnlockCode{}, ErrCodeGenerationExhausted
}

func (svc *service) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	return svc.repo.GetTransactionByID(ctx, id)
}

func (svc *service) FilterTransactions(ctx context.Context, filter TransactionQueryFilter, ordering ...core.DBOrdering) ([]Transaction, error) {
	return svc.repo.FilterTransactions(ctx, filter, ordering...)
}

func (svc *service) GetUnlockCode(ctx context.Context, id string) (UnlockCode, error) {
	return svc.repo.GetUnlockCodeByID(ctx, id)
}

func (svc *service) ResendUnlockCode(ctx context.Context, id string) (UnlockCode, error) {
	code, err := svc.repo.GetUnlockCodeByID(ctx, id)
	if err != nil {
		return UnlockCode{}, err
	}
	crs, err := svc.courseSvc.GetByID(ctx, code.CourseID)
	if err != nil {
		return UnlockCode{}, errors.Wrap(err, fmt.Sprintf("finding course %s", code.CourseID))
	}
	txn, err := svc.repo.GetTransactionByID(ctx, code.TransactionID)
	if err != nil {
		return UnlockCode{}, errors.Wrap(err, fmt.Sprintf("finding transaction %s", code.TransactionID))
	}
	svc.sendUnlockCodeMail(txn, crs, code)
	return code, nil
}

// sendUnlockCodeMail emails the plaintext code to the buyer when the
// transaction contact is an email address; otherwise delivery is manual
// (the admin relays the code shown in the console).
func (svc *service) sendUnlockCodeMail(txn Transaction, crs course.Course, code UnlockCode) {
	addr, err := mail.ParseAddress(txn.Contact)
	if err != nil {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: txn.BuyerName, Address: addr.Address}},
		Subject:      "Your course unlock code",
		TemplateName: "unlock-code",
		TemplateData: struct {
			BuyerName   string
			CourseTitle string
			PlainCode   string
			ExpiresOn   string
		}{
			BuyerName:   txn.BuyerName,
			CourseTitle: crs.Title,
			PlainCode:   code.PlainCode,
			ExpiresOn:   code.ExpiresOn.Format("Jan 2, 2006"),
		},
	}
	svc.mailSvc.SendMessages(msg)
}
