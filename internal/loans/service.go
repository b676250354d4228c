package loans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfields/schoolbank-backend/internal/accounts"
	"github.com/brightfields/schoolbank-backend/pkg/db/models"
	"github.com/brightfields/schoolbank-backend/pkg/enums"
	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
)

type txRunner interface {
	WithTxRetry(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// TransactionLog appends ledger entries inside the caller's transaction.
// The ledger repository satisfies it structurally.
type TransactionLog interface {
	Append(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error
}

type summaryInvalidator interface {
	InvalidateSummary(ctx context.Context, pupilID string) error
}

// CreateInput carries the disbursement request.
type CreateInput struct {
	PupilID       uuid.UUID
	Amount        int64
	Purpose       string
	RepaymentDate time.Time
	AcademicYear  *string
	Term          *string
}

// ServiceParams groups dependencies for the loans service.
type ServiceParams struct {
	Repo     Repository
	Accounts accounts.Repository
	Ledger   TransactionLog
	Tx       txRunner
	Cache    summaryInvalidator
}

// Service owns loan disbursement and loan reads.
type Service struct {
	repo     Repository
	accounts accounts.Repository
	ledger   TransactionLog
	tx       txRunner
	cache    summaryInvalidator
}

// NewService builds a loans service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Accounts == nil {
		return nil, errors.New("accounts repo is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("transaction log is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &Service{
		repo:     params.Repo,
		accounts: params.Accounts,
		ledger:   params.Ledger,
		tx:       params.Tx,
		cache:    params.Cache,
	}, nil
}

// Create disburses a loan: the loan row, the balance credit, and the
// loan_disbursement ledger entry are applied as one atomic unit.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Loan, error) {
	if input.PupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan amount must be positive")
	}
	if strings.TrimSpace(input.Purpose) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan purpose required")
	}
	if input.RepaymentDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "repayment date required")
	}

	var loan *models.Loan
	err := s.tx.WithTxRetry(ctx, func(tx *gorm.DB) error {
		accountRepo := s.accounts.WithTx(tx)
		loanRepo := s.repo.WithTx(tx)

		account, err := accountRepo.FindActiveByPupilForUpdate(ctx, input.PupilID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
		}

		created := &models.Loan{
			PupilID:       input.PupilID,
			AccountID:     account.ID,
			Amount:        input.Amount,
			AmountRepaid:  0,
			Purpose:       input.Purpose,
			RepaymentDate: input.RepaymentDate,
			Status:        enums.LoanStatusActive,
			AcademicYear:  input.AcademicYear,
			Term:          input.Term,
		}
		if err := loanRepo.Create(ctx, created); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loan")
		}

		newBalance := account.Balance + input.Amount
		if err := accountRepo.UpdateBalance(ctx, account.ID, newBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit disbursement")
		}

		entry := &models.Transaction{
			PupilID:         input.PupilID,
			AccountID:       account.ID,
			LoanID:          &created.ID,
			Type:            enums.TransactionTypeLoanDisbursement,
			Amount:          input.Amount,
			Description:     fmt.Sprintf("Loan disbursement: %s", input.Purpose),
			Balance:         newBalance,
			TransactionDate: time.Now().UTC(),
			AcademicYear:    input.AcademicYear,
			Term:            input.Term,
		}
		if err := s.ledger.Append(ctx, tx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record disbursement")
		}

		loan = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, input.PupilID)
	return loan, nil
}

// List returns every loan for the pupil, oldest first.
func (s *Service) List(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error) {
	if pupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}
	loans, err := s.repo.ListByPupil(ctx, pupilID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loans")
	}
	return loans, nil
}

// ListActive returns open loans oldest first; this is the repayment priority order.
func (s *Service) ListActive(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error) {
	if pupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}
	loans, err := s.repo.ListActiveByPupil(ctx, pupilID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active loans")
	}
	return loans, nil
}

func (s *Service) invalidate(ctx context.Context, pupilID uuid.UUID) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateSummary(ctx, pupilID.String())
}
