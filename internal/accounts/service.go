package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfields/schoolbank-backend/pkg/config"
	"github.com/brightfields/schoolbank-backend/pkg/db"
	"github.com/brightfields/schoolbank-backend/pkg/db/models"
	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
	"github.com/brightfields/schoolbank-backend/pkg/pupils"
)

type txRunner interface {
	WithTxRetry(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LoanLister exposes the loan reads the summary endpoint needs. The loans
// repository satisfies it structurally.
type LoanLister interface {
	ListActiveByPupil(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error)
}

// SummaryCache caches computed summaries; a nil cache disables caching.
type SummaryCache interface {
	GetSummary(ctx context.Context, pupilID string, dest any) (bool, error)
	SetSummary(ctx context.Context, pupilID string, value any) error
	InvalidateSummary(ctx context.Context, pupilID string) error
}

// Summary aggregates the account with its active debt position.
type Summary struct {
	Account          models.Account `json:"account"`
	ActiveLoans      []models.Loan  `json:"active_loans"`
	TotalOutstanding int64          `json:"total_outstanding"`
	AvailableBalance int64          `json:"available_balance"`
}

// ServiceParams groups dependencies for the accounts service.
type ServiceParams struct {
	Repo   Repository
	Loans  LoanLister
	Pupils pupils.Directory
	Tx     txRunner
	Cache  SummaryCache
	Config config.LedgerConfig
}

// Service owns account lifecycle and balance reads.
type Service struct {
	repo   Repository
	loans  LoanLister
	pupils pupils.Directory
	tx     txRunner
	cache  SummaryCache
	cfg    config.LedgerConfig
}

// NewService builds an accounts service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Loans == nil {
		return nil, errors.New("loan lister is required")
	}
	if params.Pupils == nil {
		return nil, errors.New("pupil directory is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &Service{
		repo:   params.Repo,
		loans:  params.Loans,
		pupils: params.Pupils,
		tx:     params.Tx,
		cache:  params.Cache,
		cfg:    params.Config,
	}, nil
}

// Create opens a zero-balance active account for the pupil. Fails with
// CONFLICT when the pupil already has an active account.
func (s *Service) Create(ctx context.Context, pupilID uuid.UUID) (*models.Account, error) {
	if pupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}

	exists, err := s.pupils.Exists(ctx, pupilID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pupil not found")
	}

	if _, err := s.repo.FindActiveByPupil(ctx, pupilID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "pupil already has an active account")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing account")
	}

	account := &models.Account{
		PupilID:  pupilID,
		Balance:  0,
		IsActive: true,
	}

	retries := s.cfg.AccountNumberRetries
	if retries < 1 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		number, err := s.generateAccountNumber(ctx)
		if err != nil {
			return nil, err
		}
		account.ID = uuid.Nil
		account.AccountNumber = number

		err = s.repo.Create(ctx, account)
		if err == nil {
			return account, nil
		}
		if db.IsUniqueViolation(err, "accounts_active_pupil_uq") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "pupil already has an active account")
		}
		if db.IsUniqueViolation(err, "") {
			// account number collided, regenerate
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account")
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "account number generation exhausted retries")
}

// generateAccountNumber produces a prefixed 10-digit number. Uniqueness is
// guaranteed by the store's unique index, not by the generator; the pre-check
// just keeps insert retries rare.
func (s *Service) generateAccountNumber(ctx context.Context) (string, error) {
	max := big.NewInt(10_000_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate account number")
	}
	prefix := s.cfg.AccountNumberPrefix
	if prefix == "" {
		prefix = "SB"
	}
	number := fmt.Sprintf("%s%010d", prefix, n)

	taken, err := s.repo.AccountNumberExists(ctx, number)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check account number")
	}
	if taken {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "account number collision")
	}
	return number, nil
}

// Deactivate soft-disables the account. Balance and loans are untouched and
// existing loans keep accruing overdue status.
func (s *Service) Deactivate(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return s.setActive(ctx, accountID, false)
}

// Reactivate re-enables a previously deactivated account.
func (s *Service) Reactivate(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return s.setActive(ctx, accountID, true)
}

func (s *Service) setActive(ctx context.Context, accountID uuid.UUID, active bool) (*models.Account, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	var account *models.Account
	err := s.tx.WithTxRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByIDForUpdate(ctx, accountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
		}
		if found.IsActive == active {
			account = found
			return nil
		}
		if err := repo.SetActive(ctx, accountID, active); err != nil {
			if active && db.IsUniqueViolation(err, "accounts_active_pupil_uq") {
				return pkgerrors.New(pkgerrors.CodeConflict, "pupil already has an active account")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update account state")
		}
		found.IsActive = active
		account = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSummary(ctx, account.PupilID)
	return account, nil
}

// GetByPupil returns the pupil's active account, the authority for the
// current balance.
func (s *Service) GetByPupil(ctx context.Context, pupilID uuid.UUID) (*models.Account, error) {
	if pupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}
	account, err := s.repo.FindActiveByPupil(ctx, pupilID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	return account, nil
}

// Summary returns the account together with active loans, total outstanding
// debt, and the balance available after debt is covered.
func (s *Service) Summary(ctx context.Context, pupilID uuid.UUID) (*Summary, error) {
	if pupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}

	if s.cache != nil {
		var cached Summary
		if hit, err := s.cache.GetSummary(ctx, pupilID.String(), &cached); err == nil && hit {
			return &cached, nil
		}
	}

	account, err := s.GetByPupil(ctx, pupilID)
	if err != nil {
		return nil, err
	}

	loans, err := s.loans.ListActiveByPupil(ctx, pupilID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active loans")
	}

	var outstanding int64
	for _, loan := range loans {
		outstanding += loan.Outstanding()
	}
	available := account.Balance - outstanding
	if available < 0 {
		available = 0
	}

	summary := &Summary{
		Account:          *account,
		ActiveLoans:      loans,
		TotalOutstanding: outstanding,
		AvailableBalance: available,
	}

	if s.cache != nil {
		_ = s.cache.SetSummary(ctx, pupilID.String(), summary)
	}
	return summary, nil
}

func (s *Service) invalidateSummary(ctx context.Context, pupilID uuid.UUID) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateSummary(ctx, pupilID.String())
}
