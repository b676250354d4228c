package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfields/schoolbank-backend/internal/accounts"
	"github.com/brightfields/schoolbank-backend/internal/loans"
	"github.com/brightfields/schoolbank-backend/pkg/db/models"
	"github.com/brightfields/schoolbank-backend/pkg/enums"
	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
)

type txRunner interface {
	WithTxRetry(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type summaryInvalidator interface {
	InvalidateSummary(ctx context.Context, pupilID string) error
}

// RecordInput is the generic create-transaction request. Deposits run loan
// allocation; every other type is a raw signed ledger adjustment.
type RecordInput struct {
	PupilID         uuid.UUID
	Type            enums.TransactionType
	Amount          int64
	Description     string
	TransactionDate *time.Time
	LoanID          *uuid.UUID
	AcademicYear    *string
	Term            *string
}

// Result reports the entries written by one logical operation together with
// the account balance after it completed.
type Result struct {
	Transactions []models.Transaction `json:"transactions"`
	Balance      int64                `json:"balance"`
	Repaid       int64                `json:"repaid"`
	Credited     int64                `json:"credited"`
}

// ServiceParams groups dependencies for the transaction processor.
type ServiceParams struct {
	Repo     Repository
	Accounts accounts.Repository
	Loans    loans.Repository
	Tx       txRunner
	Cache    summaryInvalidator
}

// Service is the allocation engine: it turns deposit/withdrawal/disbursement/
// repayment requests into ledger-consistent transaction records and a new
// account balance, all inside one atomic unit per account.
type Service struct {
	repo     Repository
	accounts accounts.Repository
	loans    loans.Repository
	tx       txRunner
	cache    summaryInvalidator
}

// NewService builds a transaction processor.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Accounts == nil {
		return nil, errors.New("accounts repo is required")
	}
	if params.Loans == nil {
		return nil, errors.New("loans repo is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &Service{
		repo:     params.Repo,
		accounts: params.Accounts,
		loans:    params.Loans,
		tx:       params.Tx,
		cache:    params.Cache,
	}, nil
}

// Deposit credits the account after sweeping active loans oldest-first.
// The full deposit is logged as a deposit entry, followed by one repayment
// entry per loan touched, so replaying the log always reproduces the balance.
func (s *Service) Deposit(ctx context.Context, input RecordInput) (*Result, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit amount must be positive")
	}
	if input.PupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}

	var result *Result
	err := s.tx.WithTxRetry(ctx, func(tx *gorm.DB) error {
		accountRepo := s.accounts.WithTx(tx)
		loanRepo := s.loans.WithTx(tx)

		account, err := accountRepo.FindActiveByPupilForUpdate(ctx, input.PupilID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
		}

		activeLoans, err := loanRepo.ListActiveByPupilForUpdate(ctx, input.PupilID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active loans")
		}

		when := entryDate(input.TransactionDate)
		remaining := input.Amount
		var outstanding int64
		for _, loan := range activeLoans {
			outstanding += loan.Outstanding()
		}
		diverted := remaining
		if outstanding < diverted {
			diverted = outstanding
		}

		// The deposit entry records the full amount received; repayment
		// entries then move the diverted portion out of the balance.
		description := input.Description
		if description == "" {
			description = "Deposit"
		}
		if diverted > 0 {
			description = fmt.Sprintf("%s (%d applied to loan repayment)", description, diverted)
		}
		running := account.Balance + input.Amount
		entries := []models.Transaction{}
		depositEntry := models.Transaction{
			PupilID:         input.PupilID,
			AccountID:       account.ID,
			Type:            enums.TransactionTypeDeposit,
			Amount:          input.Amount,
			Description:     description,
			Balance:         running,
			TransactionDate: when,
			AcademicYear:    input.AcademicYear,
			Term:            input.Term,
		}
		if err := s.repo.Append(ctx, tx, &depositEntry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record deposit")
		}
		entries = append(entries, depositEntry)

		for i := range activeLoans {
			if remaining <= 0 {
				break
			}
			loan := activeLoans[i]
			repay := loan.Outstanding()
			if repay > remaining {
				repay = remaining
			}
			if repay <= 0 {
				continue
			}

			newRepaid := loan.AmountRepaid + repay
			status := enums.LoanStatusActive
			if newRepaid == loan.Amount {
				status = enums.LoanStatusPaid
			}
			if err := loanRepo.UpdateRepayment(ctx, loan.ID, newRepaid, status); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply repayment")
			}

			running -= repay
			loanID := loan.ID
			repayEntry := models.Transaction{
				PupilID:         input.PupilID,
				AccountID:       account.ID,
				LoanID:          &loanID,
				Type:            enums.TransactionTypeLoanRepayment,
				Amount:          repay,
				Description:     fmt.Sprintf("Loan repayment from deposit: %s", loan.Purpose),
				Balance:         running,
				TransactionDate: when,
				AcademicYear:    input.AcademicYear,
				Term:            input.Term,
			}
			if err := s.repo.Append(ctx, tx, &repayEntry); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record repayment")
			}
			entries = append(entries, repayEntry)
			remaining -= repay
		}

		if err := accountRepo.UpdateBalance(ctx, account.ID, running); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
		}

		result = &Result{
			Transactions: entries,
			Balance:      running,
			Repaid:       input.Amount - remaining,
			Credited:     remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, input.PupilID)
	return result, nil
}

// Withdraw debits the account, guarding against overdraw.
func (s *Service) Withdraw(ctx context.Context, input RecordInput) (*Result, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}
	if input.PupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}

	var result *Result
	err := s.tx.WithTxRetry(ctx, func(tx *gorm.DB) error {
		accountRepo := s.accounts.WithTx(tx)

		account, err := accountRepo.FindActiveByPupilForUpdate(ctx, input.PupilID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
		}
		if input.Amount > account.Balance {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "withdrawal exceeds balance").
				WithDetails(map[string]any{"balance": account.Balance, "requested": input.Amount})
		}

		newBalance := account.Balance - input.Amount
		if err := accountRepo.UpdateBalance(ctx, account.ID, newBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
		}

		description := input.Description
		if description == "" {
			description = "Withdrawal"
		}
		entry := models.Transaction{
			PupilID:         input.PupilID,
			AccountID:       account.ID,
			Type:            enums.TransactionTypeWithdrawal,
			Amount:          input.Amount,
			Description:     description,
			Balance:         newBalance,
			TransactionDate: entryDate(input.TransactionDate),
			AcademicYear:    input.AcademicYear,
			Term:            input.Term,
		}
		if err := s.repo.Append(ctx, tx, &entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record withdrawal")
		}

		result = &Result{Transactions: []models.Transaction{entry}, Balance: newBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, input.PupilID)
	return result, nil
}

// Record dispatches on transaction type. Only deposits run loan allocation;
// loan_disbursement and loan_repayment issued here are raw ledger adjustments
// that move the balance by the signed delta without touching any loan.
func (s *Service) Record(ctx context.Context, input RecordInput) (*Result, error) {
	switch input.Type {
	case enums.TransactionTypeDeposit:
		return s.Deposit(ctx, input)
	case enums.TransactionTypeWithdrawal:
		return s.Withdraw(ctx, input)
	case enums.TransactionTypeLoanDisbursement, enums.TransactionTypeLoanRepayment:
		return s.rawAdjustment(ctx, input)
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type").
		WithDetails(map[string]any{"type": string(input.Type)})
}

func (s *Service) rawAdjustment(ctx context.Context, input RecordInput) (*Result, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.PupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}

	var result *Result
	err := s.tx.WithTxRetry(ctx, func(tx *gorm.DB) error {
		accountRepo := s.accounts.WithTx(tx)

		account, err := accountRepo.FindActiveByPupilForUpdate(ctx, input.PupilID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
		}

		delta := input.Amount
		if !input.Type.IsCredit() {
			delta = -delta
		}
		newBalance := account.Balance + delta
		if newBalance < 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "adjustment exceeds balance").
				WithDetails(map[string]any{"balance": account.Balance, "requested": input.Amount})
		}
		if err := accountRepo.UpdateBalance(ctx, account.ID, newBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
		}

		description := input.Description
		if description == "" {
			description = string(input.Type)
		}
		entry := models.Transaction{
			PupilID:         input.PupilID,
			AccountID:       account.ID,
			LoanID:          input.LoanID,
			Type:            input.Type,
			Amount:          input.Amount,
			Description:     description,
			Balance:         newBalance,
			TransactionDate: entryDate(input.TransactionDate),
			AcademicYear:    input.AcademicYear,
			Term:            input.Term,
		}
		if err := s.repo.Append(ctx, tx, &entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record adjustment")
		}

		result = &Result{Transactions: []models.Transaction{entry}, Balance: newBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, input.PupilID)
	return result, nil
}

// ListByAccount returns the account's entries in transaction-date order.
func (s *Service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	txns, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return txns, nil
}

// ListByPupil returns the pupil's entries in transaction-date order.
func (s *Service) ListByPupil(ctx context.Context, pupilID uuid.UUID) ([]models.Transaction, error) {
	if pupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}
	txns, err := s.repo.ListByPupil(ctx, pupilID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return txns, nil
}

func (s *Service) invalidate(ctx context.Context, pupilID uuid.UUID) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateSummary(ctx, pupilID.String())
}

func entryDate(provided *time.Time) time.Time {
	if provided != nil && !provided.IsZero() {
		return provided.UTC()
	}
	return time.Now().UTC()
}
