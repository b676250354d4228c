package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfields/schoolbank-backend/internal/loans"
	"github.com/brightfields/schoolbank-backend/pkg/db/models"
	"github.com/brightfields/schoolbank-backend/pkg/enums"
	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
)

// Revert applies the mathematical inverse of a prior entry: credits become
// debits and vice versa. Both the original and the reversal entry end up
// marked reverted, so replaying non-reverted entries still reproduces the
// balance. A repayment entry that carries its loan also rolls the loan's
// amountRepaid back, reopening a paid loan.
func (s *Service) Revert(ctx context.Context, transactionID uuid.UUID) (*Result, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var result *Result
	var pupilID uuid.UUID
	err := s.tx.WithTxRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		accountRepo := s.accounts.WithTx(tx)
		loanRepo := s.loans.WithTx(tx)

		original, err := repo.FindByIDForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
		}
		if original.IsReverted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already reverted")
		}

		account, err := accountRepo.FindByIDForUpdate(ctx, original.AccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
		}

		newBalance := account.Balance - original.Delta()
		if newBalance < 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "reversal would overdraw the account").
				WithDetails(map[string]any{"balance": account.Balance, "delta": original.Delta()})
		}

		if original.Type == enums.TransactionTypeLoanRepayment && original.LoanID != nil {
			if err := s.rollbackRepayment(ctx, loanRepo, *original.LoanID, original.Amount); err != nil {
				return err
			}
		}

		if err := accountRepo.UpdateBalance(ctx, account.ID, newBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
		}

		now := time.Now().UTC()
		originalID := original.ID
		reversal := models.Transaction{
			PupilID:               original.PupilID,
			AccountID:             original.AccountID,
			LoanID:                original.LoanID,
			Type:                  original.Type.Inverse(),
			Amount:                original.Amount,
			Description:           fmt.Sprintf("Reversal of %s: %s", original.Type, original.Description),
			Balance:               newBalance,
			TransactionDate:       now,
			AcademicYear:          original.AcademicYear,
			Term:                  original.Term,
			IsReverted:            true,
			RevertedAt:            &now,
			OriginalTransactionID: &originalID,
		}
		if err := repo.Create(ctx, &reversal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reversal")
		}
		if err := repo.MarkReverted(ctx, original.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark original reverted")
		}

		pupilID = original.PupilID
		result = &Result{Transactions: []models.Transaction{reversal}, Balance: newBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, pupilID)
	return result, nil
}

// rollbackRepayment undoes a repayment's effect on its loan. Cancelled loans
// are terminal and keep their closure amounts.
func (s *Service) rollbackRepayment(ctx context.Context, loanRepo loans.Repository, loanID uuid.UUID, amount int64) error {
	loan, err := loanRepo.FindByIDForUpdate(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	if loan.Status == enums.LoanStatusCancelled {
		return nil
	}

	newRepaid := loan.AmountRepaid - amount
	if newRepaid < 0 {
		newRepaid = 0
	}
	status := enums.LoanStatusActive
	if newRepaid == loan.Amount {
		status = enums.LoanStatusPaid
	}
	if err := loanRepo.UpdateRepayment(ctx, loan.ID, newRepaid, status); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "roll back repayment")
	}
	return nil
}

// CancelLoan settles an active loan from the account balance: the outstanding
// amount is debited, a closing repayment entry is logged, and the loan is
// marked cancelled with amountRepaid forced to the principal.
func (s *Service) CancelLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}

	var cancelled *models.Loan
	var pupilID uuid.UUID
	err := s.tx.WithTxRetry(ctx, func(tx *gorm.DB) error {
		loanRepo := s.loans.WithTx(tx)
		accountRepo := s.accounts.WithTx(tx)

		// Resolve the account without locking the loan, then take locks in
		// the same account-then-loan order as every other mutating path.
		loan, err := loanRepo.FindByID(ctx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
		}

		account, err := accountRepo.FindByIDForUpdate(ctx, loan.AccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
		}

		loan, err = loanRepo.FindByIDForUpdate(ctx, loanID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock loan")
		}
		if loan.Status != enums.LoanStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only active loans can be cancelled").
				WithDetails(map[string]any{"status": string(loan.Status)})
		}

		outstanding := loan.Outstanding()
		if account.Balance < outstanding {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "balance cannot cover outstanding debt").
				WithDetails(map[string]any{"balance": account.Balance, "outstanding": outstanding})
		}

		newBalance := account.Balance - outstanding
		if err := accountRepo.UpdateBalance(ctx, account.ID, newBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit outstanding")
		}
		if err := loanRepo.UpdateRepayment(ctx, loan.ID, loan.Amount, enums.LoanStatusCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel loan")
		}

		id := loan.ID
		entry := models.Transaction{
			PupilID:         loan.PupilID,
			AccountID:       account.ID,
			LoanID:          &id,
			Type:            enums.TransactionTypeLoanRepayment,
			Amount:          outstanding,
			Description:     fmt.Sprintf("Loan cancellation settlement: %s", loan.Purpose),
			Balance:         newBalance,
			TransactionDate: time.Now().UTC(),
			AcademicYear:    loan.AcademicYear,
			Term:            loan.Term,
		}
		if err := s.repo.Append(ctx, tx, &entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cancellation")
		}

		loan.AmountRepaid = loan.Amount
		loan.Status = enums.LoanStatusCancelled
		cancelled = loan
		pupilID = loan.PupilID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, pupilID)
	return cancelled, nil
}
