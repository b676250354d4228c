package overdue

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
	"github.com/brightfields/schoolbank-backend/pkg/logger"
)

type txRunner interface {
	WithTxRetry(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type transactionLog interface {
	Append(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error
}

type summaryInvalidator interface {
	InvalidateSummary(ctx context.Context, pupilID string) error
}

// Result reports one pupil's sweep. Collected is the total debited from the
// balance; a pupil with overdue loans but an empty balance yields zero.
type Result struct {
	PupilID      uuid.UUID            `json:"pupil_id"`
	Collected    int64                `json:"collected"`
	LoansSettled int                  `json:"loans_settled"`
	LoansTouched int                  `json:"loans_touched"`
	Balance      int64                `json:"balance"`
	Transactions []models.Transaction `json:"transactions,omitempty"`
}

// Report aggregates a full sweep across every pupil with overdue loans.
// One pupil failing never stops the rest; failures are reported alongside.
type Report struct {
	TotalProcessed int      `json:"total_processed"`
	TotalCollected int64    `json:"total_collected"`
	Results        []Result `json:"results"`
	Failures       []string `json:"failures,omitempty"`
}

// CollectorParams groups dependencies for the overdue collector.
type CollectorParams struct {
	Accounts accounts.Repository
	Loans    loans.Repository
	Ledger   transactionLog
	Tx       txRunner
	Cache    summaryInvalidator
	Logg     *logger.Logger
}

// Collector sweeps overdue loans against available balances. Each pupil's
// sweep is its own atomic unit, so a batch run makes partial progress even
// when individual pupils fail.
type Collector struct {
	accounts accounts.Repository
	loans    loans.Repository
	ledger   transactionLog
	tx       txRunner
	cache    summaryInvalidator
	logg     *logger.Logger
}

// NewCollector builds an overdue collector.
func NewCollector(params CollectorParams) (*Collector, error) {
	if params.Accounts == nil {
		return nil, errors.New("accounts repo is required")
	}
	if params.Loans == nil {
		return nil, errors.New("loans repo is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("transaction log is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &Collector{
		accounts: params.Accounts,
		loans:    params.Loans,
		ledger:   params.Ledger,
		tx:       params.Tx,
		cache:    params.Cache,
		logg:     params.Logg,
	}, nil
}

// Process sweeps one pupil: overdue loans oldest-first, each repaid from
// whatever balance remains. The balance never goes negative; when it runs
// out the sweep stops and the remainder stays outstanding.
func (c *Collector) Process(ctx context.Context, pupilID uuid.UUID) (*Result, error) {
	if pupilID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pupil id required")
	}

	var result *Result
	err := c.tx.WithTxRetry(ctx, func(tx *gorm.DB) error {
		accountRepo := c.accounts.WithTx(tx)
		loanRepo := c.loans.WithTx(tx)

		account, err := accountRepo.FindActiveByPupilForUpdate(ctx, pupilID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
		}

		now := time.Now().UTC()
		overdue, err := loanRepo.ListOverdueByPupilForUpdate(ctx, pupilID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load overdue loans")
		}

		running := account.Balance
		sweep := &Result{PupilID: pupilID, Balance: running}
		for i := range overdue {
			if running <= 0 {
				break
			}
			loan := overdue[i]
			repay := loan.Outstanding()
			if repay > running {
				repay = running
			}
			if repay <= 0 {
				continue
			}

			newRepaid := loan.AmountRepaid + repay
			status := enums.LoanStatusActive
			if newRepaid == loan.Amount {
				status = enums.LoanStatusPaid
				sweep.LoansSettled++
			}
			if err := loanRepo.UpdateRepayment(ctx, loan.ID, newRepaid, status); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply repayment")
			}

			running -= repay
			loanID := loan.ID
			entry := models.Transaction{
				PupilID:         pupilID,
				AccountID:       account.ID,
				LoanID:          &loanID,
				Type:            enums.TransactionTypeLoanRepayment,
				Amount:          repay,
				Description:     fmt.Sprintf("Overdue collection: %s", loan.Purpose),
				Balance:         running,
				TransactionDate: now,
				AcademicYear:    loan.AcademicYear,
				Term:            loan.Term,
			}
			if err := c.ledger.Append(ctx, tx, &entry); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record collection")
			}
			sweep.Transactions = append(sweep.Transactions, entry)
			sweep.Collected += repay
			sweep.LoansTouched++
		}

		if sweep.Collected > 0 {
			if err := accountRepo.UpdateBalance(ctx, account.ID, running); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
			}
		}
		sweep.Balance = running
		result = sweep
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Collected > 0 && c.cache != nil {
		_ = c.cache.InvalidateSummary(ctx, pupilID.String())
	}
	return result, nil
}

// ProcessAll sweeps every pupil holding at least one overdue loan. Pupils are
// processed independently; a failure is logged and reported without aborting
// the run.
func (c *Collector) ProcessAll(ctx context.Context) (*Report, error) {
	pupilIDs, err := c.loans.ListPupilsWithOverdue(ctx, time.Now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pupils with overdue loans")
	}

	report := &Report{Results: []Result{}}
	for _, pupilID := range pupilIDs {
		result, err := c.Process(ctx, pupilID)
		if err != nil {
			if c.logg != nil {
				c.logg.Error(c.logg.WithPupilID(ctx, pupilID.String()), "overdue sweep failed for pupil", err)
			}
			report.Failures = append(report.Failures, fmt.Sprintf("%s: %s", pupilID, err))
			continue
		}
		report.TotalProcessed++
		report.TotalCollected += result.Collected
		report.Results = append(report.Results, *result)
	}
	return report, nil
}
