package maintenance

import (
	"context"
	"errors"

	"gorm.io/gorm"

	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
	"github.com/brightfields/schoolbank-backend/pkg/logger"
)

type txRunner interface {
	WithTxRetry(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type summaryFlusher interface {
	FlushSummaries(ctx context.Context) error
}

// Repository exposes the bulk operations maintenance needs. Each call works
// on at most limit rows so one huge table never pins a single transaction.
type Repository interface {
	DeleteTransactionsBatch(ctx context.Context, tx *gorm.DB, limit int) (int64, error)
	ResetAccountBalancesBatch(ctx context.Context, tx *gorm.DB, limit int) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository builds a GORM-backed maintenance repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *gormRepository) DeleteTransactionsBatch(ctx context.Context, tx *gorm.DB, limit int) (int64, error) {
	result := r.handle(tx).WithContext(ctx).Exec(
		`DELETE FROM transactions WHERE id IN (SELECT id FROM transactions LIMIT ?)`, limit)
	return result.RowsAffected, result.Error
}

func (r *gormRepository) ResetAccountBalancesBatch(ctx context.Context, tx *gorm.DB, limit int) (int64, error) {
	result := r.handle(tx).WithContext(ctx).Exec(
		`UPDATE accounts SET balance = 0, updated_at = NOW()
		 WHERE id IN (SELECT id FROM accounts WHERE balance <> 0 LIMIT ?)`, limit)
	return result.RowsAffected, result.Error
}

// ServiceParams groups dependencies for maintenance operations.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Cache     summaryFlusher
	BatchSize int
	Logg      *logger.Logger
}

// Service runs destructive bulk operations in bounded batches. Each batch is
// its own transaction, so a failure mid-run leaves earlier batches applied.
type Service struct {
	repo      Repository
	tx        txRunner
	cache     summaryFlusher
	batchSize int
	logg      *logger.Logger
}

const defaultBatchSize = 500

// NewService builds a maintenance service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Service{
		repo:      params.Repo,
		tx:        params.Tx,
		cache:     params.Cache,
		batchSize: batchSize,
		logg:      params.Logg,
	}, nil
}

// PurgeTransactions deletes every ledger entry and returns the number removed.
func (s *Service) PurgeTransactions(ctx context.Context) (int64, error) {
	purged, err := s.runBatches(ctx, "purge transactions", s.repo.DeleteTransactionsBatch)
	if err != nil {
		return purged, err
	}
	s.flush(ctx)
	return purged, nil
}

// ResetBalances zeroes every non-zero account balance and returns the number
// of accounts touched. Loans and the transaction log are left alone.
func (s *Service) ResetBalances(ctx context.Context) (int64, error) {
	reset, err := s.runBatches(ctx, "reset balances", s.repo.ResetAccountBalancesBatch)
	if err != nil {
		return reset, err
	}
	s.flush(ctx)
	return reset, nil
}

// runBatches drives op until it reports fewer rows than the batch size.
// The running total is returned even on error so callers can report partial
// progress.
func (s *Service) runBatches(ctx context.Context, label string, op func(ctx context.Context, tx *gorm.DB, limit int) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, pkgerrors.Wrap(pkgerrors.CodeInternal, err, label)
		}

		var affected int64
		err := s.tx.WithTxRetry(ctx, func(tx *gorm.DB) error {
			n, err := op(ctx, tx, s.batchSize)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, label)
			}
			affected = n
			return nil
		})
		if err != nil {
			return total, err
		}

		total += affected
		if affected < int64(s.batchSize) {
			break
		}
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "affected", total), label+" completed")
	}
	return total, nil
}

func (s *Service) flush(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.FlushSummaries(ctx)
}
