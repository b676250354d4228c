package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brightfields/schoolbank-backend/pkg/db/models"
	"github.com/brightfields/schoolbank-backend/pkg/enums"
)

// Repository is the persistence surface for loans. Active listings are always
// ordered oldest-created-first; that ordering defines repayment priority.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, loan *models.Loan) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	ListByPupil(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error)
	ListActiveByPupil(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error)
	ListActiveByPupilForUpdate(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error)
	ListOverdueByPupilForUpdate(ctx context.Context, pupilID uuid.UUID, asOf time.Time) ([]models.Loan, error)
	ListPupilsWithOverdue(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)
	UpdateRepayment(ctx context.Context, id uuid.UUID, amountRepaid int64, status enums.LoanStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a loans repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *repository) ListByPupil(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("pupil_id = ?", pupilID).
		Order("created_at ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) ListActiveByPupil(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("pupil_id = ? AND status = ?", pupilID, enums.LoanStatusActive).
		Order("created_at ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) ListActiveByPupilForUpdate(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pupil_id = ? AND status = ?", pupilID, enums.LoanStatusActive).
		Order("created_at ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) ListOverdueByPupilForUpdate(ctx context.Context, pupilID uuid.UUID, asOf time.Time) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pupil_id = ? AND status = ? AND repayment_date < ?", pupilID, enums.LoanStatusActive, asOf).
		Order("created_at ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) ListPupilsWithOverdue(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	var pupilIDs []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Distinct("pupil_id").
		Where("status = ? AND repayment_date < ?", enums.LoanStatusActive, asOf).
		Pluck("pupil_id", &pupilIDs).Error
	if err != nil {
		return nil, err
	}
	return pupilIDs, nil
}

func (r *repository) UpdateRepayment(ctx context.Context, id uuid.UUID, amountRepaid int64, status enums.LoanStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"amount_repaid": amountRepaid,
			"status":        status,
		}).Error
}
