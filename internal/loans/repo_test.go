package loans

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brightfields/schoolbank-backend/pkg/db/models"
	"github.com/brightfields/schoolbank-backend/pkg/enums"
)

func setupLoansTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS loans (
  id TEXT PRIMARY KEY,
  pupil_id TEXT NOT NULL,
  account_id TEXT NOT NULL,
  amount INTEGER NOT NULL,
  amount_repaid INTEGER NOT NULL DEFAULT 0,
  purpose TEXT NOT NULL,
  repayment_date DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  academic_year TEXT,
  term TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(ddl).Error)
	return conn
}

func seedLoan(t *testing.T, db *gorm.DB, pupilID uuid.UUID, amount int64, due, createdAt time.Time, status enums.LoanStatus) *models.Loan {
	t.Helper()
	loan := &models.Loan{
		ID:            uuid.New(),
		PupilID:       pupilID,
		AccountID:     uuid.New(),
		Amount:        amount,
		Purpose:       "books",
		RepaymentDate: due,
		Status:        status,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	require.NoError(t, db.Create(loan).Error)
	return loan
}

func TestRepositoryActiveOrderingIsRepaymentPriority(t *testing.T) {
	db := setupLoansTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	pupilID := uuid.New()
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	newest := seedLoan(t, db, pupilID, 50, due, base.Add(48*time.Hour), enums.LoanStatusActive)
	oldest := seedLoan(t, db, pupilID, 30, due, base, enums.LoanStatusActive)
	seedLoan(t, db, pupilID, 20, due, base.Add(time.Hour), enums.LoanStatusPaid)
	seedLoan(t, db, uuid.New(), 99, due, base, enums.LoanStatusActive)

	active, err := repo.ListActiveByPupil(ctx, pupilID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, oldest.ID, active[0].ID)
	assert.Equal(t, newest.ID, active[1].ID)

	all, err := repo.ListByPupil(ctx, pupilID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepositoryListPupilsWithOverdue(t *testing.T) {
	db := setupLoansTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	created := asOf.Add(-30 * 24 * time.Hour)

	late := uuid.New()
	seedLoan(t, db, late, 40, asOf.Add(-24*time.Hour), created, enums.LoanStatusActive)
	seedLoan(t, db, late, 10, asOf.Add(-48*time.Hour), created, enums.LoanStatusActive)

	onTime := uuid.New()
	seedLoan(t, db, onTime, 25, asOf.Add(24*time.Hour), created, enums.LoanStatusActive)

	settled := uuid.New()
	seedLoan(t, db, settled, 25, asOf.Add(-24*time.Hour), created, enums.LoanStatusPaid)

	pupilIDs, err := repo.ListPupilsWithOverdue(ctx, asOf)
	require.NoError(t, err)
	// the pupil with two overdue loans appears once
	require.Len(t, pupilIDs, 1)
	assert.Equal(t, late, pupilIDs[0])
}

func TestRepositoryUpdateRepayment(t *testing.T) {
	db := setupLoansTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	loan := seedLoan(t, db, uuid.New(), 60, created.Add(30*24*time.Hour), created, enums.LoanStatusActive)

	require.NoError(t, repo.UpdateRepayment(ctx, loan.ID, 60, enums.LoanStatusPaid))

	found, err := repo.FindByID(ctx, loan.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 60, found.AmountRepaid)
	assert.Equal(t, enums.LoanStatusPaid, found.Status)
	assert.EqualValues(t, 0, found.Outstanding())
}
