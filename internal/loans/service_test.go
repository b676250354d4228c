package loans

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/brightfields/schoolbank-backend/internal/accounts"
	"github.com/brightfields/schoolbank-backend/pkg/db/models"
	"github.com/brightfields/schoolbank-backend/pkg/enums"
	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
)

type stubRepo struct {
	ordered []*models.Loan
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Create(ctx context.Context, loan *models.Loan) error {
	if loan.ID == uuid.Nil {
		loan.ID = uuid.New()
	}
	s.ordered = append(s.ordered, loan)
	return nil
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	for _, loan := range s.ordered {
		if loan.ID == id {
			copied := *loan
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return s.FindByID(ctx, id)
}

func (s *stubRepo) ListByPupil(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error) {
	out := []models.Loan{}
	for _, loan := range s.ordered {
		if loan.PupilID == pupilID {
			out = append(out, *loan)
		}
	}
	return out, nil
}

func (s *stubRepo) ListActiveByPupil(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error) {
	out := []models.Loan{}
	for _, loan := range s.ordered {
		if loan.PupilID == pupilID && loan.Status == enums.LoanStatusActive {
			out = append(out, *loan)
		}
	}
	return out, nil
}

func (s *stubRepo) ListActiveByPupilForUpdate(ctx context.Context, pupilID uuid.UUID) ([]models.Loan, error) {
	return s.ListActiveByPupil(ctx, pupilID)
}

func (s *stubRepo) ListOverdueByPupilForUpdate(ctx context.Context, pupilID uuid.UUID, asOf time.Time) ([]models.Loan, error) {
	out := []models.Loan{}
	for _, loan := range s.ordered {
		if loan.PupilID == pupilID && loan.Status == enums.LoanStatusActive && loan.RepaymentDate.Before(asOf) {
			out = append(out, *loan)
		}
	}
	return out, nil
}

func (s *stubRepo) ListPupilsWithOverdue(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	out := []uuid.UUID{}
	for _, loan := range s.ordered {
		if loan.Status == enums.LoanStatusActive && loan.RepaymentDate.Before(asOf) && !seen[loan.PupilID] {
			seen[loan.PupilID] = true
			out = append(out, loan.PupilID)
		}
	}
	return out, nil
}

func (s *stubRepo) UpdateRepayment(ctx context.Context, id uuid.UUID, amountRepaid int64, status enums.LoanStatus) error {
	for _, loan := range s.ordered {
		if loan.ID == id {
			loan.AmountRepaid = amountRepaid
			loan.Status = status
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type stubAccounts struct {
	account *models.Account
}

func (s *stubAccounts) WithTx(tx *gorm.DB) accounts.Repository { return s }

func (s *stubAccounts) Create(ctx context.Context, account *models.Account) error { return nil }

func (s *stubAccounts) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if s.account != nil && s.account.ID == id {
		copied := *s.account
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubAccounts) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.FindByID(ctx, id)
}

func (s *stubAccounts) FindActiveByPupil(ctx context.Context, pupilID uuid.UUID) (*models.Account, error) {
	if s.account != nil && s.account.PupilID == pupilID && s.account.IsActive {
		copied := *s.account
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubAccounts) FindActiveByPupilForUpdate(ctx context.Context, pupilID uuid.UUID) (*models.Account, error) {
	return s.FindActiveByPupil(ctx, pupilID)
}

func (s *stubAccounts) UpdateBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	if s.account == nil || s.account.ID != id {
		return gorm.ErrRecordNotFound
	}
	s.account.Balance = balance
	return nil
}

func (s *stubAccounts) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if s.account == nil || s.account.ID != id {
		return gorm.ErrRecordNotFound
	}
	s.account.IsActive = active
	return nil
}

func (s *stubAccounts) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	return false, nil
}

type stubLog struct {
	entries []models.Transaction
}

func (s *stubLog) Append(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	s.entries = append(s.entries, *txn)
	return nil
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTxRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordingCache struct {
	invalidated []string
}

func (r *recordingCache) InvalidateSummary(ctx context.Context, pupilID string) error {
	r.invalidated = append(r.invalidated, pupilID)
	return nil
}

func newService(t *testing.T, repo *stubRepo, accts *stubAccounts, log *stubLog, cache *recordingCache) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Accounts: accts,
		Ledger:   log,
		Tx:       &stubTxRunner{},
		Cache:    cache,
	})
	require.NoError(t, err)
	return svc
}

func TestCreateDisbursesAndLogs(t *testing.T) {
	pupilID := uuid.New()
	account := &models.Account{ID: uuid.New(), PupilID: pupilID, Balance: 150, IsActive: true}
	repo := &stubRepo{}
	accts := &stubAccounts{account: account}
	log := &stubLog{}
	cache := &recordingCache{}
	svc := newService(t, repo, accts, log, cache)

	due := time.Now().Add(30 * 24 * time.Hour)
	loan, err := svc.Create(context.Background(), CreateInput{
		PupilID:       pupilID,
		Amount:        200,
		Purpose:       "field trip",
		RepaymentDate: due,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.LoanStatusActive, loan.Status)
	assert.EqualValues(t, 200, loan.Amount)
	assert.EqualValues(t, 0, loan.AmountRepaid)
	assert.EqualValues(t, 200, loan.Outstanding())
	assert.EqualValues(t, 350, account.Balance)

	require.Len(t, log.entries, 1)
	entry := log.entries[0]
	assert.Equal(t, enums.TransactionTypeLoanDisbursement, entry.Type)
	assert.EqualValues(t, 200, entry.Amount)
	assert.EqualValues(t, 350, entry.Balance)
	require.NotNil(t, entry.LoanID)
	assert.Equal(t, loan.ID, *entry.LoanID)

	assert.Equal(t, []string{pupilID.String()}, cache.invalidated)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	pupilID := uuid.New()
	svc := newService(t, &stubRepo{}, &stubAccounts{}, &stubLog{}, nil)
	due := time.Now().Add(24 * time.Hour)

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"missing pupil", CreateInput{Amount: 100, Purpose: "books", RepaymentDate: due}},
		{"zero amount", CreateInput{PupilID: pupilID, Amount: 0, Purpose: "books", RepaymentDate: due}},
		{"negative amount", CreateInput{PupilID: pupilID, Amount: -10, Purpose: "books", RepaymentDate: due}},
		{"blank purpose", CreateInput{PupilID: pupilID, Amount: 100, Purpose: "   ", RepaymentDate: due}},
		{"missing repayment date", CreateInput{PupilID: pupilID, Amount: 100, Purpose: "books"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestCreateRequiresActiveAccount(t *testing.T) {
	pupilID := uuid.New()
	inactive := &models.Account{ID: uuid.New(), PupilID: pupilID, Balance: 0, IsActive: false}
	log := &stubLog{}
	svc := newService(t, &stubRepo{}, &stubAccounts{account: inactive}, log, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		PupilID:       pupilID,
		Amount:        100,
		Purpose:       "uniform",
		RepaymentDate: time.Now().Add(24 * time.Hour),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Empty(t, log.entries)
}

func TestListActiveReturnsOldestFirst(t *testing.T) {
	pupilID := uuid.New()
	repo := &stubRepo{}
	first := &models.Loan{ID: uuid.New(), PupilID: pupilID, Amount: 30, Status: enums.LoanStatusActive}
	paid := &models.Loan{ID: uuid.New(), PupilID: pupilID, Amount: 20, AmountRepaid: 20, Status: enums.LoanStatusPaid}
	second := &models.Loan{ID: uuid.New(), PupilID: pupilID, Amount: 50, Status: enums.LoanStatusActive}
	repo.ordered = append(repo.ordered, first, paid, second)

	svc := newService(t, repo, &stubAccounts{}, &stubLog{}, nil)

	active, err := svc.ListActive(context.Background(), pupilID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, second.ID, active[1].ID)

	all, err := svc.List(context.Background(), pupilID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListRequiresPupilID(t *testing.T) {
	svc := newService(t, &stubRepo{}, &stubAccounts{}, &stubLog{}, nil)

	_, err := svc.List(context.Background(), uuid.Nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.ListActive(context.Background(), uuid.Nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
