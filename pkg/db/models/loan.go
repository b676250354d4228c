package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/brightfields/schoolbank-backend/pkg/enums"
)

// Loan records money disbursed to a pupil against their account.
// AmountRepaid stays within [0, Amount]; status is paid exactly when the two
// are equal, and cancellation forces AmountRepaid to Amount for closure.
type Loan struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PupilID       uuid.UUID        `gorm:"column:pupil_id;type:uuid;not null;index"`
	AccountID     uuid.UUID        `gorm:"column:account_id;type:uuid;not null;index"`
	Amount        int64            `gorm:"column:amount;not null"`
	AmountRepaid  int64            `gorm:"column:amount_repaid;not null;default:0"`
	Purpose       string           `gorm:"column:purpose;not null"`
	RepaymentDate time.Time        `gorm:"column:repayment_date;not null"`
	Status        enums.LoanStatus `gorm:"column:status;type:loan_status_enum;not null;default:'active'"`
	AcademicYear  *string          `gorm:"column:academic_year"`
	Term          *string          `gorm:"column:term"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// Outstanding returns the unpaid remainder of the loan.
func (l Loan) Outstanding() int64 {
	return l.Amount - l.AmountRepaid
}
