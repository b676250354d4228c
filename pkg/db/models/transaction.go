package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/brightfields/schoolbank-backend/pkg/enums"
)

// Transaction is an append-mostly ledger entry. Balance is the account balance
// immediately after the entry was applied, captured at write time inside the
// same database transaction as the balance update. Rows are only mutated to
// set the revert markers, and only deleted by the maintenance purge.
type Transaction struct {
	ID                    uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PupilID               uuid.UUID             `gorm:"column:pupil_id;type:uuid;not null;index"`
	AccountID             uuid.UUID             `gorm:"column:account_id;type:uuid;not null;index"`
	LoanID                *uuid.UUID            `gorm:"column:loan_id;type:uuid;index"`
	Type                  enums.TransactionType `gorm:"column:type;type:transaction_type_enum;not null"`
	Amount                int64                 `gorm:"column:amount;not null"`
	Description           string                `gorm:"column:description;not null"`
	Balance               int64                 `gorm:"column:balance;not null"`
	TransactionDate       time.Time             `gorm:"column:transaction_date;not null;index"`
	AcademicYear          *string               `gorm:"column:academic_year"`
	Term                  *string               `gorm:"column:term"`
	IsReverted            bool                  `gorm:"column:is_reverted;not null;default:false"`
	RevertedAt            *time.Time            `gorm:"column:reverted_at"`
	OriginalTransactionID *uuid.UUID            `gorm:"column:original_transaction_id;type:uuid"`
	CreatedAt             time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// Delta returns the signed effect of the entry on the account balance.
func (t Transaction) Delta() int64 {
	if t.Type.IsCredit() {
		return t.Amount
	}
	return -t.Amount
}
