package models

import (
	"time"

	"github.com/google/uuid"
)

// Account holds a pupil's savings balance in integer minor currency units.
// At most one active account exists per pupil; the balance never goes negative.
type Account struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PupilID       uuid.UUID `gorm:"column:pupil_id;type:uuid;not null;index"`
	AccountNumber string    `gorm:"column:account_number;not null;unique"`
	Balance       int64     `gorm:"column:balance;not null;default:0"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
