package pupils

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfields/schoolbank-backend/pkg/db/models"
	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
)

// Directory is the ledger's view of the pupil directory service. The ledger
// never writes pupil records; it only validates references and fetches names
// for transaction descriptions.
type Directory interface {
	Find(ctx context.Context, pupilID uuid.UUID) (*models.Pupil, error)
	Exists(ctx context.Context, pupilID uuid.UUID) (bool, error)
}

type directory struct {
	db *gorm.DB
}

// NewDirectory builds a read-only directory lookup against the shared database.
func NewDirectory(db *gorm.DB) Directory {
	return &directory{db: db}
}

func (d *directory) Find(ctx context.Context, pupilID uuid.UUID) (*models.Pupil, error) {
	var pupil models.Pupil
	err := d.db.WithContext(ctx).Where("id = ?", pupilID).First(&pupil).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pupil not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pupil")
	}
	return &pupil, nil
}

func (d *directory) Exists(ctx context.Context, pupilID uuid.UUID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.Pupil{}).Where("id = ?", pupilID).Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pupil existence")
	}
	return count > 0, nil
}
