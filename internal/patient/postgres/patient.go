package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	internal "github.com/frahmantamala/momo-collections/internal"
	patientDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/patient"
	"github.com/frahmantamala/momo-collections/internal/patient"
)

type PatientRepository struct {
	db *gorm.DB
}

func NewPatientRepository(db *gorm.DB) patient.RepositoryAPI {
	return &PatientRepository{
		db: db,
	}
}

func (r *PatientRepository) GetByID(ctx context.Context, id string) (*patientDatamodel.Patient, error) {
	var p patientDatamodel.Patient
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPayerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PatientRepository) Create(ctx context.Context, p *patientDatamodel.Patient) error {
	return r.db.WithContext(ctx).Create(p).Error
}
