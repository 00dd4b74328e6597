package patient

import (
	"context"

	patientDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/patient"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id string) (*patientDatamodel.Patient, error)
	Create(ctx context.Context, p *patientDatamodel.Patient) error
}
