package patient

import (
	"context"
	"log/slog"

	patientDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/patient"
)

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetPayer resolves the patient who pays for a collection.
func (s *Service) GetPayer(ctx context.Context, id string) (*patientDatamodel.Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Debug("payer lookup failed", "error", err, "payer_id", id)
		return nil, err
	}
	return p, nil
}
