package appointment

import (
	"context"
	"log/slog"

	appointmentDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/appointment"
)

// Service is the narrow appointment surface the payment engine consumes.
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

func (s *Service) GetAppointment(ctx context.Context, id string) (*appointmentDatamodel.Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) AttachPayment(ctx context.Context, appointmentID string, paymentID int64) error {
	if err := s.repo.AppendPayment(ctx, appointmentID, paymentID, appointmentDatamodel.PaymentStatusPending); err != nil {
		s.logger.Error("failed to attach payment to appointment", "error", err, "appointment_id", appointmentID, "payment_id", paymentID)
		return err
	}
	s.logger.Info("payment attached to appointment", "appointment_id", appointmentID, "payment_id", paymentID)
	return nil
}

func (s *Service) MarkPaymentComplete(ctx context.Context, appointmentID string, paymentID int64) error {
	if err := s.repo.SetPaymentStatus(ctx, appointmentID, appointmentDatamodel.PaymentStatusPaid); err != nil {
		s.logger.Error("failed to mark appointment paid", "error", err, "appointment_id", appointmentID, "payment_id", paymentID)
		return err
	}
	s.logger.Info("appointment marked paid", "appointment_id", appointmentID, "payment_id", paymentID)
	return nil
}

func (s *Service) MarkPaymentFailed(ctx context.Context, appointmentID string, paymentID int64, reason string) error {
	if err := s.repo.SetPaymentStatus(ctx, appointmentID, appointmentDatamodel.PaymentStatusFailed); err != nil {
		s.logger.Error("failed to mark appointment payment failed", "error", err, "appointment_id", appointmentID, "payment_id", paymentID)
		return err
	}
	s.logger.Info("appointment payment marked failed", "appointment_id", appointmentID, "payment_id", paymentID, "reason", reason)
	return nil
}
