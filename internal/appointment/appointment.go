package appointment

import (
	"context"

	appointmentDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/appointment"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id string) (*appointmentDatamodel.Appointment, error)
	Create(ctx context.Context, a *appointmentDatamodel.Appointment) error
	// AppendPayment adds paymentID to the appointment's payment list and sets
	// its payment flag, both in one write.
	AppendPayment(ctx context.Context, id string, paymentID int64, paymentStatus string) error
	// SetPaymentStatus moves the payment flag unless the appointment is already paid.
	SetPaymentStatus(ctx context.Context, id string, paymentStatus string) error
}
