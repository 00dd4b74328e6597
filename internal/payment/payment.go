package payment

import (
	"context"
	"encoding/json"
	"time"

	appointmentDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/appointment"
	patientDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/patient"
	"github.com/frahmantamala/momo-collections/internal/core/datamodel/payment"
	gw "github.com/frahmantamala/momo-collections/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/momo-collections/internal/core/events"
)

// RepositoryAPI is the Payment Record Store. Status writes go through
// Transition, which only applies when the row is still in one of the given
// source statuses.
type RepositoryAPI interface {
	Create(ctx context.Context, p *payment.Payment) error
	GetByID(ctx context.Context, id int64) (*payment.Payment, error)
	GetByReference(ctx context.Context, reference string) (*payment.Payment, error)
	GetByExternalTransactionID(ctx context.Context, externalTransactionID string) (*payment.Payment, error)
	ExistsByReference(ctx context.Context, reference string) (bool, error)
	HasSuccessfulForAppointment(ctx context.Context, appointmentID string) (bool, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]*payment.Payment, error)
	ListNonTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Payment, error)
	RecordWebhook(ctx context.Context, id int64, rawPayload json.RawMessage, receivedAt time.Time) error
	FillProviderReference(ctx context.Context, id int64, providerReference string) error
	Transition(ctx context.Context, id int64, from []string, t Transition) (bool, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

type WebhookEventRepositoryAPI interface {
	Create(ctx context.Context, e *payment.WebhookEvent) error
	UpdateOutcome(ctx context.Context, id int64, outcome string, paymentID *int64, errMsg *string, processedAt time.Time) error
}

type GatewayAPI interface {
	Provider() string
	CreateCollection(ctx context.Context, req *gw.CollectionRequest) (*gw.CollectionResponse, error)
	GetCollectionDetails(ctx context.Context, transactionUUID string) (*gw.CollectionResponse, error)
}

// AppointmentStore is the slice of the appointment collaborator this engine
// reads and writes.
type AppointmentStore interface {
	GetAppointment(ctx context.Context, id string) (*appointmentDatamodel.Appointment, error)
	AttachPayment(ctx context.Context, appointmentID string, paymentID int64) error
	MarkPaymentComplete(ctx context.Context, appointmentID string, paymentID int64) error
	MarkPaymentFailed(ctx context.Context, appointmentID string, paymentID int64, reason string) error
}

type PayerStore interface {
	GetPayer(ctx context.Context, id string) (*patientDatamodel.Patient, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Transition is a single compare-and-set status write.
type Transition struct {
	Status             string
	CompletedAt        *time.Time
	TransactionID      *string
	FailureReason      *string
	RawGatewayResponse json.RawMessage
}

type StatusCount struct {
	Status string
	Count  int64
	Amount int64
}

type Statistics struct {
	Total            int64            `json:"total"`
	ByStatus         map[string]int64 `json:"by_status"`
	SuccessfulAmount int64            `json:"successful_amount"`
	Currency         string           `json:"currency"`
}

type View struct {
	ID                    int64      `json:"id"`
	AppointmentID         string     `json:"appointment_id"`
	PayerID               string     `json:"payer_id"`
	Amount                int64      `json:"amount"`
	Currency              string     `json:"currency"`
	Reference             string     `json:"reference"`
	ExternalTransactionID string     `json:"external_transaction_id,omitempty"`
	ProviderReference     string     `json:"provider_reference,omitempty"`
	TransactionID         string     `json:"transaction_id,omitempty"`
	Status                string     `json:"status"`
	PaymentMethod         string     `json:"payment_method"`
	PhoneNumber           string     `json:"phone_number"`
	Description           string     `json:"description,omitempty"`
	InitiatedAt           time.Time  `json:"initiated_at"`
	EstimatedSettlement   *time.Time `json:"estimated_settlement,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	FailureReason         string     `json:"failure_reason,omitempty"`
	WebhookAttempts       int        `json:"webhook_attempts"`
	LastWebhookAt         *time.Time `json:"last_webhook_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func ToView(p *payment.Payment) *View {
	if p == nil {
		return nil
	}
	return &View{
		ID:                    p.ID,
		AppointmentID:         p.AppointmentID,
		PayerID:               p.PayerID,
		Amount:                p.Amount,
		Currency:              p.Currency,
		Reference:             p.Reference,
		ExternalTransactionID: deref(p.ExternalTransactionID),
		ProviderReference:     deref(p.ProviderReference),
		TransactionID:         deref(p.TransactionID),
		Status:                p.Status,
		PaymentMethod:         p.PaymentMethod,
		PhoneNumber:           p.PhoneNumber,
		Description:           deref(p.Description),
		InitiatedAt:           p.InitiatedAt,
		EstimatedSettlement:   p.EstimatedSettlement,
		CompletedAt:           p.CompletedAt,
		FailureReason:         deref(p.FailureReason),
		WebhookAttempts:       p.WebhookAttempts,
		LastWebhookAt:         p.LastWebhookAt,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

func ToViews(ps []*payment.Payment) []*View {
	out := make([]*View, 0, len(ps))
	for _, p := range ps {
		out = append(out, ToView(p))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
