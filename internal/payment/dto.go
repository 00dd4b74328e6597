package payment

import (
	"strings"

	errors "github.com/frahmantamala/momo-collections/internal"
	"github.com/frahmantamala/momo-collections/internal/core/common/validation"
)

// CreateCollectionRequest is the body of POST /collections. PayerID defaults
// to the authenticated user and may only name that user; PhoneNumber defaults
// to the payer's phone.
type CreateCollectionRequest struct {
	Amount        int64  `json:"amount"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	AppointmentID string `json:"appointment_id"`
	PayerID       string `json:"payer_id,omitempty"`
	Description   string `json:"description,omitempty"`
}

func (r *CreateCollectionRequest) Normalize() {
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.AppointmentID = strings.TrimSpace(r.AppointmentID)
	r.PayerID = strings.TrimSpace(r.PayerID)
	r.Description = strings.TrimSpace(r.Description)
}

// Validate covers structure only; amount bounds and phone ownership are
// checked by the service against configuration.
func (r *CreateCollectionRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("amount", r.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("appointment_id", r.AppointmentID).Required().MaxLength(64)
	validator.Field("payer_id", r.PayerID).MaxLength(64)
	validator.Field("description", r.Description).MaxLength(255)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// CreateCollectionInput is the service-level form of a create request once
// the payer has been resolved.
type CreateCollectionInput struct {
	Amount        int64
	PhoneNumber   string
	AppointmentID string
	PayerID       string
	Description   string
}

func (r *CreateCollectionRequest) ToInput(callerID string) (CreateCollectionInput, error) {
	payerID := r.PayerID
	if payerID == "" {
		payerID = callerID
	}
	if payerID != callerID {
		return CreateCollectionInput{}, errors.NewForbiddenError("collections can only be requested from the authenticated payer", errors.ErrCodePayerNotCaller)
	}
	return CreateCollectionInput{
		Amount:        r.Amount,
		PhoneNumber:   r.PhoneNumber,
		AppointmentID: r.AppointmentID,
		PayerID:       payerID,
		Description:   r.Description,
	}, nil
}

// WebhookUpdate is one reported status for a known external transaction.
type WebhookUpdate struct {
	ExternalTransactionID string
	ReportedStatus        string
	ProviderReference     string
	RawPayload            []byte
}

// WebhookAck is returned to the gateway for every accepted notification.
type WebhookAck struct {
	Received  bool   `json:"received"`
	Outcome   string `json:"outcome"`
	PaymentID *int64 `json:"payment_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

type SweepResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}
