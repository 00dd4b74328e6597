package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
)

func newBaseEvent(eventType string, data map[string]any) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// PaymentCompletedEvent is published once a collection reaches SUCCESSFUL.
type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID             int64  `json:"payment_id"`
	AppointmentID         string `json:"appointment_id"`
	Reference             string `json:"reference"`
	ExternalTransactionID string `json:"external_transaction_id"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
	TransactionID         string `json:"transaction_id"`
}

func NewPaymentCompletedEvent(paymentID int64, appointmentID, reference, externalTransactionID string, amount int64, currency, transactionID string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: newBaseEvent(EventTypePaymentCompleted, map[string]any{
			"payment_id":              paymentID,
			"appointment_id":          appointmentID,
			"reference":               reference,
			"external_transaction_id": externalTransactionID,
			"amount":                  amount,
			"currency":                currency,
			"transaction_id":          transactionID,
		}),
		PaymentID:             paymentID,
		AppointmentID:         appointmentID,
		Reference:             reference,
		ExternalTransactionID: externalTransactionID,
		Amount:                amount,
		Currency:              currency,
		TransactionID:         transactionID,
	}
}

// PaymentFailedEvent is published for FAILED and CANCELLED outcomes.
type PaymentFailedEvent struct {
	BaseEvent
	PaymentID             int64  `json:"payment_id"`
	AppointmentID         string `json:"appointment_id"`
	Reference             string `json:"reference"`
	ExternalTransactionID string `json:"external_transaction_id"`
	Amount                int64  `json:"amount"`
	Status                string `json:"status"`
	FailureReason         string `json:"failure_reason"`
}

func NewPaymentFailedEvent(paymentID int64, appointmentID, reference, externalTransactionID string, amount int64, status, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: newBaseEvent(EventTypePaymentFailed, map[string]any{
			"payment_id":              paymentID,
			"appointment_id":          appointmentID,
			"reference":               reference,
			"external_transaction_id": externalTransactionID,
			"amount":                  amount,
			"status":                  status,
			"failure_reason":          failureReason,
		}),
		PaymentID:             paymentID,
		AppointmentID:         appointmentID,
		Reference:             reference,
		ExternalTransactionID: externalTransactionID,
		Amount:                amount,
		Status:                status,
		FailureReason:         failureReason,
	}
}
