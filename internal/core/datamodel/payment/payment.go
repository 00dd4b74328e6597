package payment

import (
	"encoding/json"
	"time"
)

const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
	StatusSandbox    = "SANDBOX"
)

type Payment struct {
	ID                    int64           `gorm:"primaryKey"`
	AppointmentID         string          `gorm:"column:appointment_id;not null;index"`
	PayerID               string          `gorm:"column:payer_id;not null;index"`
	Amount                int64           `gorm:"column:amount;not null"`
	Currency              string          `gorm:"column:currency;not null;default:UGX"`
	Reference             string          `gorm:"column:reference;not null;uniqueIndex"`
	ExternalTransactionID *string         `gorm:"column:external_transaction_id;uniqueIndex"`
	ProviderReference     *string         `gorm:"column:provider_reference"`
	TransactionID         *string         `gorm:"column:transaction_id"`
	Status                string          `gorm:"column:status;not null;default:PENDING;index"`
	PaymentMethod         string          `gorm:"column:payment_method;not null"`
	PhoneNumber           string          `gorm:"column:phone_number;not null"`
	Description           *string         `gorm:"column:description"`
	InitiatedAt           time.Time       `gorm:"column:initiated_at;not null"`
	EstimatedSettlement   *time.Time      `gorm:"column:estimated_settlement"`
	CompletedAt           *time.Time      `gorm:"column:completed_at"`
	FailureReason         *string         `gorm:"column:failure_reason"`
	WebhookAttempts       int             `gorm:"column:webhook_attempts;not null;default:0"`
	LastWebhookAt         *time.Time      `gorm:"column:last_webhook_at"`
	RawGatewayResponse    json.RawMessage `gorm:"column:raw_gateway_response;type:jsonb"`
	RawWebhookPayload     json.RawMessage `gorm:"column:raw_webhook_payload;type:jsonb"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}
