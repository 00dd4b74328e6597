package payment

import (
	"encoding/json"
	"time"
)

// Outcomes recorded against a received webhook.
const (
	WebhookReceived  = "received"
	WebhookProcessed = "processed"
	WebhookIgnored   = "ignored"
	WebhookUnmatched = "unmatched"
	WebhookFailed    = "failed"
)

// WebhookEvent is the receipt log of every parseable gateway notification.
type WebhookEvent struct {
	ID              int64           `gorm:"primaryKey"`
	Event           string          `gorm:"column:event;not null"`
	TransactionUUID string          `gorm:"column:transaction_uuid;not null;index"`
	TransactionType string          `gorm:"column:transaction_type;not null"`
	ReportedStatus  string          `gorm:"column:reported_status;not null"`
	SenderIP        string          `gorm:"column:sender_ip"`
	Headers         json.RawMessage `gorm:"column:headers;type:jsonb"`
	Payload         json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Outcome         string          `gorm:"column:outcome;not null;default:received"`
	PaymentID       *int64          `gorm:"column:payment_id"`
	Error           *string         `gorm:"column:error"`
	ReceivedAt      time.Time       `gorm:"column:received_at;not null"`
	ProcessedAt     *time.Time      `gorm:"column:processed_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
