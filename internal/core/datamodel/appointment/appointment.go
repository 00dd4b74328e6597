package appointment

import "time"

// Coarse payment flags kept on the appointment row.
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

type Appointment struct {
	ID            string    `gorm:"column:id;primaryKey"`
	PatientID     string    `gorm:"column:patient_id;not null;index"`
	ScheduledAt   time.Time `gorm:"column:scheduled_at"`
	PaymentStatus string    `gorm:"column:payment_status;not null;default:unpaid"`
	PaymentIDs    []int64   `gorm:"column:payment_ids;serializer:json"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Appointment) TableName() string {
	return "appointments"
}
