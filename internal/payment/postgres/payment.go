package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	internal "github.com/frahmantamala/momo-collections/internal"
	"github.com/frahmantamala/momo-collections/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/momo-collections/internal/payment"
)

var nonTerminalStatuses = []string{payment.StatusPending, payment.StatusProcessing}

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return r.first(ctx, "reference = ?", reference)
}

func (r *PaymentRepository) GetByExternalTransactionID(ctx context.Context, externalTransactionID string) (*payment.Payment, error) {
	return r.first(ctx, "external_transaction_id = ?", externalTransactionID)
}

func (r *PaymentRepository) first(ctx context.Context, query string, arg interface{}) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).Where(query, arg).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&payment.Payment{}).Where("reference = ?", reference).Count(&count).Error
	return count > 0, err
}

func (r *PaymentRepository) HasSuccessfulForAppointment(ctx context.Context, appointmentID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&payment.Payment{}).
		Where("appointment_id = ? AND status = ?", appointmentID, payment.StatusSuccessful).
		Count(&count).Error
	return count > 0, err
}

func (r *PaymentRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.WithContext(ctx).Where("appointment_id = ?", appointmentID).Order("created_at DESC, id DESC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) ListNonTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	q := r.db.WithContext(ctx).
		Where("status IN ? AND initiated_at < ?", nonTerminalStatuses, cutoff).
		Order("initiated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&payments).Error
	return payments, err
}

// RecordWebhook bumps the attempt counter in SQL so concurrent deliveries
// are all counted.
func (r *PaymentRepository) RecordWebhook(ctx context.Context, id int64, rawPayload json.RawMessage, receivedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&payment.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"webhook_attempts":    gorm.Expr("webhook_attempts + 1"),
		"raw_webhook_payload": rawPayload,
		"last_webhook_at":     receivedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) FillProviderReference(ctx context.Context, id int64, providerReference string) error {
	return r.db.WithContext(ctx).Model(&payment.Payment{}).
		Where("id = ? AND (provider_reference IS NULL OR provider_reference = '')", id).
		Update("provider_reference", providerReference).Error
}

// Transition writes t only while the row's status is one of from. The
// returned bool reports whether this call won.
func (r *PaymentRepository) Transition(ctx context.Context, id int64, from []string, t paymentpkg.Transition) (bool, error) {
	updates := map[string]interface{}{
		"status": t.Status,
	}
	if t.CompletedAt != nil {
		updates["completed_at"] = *t.CompletedAt
	}
	if t.TransactionID != nil {
		updates["transaction_id"] = *t.TransactionID
	}
	if t.FailureReason != nil {
		updates["failure_reason"] = *t.FailureReason
	}
	if len(t.RawGatewayResponse) > 0 {
		updates["raw_gateway_response"] = t.RawGatewayResponse
	}

	res := r.db.WithContext(ctx).Model(&payment.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PaymentRepository) CountByStatus(ctx context.Context) ([]paymentpkg.StatusCount, error) {
	var rows []paymentpkg.StatusCount
	err := r.db.WithContext(ctx).Model(&payment.Payment{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Group("status").
		Scan(&rows).Error
	return rows, err
}
