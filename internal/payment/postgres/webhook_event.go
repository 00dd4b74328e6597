package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/momo-collections/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/momo-collections/internal/payment"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) paymentpkg.WebhookEventRepositoryAPI {
	return &WebhookEventRepository{
		db: db,
	}
}

func (r *WebhookEventRepository) Create(ctx context.Context, e *payment.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *WebhookEventRepository) UpdateOutcome(ctx context.Context, id int64, outcome string, paymentID *int64, errMsg *string, processedAt time.Time) error {
	updates := map[string]interface{}{
		"outcome":      outcome,
		"processed_at": processedAt,
	}
	if paymentID != nil {
		updates["payment_id"] = *paymentID
	}
	if errMsg != nil {
		updates["error"] = *errMsg
	}
	return r.db.WithContext(ctx).Model(&payment.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
