package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	internal "github.com/frahmantamala/momo-collections/internal"
	"github.com/frahmantamala/momo-collections/internal/appointment"
	appointmentDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/appointment"
)

type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) appointment.RepositoryAPI {
	return &AppointmentRepository{
		db: db,
	}
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*appointmentDatamodel.Appointment, error) {
	var a appointmentDatamodel.Appointment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, a *appointmentDatamodel.Appointment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *AppointmentRepository) AppendPayment(ctx context.Context, id string, paymentID int64, paymentStatus string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a appointmentDatamodel.Appointment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&a).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return internal.ErrAppointmentNotFound
			}
			return err
		}

		for _, existing := range a.PaymentIDs {
			if existing == paymentID {
				return nil
			}
		}
		a.PaymentIDs = append(a.PaymentIDs, paymentID)

		updates := map[string]interface{}{"payment_ids": a.PaymentIDs}
		if a.PaymentStatus != appointmentDatamodel.PaymentStatusPaid {
			updates["payment_status"] = paymentStatus
		}
		return tx.Model(&appointmentDatamodel.Appointment{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (r *AppointmentRepository) SetPaymentStatus(ctx context.Context, id string, paymentStatus string) error {
	res := r.db.WithContext(ctx).
		Model(&appointmentDatamodel.Appointment{}).
		Where("id = ? AND payment_status <> ?", id, appointmentDatamodel.PaymentStatusPaid).
		Update("payment_status", paymentStatus)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&appointmentDatamodel.Appointment{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return internal.ErrAppointmentNotFound
		}
	}
	return nil
}
