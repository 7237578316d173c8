package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, payment *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// TransitionStatus moves the payment from one saga state to another.
	// Returns false when the payment was not in the expected state, which
	// handlers treat as a duplicate-delivery no-op.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)

	// SetChargeRef records the external charge reference as soon as the
	// charge lands, before any downstream step can fail.
	SetChargeRef(ctx context.Context, id uuid.UUID, ref string) error
	MarkRefunded(ctx context.Context, id uuid.UUID) error
	SetLastError(ctx context.Context, id uuid.UUID, message string) error

	// StuckInStatus lists payments sitting in the given status since
	// before the given deadline.
	StuckInStatus(ctx context.Context, status Status, before time.Time, limit int) ([]Payment, error)

	RecordDeadLetter(ctx context.Context, letter *DeadLetter) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, payment *Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetChargeRef(ctx context.Context, id uuid.UUID, ref string) error {
	return r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"charge_ref": ref,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"refunded":   true,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) SetLastError(ctx context.Context, id uuid.UUID, message string) error {
	return r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_error": message,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) StuckInStatus(ctx context.Context, status Status, before time.Time, limit int) ([]Payment, error) {
	var stuck []Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, before).
		Limit(limit).
		Find(&stuck).Error
	if err != nil {
		return nil, err
	}
	return stuck, nil
}

func (r *repository) RecordDeadLetter(ctx context.Context, letter *DeadLetter) error {
	return r.db.WithContext(ctx).Create(letter).Error
}
