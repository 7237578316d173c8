package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, reservation *Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// TransitionStatus moves the reservation from one status to another.
	// Returns false when the reservation was not in the expected status,
	// which callers treat as an idempotent no-op or a conflict.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)

	// ExpiredPending lists PENDING reservations whose hold has lapsed.
	ExpiredPending(ctx context.Context, before time.Time, limit int) ([]Reservation, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, reservation *Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	var reservation Reservation
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Reservation{}).
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

func (r *repository) ExpiredPending(ctx context.Context, before time.Time, limit int) ([]Reservation, error) {
	var expired []Reservation
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Where("status = ? AND hold_expires_at < ?", StatusPending, before).
		Limit(limit).
		Find(&expired).Error
	if err != nil {
		return nil, err
	}
	return expired, nil
}
