package seats

import (
	"context"
	"time"

	"showtix/internal/shared/apperr"

	"gorm.io/gorm"
)

type Repository interface {
	GetSeats(ctx context.Context, showID int64, seatIDs []int64) ([]Seat, error)
	ListSeats(ctx context.Context, showID int64) ([]Seat, error)

	// HoldSeats transitions all seats AVAILABLE -> HELD in one transaction
	// with a per-seat version CAS. Any seat in another state fails the
	// whole batch.
	HoldSeats(ctx context.Context, showID int64, seatIDs []int64) ([]Seat, error)

	// ConfirmSeats transitions HELD -> RESERVED, re-checking the versions
	// captured at hold time.
	ConfirmSeats(ctx context.Context, showID int64, versions map[int64]int64) error

	// ReleaseSeats returns HELD or RESERVED seats to AVAILABLE.
	ReleaseSeats(ctx context.Context, showID int64, seatIDs []int64) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetSeats(ctx context.Context, showID int64, seatIDs []int64) ([]Seat, error) {
	var result []Seat
	err := r.db.WithContext(ctx).
		Where("show_id = ? AND id IN ?", showID, seatIDs).
		Order("id").
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *repository) ListSeats(ctx context.Context, showID int64) ([]Seat, error) {
	var result []Seat
	err := r.db.WithContext(ctx).
		Where("show_id = ?", showID).
		Order("id").
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *repository) HoldSeats(ctx context.Context, showID int64, seatIDs []int64) ([]Seat, error) {
	var held []Seat

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []Seat
		if err := tx.Where("show_id = ? AND id IN ?", showID, seatIDs).
			Order("id").
			Find(&current).Error; err != nil {
			return err
		}
		if len(current) != len(seatIDs) {
			return apperr.NotFound("one or more seats do not exist for this show")
		}

		for _, seat := range current {
			if seat.Status != SeatAvailable {
				return apperr.Conflict(apperr.CodeSeatUnavailable, "one or more seats are no longer available")
			}
		}

		for _, seat := range current {
			res := tx.Model(&Seat{}).
				Where("id = ? AND status = ? AND version = ?", seat.ID, SeatAvailable, seat.Version).
				Updates(map[string]interface{}{
					"status":     SeatHeld,
					"version":    seat.Version + 1,
					"updated_at": time.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Version moved underneath us: a stale read or an expired
				// lock lease let someone else in first.
				return apperr.Conflict(apperr.CodeSeatUnavailable, "one or more seats are no longer available")
			}

			seat.Status = SeatHeld
			seat.Version++
			held = append(held, seat)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return held, nil
}

func (r *repository) ConfirmSeats(ctx context.Context, showID int64, versions map[int64]int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for seatID, version := range versions {
			res := tx.Model(&Seat{}).
				Where("id = ? AND show_id = ? AND status = ? AND version = ?", seatID, showID, SeatHeld, version).
				Updates(map[string]interface{}{
					"status":     SeatReserved,
					"version":    version + 1,
					"updated_at": time.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return apperr.Conflict(apperr.CodeSeatUnavailable, "seat hold was lost before confirmation")
			}
		}
		return nil
	})
}

func (r *repository) ReleaseSeats(ctx context.Context, showID int64, seatIDs []int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []Seat
		if err := tx.Where("show_id = ? AND id IN ?", showID, seatIDs).
			Find(&current).Error; err != nil {
			return err
		}

		for _, seat := range current {
			if seat.Status == SeatAvailable {
				continue
			}
			res := tx.Model(&Seat{}).
				Where("id = ? AND version = ?", seat.ID, seat.Version).
				Updates(map[string]interface{}{
					"status":     SeatAvailable,
					"version":    seat.Version + 1,
					"updated_at": time.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
}
