package database

import (
	"showtix/internal/idempotency"
	"showtix/internal/payments"
	"showtix/internal/reservations"
	"showtix/internal/seats"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&seats.Show{},
		&seats.Seat{},
		&reservations.Reservation{},
		&reservations.ReservationSeat{},
		&payments.Payment{},
		&payments.DeadLetter{},
		&idempotency.Record{},
	)
}
