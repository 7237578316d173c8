package reservations

import (
	"time"

	"github.com/google/uuid"
)

// Status is the reservation lifecycle state
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Reservation owns the exclusive claim on its seats while PENDING. It
// becomes CONFIRMED only after payment settles, and CANCELLED on hold
// expiry or saga compensation.
type Reservation struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	ShowID         int64     `gorm:"index;not null" json:"show_id"`
	Status         Status    `gorm:"type:varchar(20);check:status IN ('PENDING', 'CONFIRMED', 'CANCELLED');default:'PENDING'" json:"status"`
	IdempotencyKey string    `gorm:"type:varchar(128);index;not null" json:"idempotency_key"`
	TotalPrice     float64   `gorm:"not null" json:"total_price"`
	HoldExpiresAt  time.Time `gorm:"index;not null" json:"hold_expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Relationships
	Seats []ReservationSeat `json:"seats,omitempty" gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE;"`
}

// ReservationSeat snapshots one held seat: its price at reservation time
// and the seat version captured when the hold was taken.
type ReservationSeat struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ReservationID uuid.UUID `gorm:"type:uuid;index;not null" json:"reservation_id"`
	SeatID        int64     `gorm:"index;not null" json:"seat_id"`
	Price         float64   `gorm:"not null" json:"price"`
	SeatVersion   int64     `gorm:"not null" json:"seat_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// SeatIDs returns the reserved seat IDs in stored order.
func (r *Reservation) SeatIDs() []int64 {
	ids := make([]int64, len(r.Seats))
	for i, seat := range r.Seats {
		ids[i] = seat.SeatID
	}
	return ids
}

// SeatVersions maps seat ID to the version captured at hold time.
func (r *Reservation) SeatVersions() map[int64]int64 {
	versions := make(map[int64]int64, len(r.Seats))
	for _, seat := range r.Seats {
		versions[seat.SeatID] = seat.SeatVersion
	}
	return versions
}
