package seats

import (
	"time"
)

// SeatStatus is the lifecycle state of a seat
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatReserved  SeatStatus = "RESERVED"
)

// Show is the sellable target a seat belongs to
type Show struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	StartsAt  time.Time `gorm:"not null" json:"starts_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Seat transitions AVAILABLE -> HELD -> RESERVED, and back to AVAILABLE
// only via an explicit release. Version increments on every transition and
// backs the optimistic check layered beneath the distributed lock.
type Seat struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ShowID    int64      `gorm:"index;not null" json:"show_id"`
	Label     string     `gorm:"type:varchar(20);not null" json:"label"`
	Price     float64    `gorm:"not null" json:"price"`
	Status    SeatStatus `gorm:"type:varchar(20);check:status IN ('AVAILABLE', 'HELD', 'RESERVED');default:'AVAILABLE'" json:"status"`
	Version   int64      `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
