package reservations

import (
	"time"

	"github.com/google/uuid"
)

type ReservationSeatResponse struct {
	SeatID int64   `json:"seat_id"`
	Price  float64 `json:"price"`
}

type ReservationResponse struct {
	ID            uuid.UUID                 `json:"id"`
	ShowID        int64                     `json:"show_id"`
	Status        Status                    `json:"status"`
	TotalPrice    float64                   `json:"total_price"`
	HoldExpiresAt time.Time                 `json:"hold_expires_at"`
	Seats         []ReservationSeatResponse `json:"seats"`
}

func NewReservationResponse(r *Reservation) *ReservationResponse {
	response := &ReservationResponse{
		ID:            r.ID,
		ShowID:        r.ShowID,
		Status:        r.Status,
		TotalPrice:    r.TotalPrice,
		HoldExpiresAt: r.HoldExpiresAt,
	}
	for _, seat := range r.Seats {
		response.Seats = append(response.Seats, ReservationSeatResponse{
			SeatID: seat.SeatID,
			Price:  seat.Price,
		})
	}
	return response
}
