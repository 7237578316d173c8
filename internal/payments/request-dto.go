package payments

import "github.com/google/uuid"

type CreatePaymentRequest struct {
	ReservationID uuid.UUID `json:"reservation_id" binding:"required"`
	Amount        float64   `json:"amount" binding:"required,gt=0"`

	// Supplied via the Idempotency-Key header, not the body.
	IdempotencyKey string `json:"-"`
}
