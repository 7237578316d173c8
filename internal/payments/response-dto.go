package payments

import "github.com/google/uuid"

type PaymentResponse struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	Status        Status    `json:"status"`
	Amount        float64   `json:"amount"`
}

func NewPaymentResponse(payment *Payment) *PaymentResponse {
	return &PaymentResponse{
		PaymentID:     payment.ID,
		ReservationID: payment.ReservationID,
		Status:        payment.Status,
		Amount:        payment.Amount,
	}
}
