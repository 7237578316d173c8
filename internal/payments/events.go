package payments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Saga topics. Every event for one payment carries the same partition
// key (the payment ID), so events for a saga are consumed in order while
// unrelated sagas interleave freely.
const (
	TopicPaymentRequested     = "payment.requested"
	TopicPaymentCharged       = "payment.charged"
	TopicPaymentChargeFailed  = "payment.charge-failed"
	TopicReservationConfirm   = "reservation.confirm"
	TopicReservationConfirmed = "reservation.confirmed"
	TopicPaymentCompensate    = "payment.compensate"
	TopicPaymentCompensated   = "payment.compensated"
)

// SagaEvent is the single payload shape shared by all saga topics.
// Reason is set on failure and compensation events; ChargeRef travels
// with charged events so downstream steps can refund without a lookup.
type SagaEvent struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	Amount        float64   `json:"amount"`
	ChargeRef     string    `json:"charge_ref,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewSagaEvent(payment *Payment) *SagaEvent {
	return &SagaEvent{
		PaymentID:     payment.ID,
		ReservationID: payment.ReservationID,
		Amount:        payment.Amount,
		ChargeRef:     payment.ChargeRef,
		OccurredAt:    time.Now(),
	}
}

// PartitionKey keeps all events of one saga on one partition.
func (e *SagaEvent) PartitionKey() string {
	return e.PaymentID.String()
}

func (e *SagaEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func SagaEventFromJSON(data []byte) (*SagaEvent, error) {
	var event SagaEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
