package payments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the saga state of a payment.
type Status string

const (
	StatusCreated      Status = "CREATED"
	StatusProcessing   Status = "PROCESSING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
)

// Payment tracks one charge attempt for a reservation through the saga.
// ChargeRef is the external processor's reference, recorded as soon as a
// charge succeeds so compensation can refund it.
type Payment struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ReservationID  uuid.UUID `gorm:"type:uuid;index;not null" json:"reservation_id"`
	Amount         float64   `gorm:"not null" json:"amount"`
	Status         Status    `gorm:"type:varchar(20);check:status IN ('CREATED', 'PROCESSING', 'COMPLETED', 'FAILED', 'COMPENSATING', 'COMPENSATED');default:'CREATED'" json:"status"`
	IdempotencyKey string    `gorm:"type:varchar(128);index;not null" json:"idempotency_key"`
	ChargeRef      string    `gorm:"type:varchar(128)" json:"charge_ref,omitempty"`
	Refunded       bool      `gorm:"default:false" json:"refunded"`
	LastError      string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// DeadLetter is the durable copy of a saga event that exhausted its
// retries. Rows here require manual intervention.
type DeadLetter struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Topic     string    `gorm:"type:varchar(128);not null" json:"topic"`
	Key       string    `gorm:"type:varchar(128);index;not null" json:"key"`
	Payload   []byte    `gorm:"type:jsonb" json:"payload"`
	Reason    string    `gorm:"type:text" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (DeadLetter) TableName() string {
	return "payment_dead_letters"
}
