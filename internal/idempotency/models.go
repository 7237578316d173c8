package idempotency

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of an idempotent operation.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Record is a single claimed idempotency key. The (scope, key) pair is
// unique: whichever request inserts the row first owns the execution,
// everyone else replays the stored result or backs off.
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Scope     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_idempotency_scope_key" json:"scope"`
	Key       string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_idempotency_scope_key" json:"key"`
	Status    Status    `gorm:"type:varchar(20);check:status IN ('IN_PROGRESS', 'COMPLETED', 'FAILED');default:'IN_PROGRESS'" json:"status"`
	Result    []byte    `gorm:"type:jsonb" json:"result,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
}

func (Record) TableName() string {
	return "idempotency_records"
}
