package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a waiting-room token.
type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusEntered Status = "ENTERED"
	StatusExpired Status = "EXPIRED"
)

// Token is a waiting-room admission token. At most one live token exists
// per (user, target); rank is meaningful only while WAITING and is
// computed lazily from the per-target ordered waiting set.
type Token struct {
	Token    string    `json:"token"`
	UserID   uuid.UUID `json:"user_id"`
	TargetID int64     `json:"target_id"`
	Status   Status    `json:"status"`
	Rank     int64     `json:"rank"`
	IssuedAt time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the token's TTL has elapsed.
func (t *Token) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Entered reports whether the token grants admission right now.
func (t *Token) Entered(now time.Time) bool {
	return t.Status == StatusEntered && !t.IsExpired(now)
}
