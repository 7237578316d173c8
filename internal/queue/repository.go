package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the waiting-room storage contract. Two implementations
// exist: the Redis one used in production and an in-memory one for
// single-node deployments and tests.
type Repository interface {
	// IssueToken registers a token for (targetID, userID). The registration
	// is atomic per user: if a live token already exists it is returned
	// unchanged and no new token is created.
	IssueToken(ctx context.Context, targetID int64, userID uuid.UUID, token string, status Status, ttl time.Duration) (*Token, error)

	// FindByTargetAndUser returns the live token for (targetID, userID),
	// or nil when none exists.
	FindByTargetAndUser(ctx context.Context, targetID int64, userID uuid.UUID) (*Token, error)

	// FindByTargetAndToken resolves a token string. Expired tokens are
	// evicted on access and reported with status EXPIRED.
	FindByTargetAndToken(ctx context.Context, targetID int64, token string) (*Token, error)

	// CountEnteredActive counts live ENTERED tokens for the target,
	// evicting expired entries first.
	CountEnteredActive(ctx context.Context, targetID int64, now time.Time) (int64, error)

	// HasWaiting reports whether anyone is waiting for the target.
	HasWaiting(ctx context.Context, targetID int64) (bool, error)

	// WaitingTokens returns up to limit waiting tokens in rank order.
	WaitingTokens(ctx context.Context, targetID int64, limit int) ([]*Token, error)

	// Promote moves a WAITING token to ENTERED with a fresh TTL.
	Promote(ctx context.Context, token *Token, ttl time.Duration) error

	// Remove deletes a token and frees its admission slot.
	Remove(ctx context.Context, token *Token) error

	// ActiveTargetIDs lists targets that currently have waiting users.
	ActiveTargetIDs(ctx context.Context) ([]int64, error)
}
