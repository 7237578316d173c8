package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"showtix/internal/shared/apperr"
	"showtix/pkg/logger"
)

// Outcome is what ExecuteOnce hands back: the JSON-encoded operation
// result, and whether it was served from a previous execution.
type Outcome struct {
	Body     []byte
	Replayed bool
}

// Guard runs an operation at most once per (scope, key). Concurrent
// duplicates observe IN_PROGRESS and are rejected; later duplicates of a
// completed operation replay the stored result byte for byte.
type Guard struct {
	repo Repository
	ttl  time.Duration
	log  *logger.Logger
}

func NewGuard(repo Repository, ttl time.Duration, log *logger.Logger) *Guard {
	return &Guard{repo: repo, ttl: ttl, log: log}
}

// ExecuteOnce claims (scope, key) and runs op if this caller won the
// claim. The op result is marshalled to JSON and stored so replays return
// identical bytes. A FAILED record is re-claimed and the operation retried;
// an IN_PROGRESS record yields a conflict.
func (g *Guard) ExecuteOnce(ctx context.Context, scope, key string, op func(ctx context.Context) (interface{}, error)) (*Outcome, error) {
	if key == "" {
		return nil, apperr.Validation("idempotency key is required")
	}

	record := &Record{
		Scope:     scope,
		Key:       key,
		Status:    StatusInProgress,
		ExpiresAt: time.Now().Add(g.ttl),
	}

	claimed, existing, err := g.repo.Claim(ctx, record)
	if err != nil {
		return nil, apperr.Fatal("failed to claim idempotency key", err)
	}

	if claimed {
		return g.run(ctx, scope, key, op)
	}

	// A row past its TTL is dead on arrival: an expired COMPLETED result
	// must not replay, and an orphaned IN_PROGRESS row must not block the
	// key until the cleanup ticker fires.
	if existing.ExpiresAt.Before(time.Now()) {
		taken, err := g.repo.Takeover(ctx, scope, key, time.Now(), time.Now().Add(g.ttl))
		if err != nil {
			return nil, apperr.Fatal("failed to take over expired idempotency key", err)
		}
		if !taken {
			// A concurrent caller won the takeover
			return nil, apperr.Conflict(apperr.CodeInProgress, "request with this idempotency key is already in progress")
		}
		return g.run(ctx, scope, key, op)
	}

	switch existing.Status {
	case StatusCompleted:
		g.log.Debug("replaying idempotent result", "scope", scope, "key", key)
		return &Outcome{Body: existing.Result, Replayed: true}, nil

	case StatusFailed:
		reclaimed, err := g.repo.Reclaim(ctx, scope, key, time.Now().Add(g.ttl))
		if err != nil {
			return nil, apperr.Fatal("failed to reclaim idempotency key", err)
		}
		if !reclaimed {
			// Someone else got there first
			return nil, apperr.Conflict(apperr.CodeInProgress, "request with this idempotency key is already in progress")
		}
		return g.run(ctx, scope, key, op)

	default:
		return nil, apperr.Conflict(apperr.CodeInProgress, "request with this idempotency key is already in progress")
	}
}

func (g *Guard) run(ctx context.Context, scope, key string, op func(ctx context.Context) (interface{}, error)) (*Outcome, error) {
	value, opErr := op(ctx)
	if opErr != nil {
		if err := g.repo.Fail(ctx, scope, key, opErr.Error()); err != nil {
			g.log.WithError(err).Error("failed to mark idempotency record failed", "scope", scope, "key", key)
		}
		return nil, opErr
	}

	body, err := json.Marshal(value)
	if err != nil {
		if ferr := g.repo.Fail(ctx, scope, key, err.Error()); ferr != nil {
			g.log.WithError(ferr).Error("failed to mark idempotency record failed", "scope", scope, "key", key)
		}
		return nil, apperr.Fatal(fmt.Sprintf("failed to encode result for scope %s", scope), err)
	}

	if err := g.repo.Complete(ctx, scope, key, body); err != nil {
		return nil, apperr.Fatal("failed to store idempotent result", err)
	}

	return &Outcome{Body: body, Replayed: false}, nil
}
