package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"showtix/internal/shared/apperr"
	"showtix/pkg/logger"
)

func newTestGuard() (*Guard, Repository) {
	repo := NewMemoryRepository()
	return NewGuard(repo, time.Minute, logger.GetDefault()), repo
}

func TestExecuteOnceRunsOperation(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard()

	calls := 0
	outcome, err := guard.ExecuteOnce(context.Background(), "reserve-seats", "key-1", func(ctx context.Context) (interface{}, error) {
		calls++
		return map[string]string{"status": "ok"}, nil
	})
	if err != nil {
		t.Fatalf("ExecuteOnce: %v", err)
	}
	if calls != 1 {
		t.Errorf("operation calls: got %d, want 1", calls)
	}
	if outcome.Replayed {
		t.Error("first execution reported as replayed")
	}

	var decoded map[string]string
	if err := json.Unmarshal(outcome.Body, &decoded); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if decoded["status"] != "ok" {
		t.Errorf("body status: got %q, want %q", decoded["status"], "ok")
	}
}

func TestExecuteOnceReplaysCompletedResult(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard()
	ctx := context.Background()

	calls := 0
	op := func(ctx context.Context) (interface{}, error) {
		calls++
		return map[string]int{"attempt": calls}, nil
	}

	first, err := guard.ExecuteOnce(ctx, "reserve-seats", "key-replay", op)
	if err != nil {
		t.Fatalf("first ExecuteOnce: %v", err)
	}
	second, err := guard.ExecuteOnce(ctx, "reserve-seats", "key-replay", op)
	if err != nil {
		t.Fatalf("second ExecuteOnce: %v", err)
	}

	if calls != 1 {
		t.Errorf("operation calls: got %d, want 1", calls)
	}
	if !second.Replayed {
		t.Error("second execution not marked replayed")
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("replayed body differs: first %s, second %s", first.Body, second.Body)
	}
}

func TestExecuteOnceConflictsWhileInProgress(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = guard.ExecuteOnce(ctx, "create-payment", "key-concurrent", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return "done", nil
		})
	}()

	<-started
	_, err := guard.ExecuteOnce(ctx, "create-payment", "key-concurrent", func(ctx context.Context) (interface{}, error) {
		t.Error("duplicate operation executed while original in progress")
		return nil, nil
	})
	close(release)

	if !apperr.IsConflict(err) {
		t.Fatalf("concurrent duplicate: got %v, want conflict", err)
	}
	if apperr.CodeOf(err) != apperr.CodeInProgress {
		t.Errorf("conflict code: got %q, want %q", apperr.CodeOf(err), apperr.CodeInProgress)
	}
}

func TestExecuteOnceRetriesAfterFailure(t *testing.T) {
	t.Parallel()
	guard, repo := newTestGuard()
	ctx := context.Background()

	opErr := errors.New("downstream unavailable")
	_, err := guard.ExecuteOnce(ctx, "reserve-seats", "key-fail", func(ctx context.Context) (interface{}, error) {
		return nil, opErr
	})
	if !errors.Is(err, opErr) {
		t.Fatalf("failed execution: got %v, want %v", err, opErr)
	}

	rec, _ := repo.Get(ctx, "reserve-seats", "key-fail")
	if rec.Status != StatusFailed {
		t.Fatalf("record status after failure: got %s, want %s", rec.Status, StatusFailed)
	}

	// Retry with the same key runs the operation again.
	outcome, err := guard.ExecuteOnce(ctx, "reserve-seats", "key-fail", func(ctx context.Context) (interface{}, error) {
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("retry ExecuteOnce: %v", err)
	}
	if outcome.Replayed {
		t.Error("retry after failure reported as replayed")
	}
	if string(outcome.Body) != `"recovered"` {
		t.Errorf("retry body: got %s, want %q", outcome.Body, `"recovered"`)
	}
}

func TestExecuteOnceExpiredResultRunsAgain(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()
	ctx := context.Background()

	// A guard with a negative TTL writes records that are expired the
	// moment they are stored.
	stale := NewGuard(repo, -time.Second, logger.GetDefault())
	if _, err := stale.ExecuteOnce(ctx, "reserve-seats", "key-expired", func(ctx context.Context) (interface{}, error) {
		return "stale", nil
	}); err != nil {
		t.Fatalf("first ExecuteOnce: %v", err)
	}

	guard := NewGuard(repo, time.Minute, logger.GetDefault())
	outcome, err := guard.ExecuteOnce(ctx, "reserve-seats", "key-expired", func(ctx context.Context) (interface{}, error) {
		return "fresh", nil
	})
	if err != nil {
		t.Fatalf("ExecuteOnce after expiry: %v", err)
	}
	if outcome.Replayed {
		t.Error("expired result was replayed instead of re-executed")
	}
	if string(outcome.Body) != `"fresh"` {
		t.Errorf("body after expiry: got %s, want %q", outcome.Body, `"fresh"`)
	}
}

func TestExecuteOnceTakesOverExpiredInProgress(t *testing.T) {
	t.Parallel()
	guard, repo := newTestGuard()
	ctx := context.Background()

	// An IN_PROGRESS row whose TTL lapsed means its holder crashed
	// before settling the record. It must not block the key.
	claimed, _, err := repo.Claim(ctx, &Record{
		Scope:     "create-payment",
		Key:       "key-orphaned",
		Status:    StatusInProgress,
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	if !claimed {
		t.Fatal("seed claim lost")
	}

	outcome, err := guard.ExecuteOnce(ctx, "create-payment", "key-orphaned", func(ctx context.Context) (interface{}, error) {
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("ExecuteOnce over orphaned record: %v", err)
	}
	if string(outcome.Body) != `"recovered"` {
		t.Errorf("body: got %s, want %q", outcome.Body, `"recovered"`)
	}

	rec, _ := repo.Get(ctx, "create-payment", "key-orphaned")
	if rec.Status != StatusCompleted {
		t.Errorf("record status: got %s, want %s", rec.Status, StatusCompleted)
	}
}

func TestExecuteOnceRejectsEmptyKey(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard()

	_, err := guard.ExecuteOnce(context.Background(), "reserve-seats", "", func(ctx context.Context) (interface{}, error) {
		t.Error("operation executed with empty key")
		return nil, nil
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("empty key: got %v, want validation error", err)
	}
}

func TestExecuteOnceScopesAreIndependent(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard()
	ctx := context.Background()

	calls := 0
	op := func(ctx context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}

	if _, err := guard.ExecuteOnce(ctx, "reserve-seats", "shared-key", op); err != nil {
		t.Fatalf("first scope: %v", err)
	}
	if _, err := guard.ExecuteOnce(ctx, "create-payment", "shared-key", op); err != nil {
		t.Fatalf("second scope: %v", err)
	}
	if calls != 2 {
		t.Errorf("operation calls across scopes: got %d, want 2", calls)
	}
}
