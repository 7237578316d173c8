package queue

import (
	"context"
	"testing"
	"time"

	"showtix/internal/shared/apperr"
	"showtix/pkg/logger"

	"github.com/google/uuid"
)

func newTestService(capacity int) Service {
	generator, err := NewBase62TokenGenerator(16)
	if err != nil {
		panic(err)
	}
	return NewService(NewMemoryRepository(), generator, ServiceConfig{
		Capacity:   capacity,
		WaitingTTL: time.Hour,
		EnteredTTL: time.Hour,
	}, logger.GetDefault())
}

func TestIssueTokenEntersDirectlyWithFreeCapacity(t *testing.T) {
	t.Parallel()
	svc := newTestService(2)

	token, err := svc.IssueToken(context.Background(), uuid.New(), 1)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if token.Status != StatusEntered {
		t.Errorf("status with free capacity: got %s, want %s", token.Status, StatusEntered)
	}
	if token.Rank != 0 {
		t.Errorf("rank for entered token: got %d, want 0", token.Rank)
	}
}

func TestIssueTokenWaitsWhenCapacityFull(t *testing.T) {
	t.Parallel()
	svc := newTestService(1)
	ctx := context.Background()

	if _, err := svc.IssueToken(ctx, uuid.New(), 1); err != nil {
		t.Fatalf("first IssueToken: %v", err)
	}

	token, err := svc.IssueToken(ctx, uuid.New(), 1)
	if err != nil {
		t.Fatalf("second IssueToken: %v", err)
	}
	if token.Status != StatusWaiting {
		t.Errorf("status at capacity: got %s, want %s", token.Status, StatusWaiting)
	}
	if token.Rank != 1 {
		t.Errorf("first waiting rank: got %d, want 1", token.Rank)
	}
}

func TestIssueTokenIsIdempotentPerUserAndTarget(t *testing.T) {
	t.Parallel()
	svc := newTestService(1)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.IssueToken(ctx, userID, 1)
	if err != nil {
		t.Fatalf("first IssueToken: %v", err)
	}
	second, err := svc.IssueToken(ctx, userID, 1)
	if err != nil {
		t.Fatalf("second IssueToken: %v", err)
	}
	if first.Token != second.Token {
		t.Errorf("reissue returned a new token: first %s, second %s", first.Token, second.Token)
	}
}

func TestWaitingRanksFollowIssueOrder(t *testing.T) {
	t.Parallel()
	svc := newTestService(1)
	ctx := context.Background()

	// Occupy the single slot so everyone else waits.
	if _, err := svc.IssueToken(ctx, uuid.New(), 1); err != nil {
		t.Fatalf("occupy slot: %v", err)
	}

	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	tokens := make([]*Token, len(users))
	for i, userID := range users {
		token, err := svc.IssueToken(ctx, userID, 1)
		if err != nil {
			t.Fatalf("IssueToken %d: %v", i, err)
		}
		tokens[i] = token
	}

	for i, token := range tokens {
		status, err := svc.CheckStatus(ctx, users[i], 1, token.Token)
		if err != nil {
			t.Fatalf("CheckStatus %d: %v", i, err)
		}
		if status.Rank != int64(i+1) {
			t.Errorf("rank of user %d: got %d, want %d", i, status.Rank, i+1)
		}
	}
}

func TestCheckStatusUnknownTokenNotFound(t *testing.T) {
	t.Parallel()
	svc := newTestService(1)

	_, err := svc.CheckStatus(context.Background(), uuid.New(), 1, "no-such-token")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("unknown token: got %v, want not-found", err)
	}
}

func TestCheckStatusRejectsForeignToken(t *testing.T) {
	t.Parallel()
	svc := newTestService(1)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, uuid.New(), 1)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	_, err = svc.CheckStatus(ctx, uuid.New(), 1, token.Token)
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("foreign token: got %v, want forbidden", err)
	}
}

func TestVerifyRequiresEnteredToken(t *testing.T) {
	t.Parallel()
	svc := newTestService(1)
	ctx := context.Background()

	entered, err := svc.IssueToken(ctx, uuid.New(), 1)
	if err != nil {
		t.Fatalf("entered IssueToken: %v", err)
	}
	if err := svc.Verify(ctx, entered.UserID, 1, entered.Token); err != nil {
		t.Errorf("Verify entered token: %v", err)
	}

	waitingUser := uuid.New()
	waiting, err := svc.IssueToken(ctx, waitingUser, 1)
	if err != nil {
		t.Fatalf("waiting IssueToken: %v", err)
	}
	err = svc.Verify(ctx, waitingUser, 1, waiting.Token)
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("Verify waiting token: got %v, want forbidden", err)
	}
	if apperr.CodeOf(err) != apperr.CodeQueueRequired {
		t.Errorf("Verify code: got %q, want %q", apperr.CodeOf(err), apperr.CodeQueueRequired)
	}
}

func TestPromoteAdmitsInOrderUpToCapacity(t *testing.T) {
	t.Parallel()
	svc := newTestService(2)
	ctx := context.Background()

	// Fill both slots, then queue three more users.
	firstIn, _ := svc.IssueToken(ctx, uuid.New(), 1)
	secondIn, _ := svc.IssueToken(ctx, uuid.New(), 1)

	waiters := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	waiterTokens := make([]*Token, len(waiters))
	for i, userID := range waiters {
		token, err := svc.IssueToken(ctx, userID, 1)
		if err != nil {
			t.Fatalf("waiting IssueToken %d: %v", i, err)
		}
		waiterTokens[i] = token
	}

	// No free capacity: nothing moves.
	promoted, err := svc.Promote(ctx, 1)
	if err != nil {
		t.Fatalf("Promote at capacity: %v", err)
	}
	if promoted != 0 {
		t.Errorf("promoted at capacity: got %d, want 0", promoted)
	}

	// Two slots free up; exactly the two longest-waiting users enter.
	if err := svc.Complete(ctx, firstIn.UserID, 1, firstIn.Token); err != nil {
		t.Fatalf("Complete first: %v", err)
	}
	if err := svc.Complete(ctx, secondIn.UserID, 1, secondIn.Token); err != nil {
		t.Fatalf("Complete second: %v", err)
	}

	promoted, err = svc.Promote(ctx, 1)
	if err != nil {
		t.Fatalf("Promote with room: %v", err)
	}
	if promoted != 2 {
		t.Fatalf("promoted with two slots: got %d, want 2", promoted)
	}

	for i := 0; i < 2; i++ {
		status, err := svc.CheckStatus(ctx, waiters[i], 1, waiterTokens[i].Token)
		if err != nil {
			t.Fatalf("CheckStatus promoted %d: %v", i, err)
		}
		if status.Status != StatusEntered {
			t.Errorf("waiter %d status: got %s, want %s", i, status.Status, StatusEntered)
		}
	}

	status, err := svc.CheckStatus(ctx, waiters[2], 1, waiterTokens[2].Token)
	if err != nil {
		t.Fatalf("CheckStatus last waiter: %v", err)
	}
	if status.Status != StatusWaiting {
		t.Errorf("last waiter status: got %s, want %s", status.Status, StatusWaiting)
	}
	if status.Rank != 1 {
		t.Errorf("last waiter rank after promotion: got %d, want 1", status.Rank)
	}
}

func TestIssueTokenHonoursExistingWaitersBelowCapacity(t *testing.T) {
	t.Parallel()
	svc := newTestService(2)
	ctx := context.Background()

	// One slot used, one waiter queued behind a full house that then frees
	// up: a new arrival must still wait behind them.
	occupant, _ := svc.IssueToken(ctx, uuid.New(), 1)
	_, _ = svc.IssueToken(ctx, uuid.New(), 1)
	waitingUser := uuid.New()
	if _, err := svc.IssueToken(ctx, waitingUser, 1); err != nil {
		t.Fatalf("waiting IssueToken: %v", err)
	}
	if err := svc.Complete(ctx, occupant.UserID, 1, occupant.Token); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	newcomer, err := svc.IssueToken(ctx, uuid.New(), 1)
	if err != nil {
		t.Fatalf("newcomer IssueToken: %v", err)
	}
	if newcomer.Status != StatusWaiting {
		t.Errorf("newcomer status with waiters present: got %s, want %s", newcomer.Status, StatusWaiting)
	}
	if newcomer.Rank != 2 {
		t.Errorf("newcomer rank: got %d, want 2", newcomer.Rank)
	}
}
