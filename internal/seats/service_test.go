package seats

import (
	"context"
	"sync"
	"testing"
	"time"

	"showtix/internal/shared/apperr"
	"showtix/pkg/logger"
)

// memSeatRepository applies the same per-batch atomicity the Postgres
// transaction gives, using a single mutex.
type memSeatRepository struct {
	mu    sync.Mutex
	seats map[int64]*Seat
}

func newMemSeatRepository(showID int64, seatIDs ...int64) *memSeatRepository {
	repo := &memSeatRepository{seats: make(map[int64]*Seat)}
	for _, id := range seatIDs {
		repo.seats[id] = &Seat{ID: id, ShowID: showID, Status: SeatAvailable, Price: 100}
	}
	return repo
}

func (m *memSeatRepository) GetSeats(ctx context.Context, showID int64, seatIDs []int64) ([]Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Seat
	for _, id := range seatIDs {
		if seat, ok := m.seats[id]; ok && seat.ShowID == showID {
			result = append(result, *seat)
		}
	}
	return result, nil
}

func (m *memSeatRepository) ListSeats(ctx context.Context, showID int64) ([]Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Seat
	for _, seat := range m.seats {
		if seat.ShowID == showID {
			result = append(result, *seat)
		}
	}
	return result, nil
}

func (m *memSeatRepository) HoldSeats(ctx context.Context, showID int64, seatIDs []int64) ([]Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range seatIDs {
		seat, ok := m.seats[id]
		if !ok || seat.ShowID != showID {
			return nil, apperr.NotFound("one or more seats do not exist for this show")
		}
		if seat.Status != SeatAvailable {
			return nil, apperr.Conflict(apperr.CodeSeatUnavailable, "one or more seats are no longer available")
		}
	}

	var held []Seat
	for _, id := range seatIDs {
		seat := m.seats[id]
		seat.Status = SeatHeld
		seat.Version++
		held = append(held, *seat)
	}
	return held, nil
}

func (m *memSeatRepository) ConfirmSeats(ctx context.Context, showID int64, versions map[int64]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, version := range versions {
		seat, ok := m.seats[id]
		if !ok || seat.Status != SeatHeld || seat.Version != version {
			return apperr.Conflict(apperr.CodeSeatUnavailable, "seat hold was lost before confirmation")
		}
	}
	for id := range versions {
		seat := m.seats[id]
		seat.Status = SeatReserved
		seat.Version++
	}
	return nil
}

func (m *memSeatRepository) ReleaseSeats(ctx context.Context, showID int64, seatIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range seatIDs {
		if seat, ok := m.seats[id]; ok && seat.Status != SeatAvailable {
			seat.Status = SeatAvailable
			seat.Version++
		}
	}
	return nil
}

func (m *memSeatRepository) status(id int64) SeatStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seats[id].Status
}

func newTestLockConfig() LockConfig {
	return LockConfig{
		WaitTime:      200 * time.Millisecond,
		LeaseTime:     5 * time.Second,
		RetryInterval: 5 * time.Millisecond,
	}
}

func newTestService(repo Repository) Service {
	return NewService(repo, NewLocalLocker(newTestLockConfig()), logger.GetDefault())
}

func TestTryReserveHoldsAvailableSeats(t *testing.T) {
	t.Parallel()
	repo := newMemSeatRepository(101, 1, 2, 3)
	svc := newTestService(repo)

	result, err := svc.TryReserve(context.Background(), 101, []int64{3, 1})
	if err != nil {
		t.Fatalf("TryReserve: %v", err)
	}
	if len(result.Seats) != 2 {
		t.Fatalf("held seats: got %d, want 2", len(result.Seats))
	}
	for _, seat := range result.Seats {
		if seat.Status != SeatHeld {
			t.Errorf("seat %d status: got %s, want %s", seat.ID, seat.Status, SeatHeld)
		}
		if seat.Version != 1 {
			t.Errorf("seat %d version: got %d, want 1", seat.ID, seat.Version)
		}
	}
	if repo.status(2) != SeatAvailable {
		t.Errorf("untouched seat status: got %s, want %s", repo.status(2), SeatAvailable)
	}
}

func TestTryReserveSingleWinner(t *testing.T) {
	t.Parallel()
	repo := newMemSeatRepository(101, 1)
	svc := newTestService(repo)

	const attempts = 100
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TryReserve(context.Background(), 101, []int64{1})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case apperr.IsConflict(err):
			conflicts++
		default:
			t.Errorf("unexpected error class: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("successes: got %d, want exactly 1", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("conflicts: got %d, want %d", conflicts, attempts-1)
	}
	if repo.status(1) != SeatHeld {
		t.Errorf("contested seat status: got %s, want %s", repo.status(1), SeatHeld)
	}
}

func TestTryReserveOverlappingSetsSingleWinner(t *testing.T) {
	t.Parallel()
	repo := newMemSeatRepository(101, 1, 2, 3)
	svc := newTestService(repo)

	// Different orderings of overlapping sets must contend, not deadlock.
	sets := [][]int64{{1, 2}, {2, 1}, {2, 3}, {3, 2}}
	var wg sync.WaitGroup
	results := make(chan error, len(sets))
	for _, set := range sets {
		wg.Add(1)
		go func(seatIDs []int64) {
			defer wg.Done()
			_, err := svc.TryReserve(context.Background(), 101, seatIDs)
			results <- err
		}(set)
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else if !apperr.IsConflict(err) {
			t.Errorf("unexpected error class: %v", err)
		}
	}

	// Seat 2 is in every set, so at most one attempt can win; the winner
	// always exists because no attempt can block another forever.
	if successes != 1 {
		t.Errorf("successes over overlapping sets: got %d, want 1", successes)
	}
}

func TestTryReserveRejectsDuplicateSeats(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemSeatRepository(101, 1))

	_, err := svc.TryReserve(context.Background(), 101, []int64{1, 1})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("duplicate seats: got %v, want validation error", err)
	}
	if apperr.CodeOf(err) != apperr.CodeDuplicateSeat {
		t.Errorf("duplicate code: got %q, want %q", apperr.CodeOf(err), apperr.CodeDuplicateSeat)
	}
}

func TestTryReserveUnknownSeatNotFound(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemSeatRepository(101, 1))

	_, err := svc.TryReserve(context.Background(), 101, []int64{1, 99})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("unknown seat: got %v, want not-found", err)
	}
}

func TestConfirmRejectsStaleVersion(t *testing.T) {
	t.Parallel()
	repo := newMemSeatRepository(101, 1)
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.TryReserve(ctx, 101, []int64{1})
	if err != nil {
		t.Fatalf("TryReserve: %v", err)
	}

	stale := map[int64]int64{1: result.Seats[0].Version - 1}
	if err := svc.Confirm(ctx, 101, stale); !apperr.IsConflict(err) {
		t.Fatalf("Confirm with stale version: got %v, want conflict", err)
	}

	if err := svc.Confirm(ctx, 101, result.Versions()); err != nil {
		t.Fatalf("Confirm with captured versions: %v", err)
	}
	if repo.status(1) != SeatReserved {
		t.Errorf("confirmed seat status: got %s, want %s", repo.status(1), SeatReserved)
	}
}

func TestReleaseMakesSeatReReservable(t *testing.T) {
	t.Parallel()
	repo := newMemSeatRepository(101, 1)
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.TryReserve(ctx, 101, []int64{1}); err != nil {
		t.Fatalf("first TryReserve: %v", err)
	}
	if _, err := svc.TryReserve(ctx, 101, []int64{1}); !apperr.IsConflict(err) {
		t.Fatalf("reserve of held seat: got %v, want conflict", err)
	}

	if err := svc.Release(ctx, 101, []int64{1}); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if repo.status(1) != SeatAvailable {
		t.Fatalf("released seat status: got %s, want %s", repo.status(1), SeatAvailable)
	}

	if _, err := svc.TryReserve(ctx, 101, []int64{1}); err != nil {
		t.Errorf("reserve after release: %v", err)
	}
}
