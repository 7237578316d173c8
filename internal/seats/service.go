package seats

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"showtix/internal/shared/apperr"
	"showtix/pkg/logger"
)

// LockResult carries the held seats with the versions captured at hold
// time; callers pass those versions back when confirming.
type LockResult struct {
	ShowID int64
	Seats  []Seat
}

// Versions maps seat ID to the version recorded when the hold was taken.
func (r *LockResult) Versions() map[int64]int64 {
	versions := make(map[int64]int64, len(r.Seats))
	for _, seat := range r.Seats {
		versions[seat.ID] = seat.Version
	}
	return versions
}

// TotalPrice sums the held seats' price snapshots.
func (r *LockResult) TotalPrice() float64 {
	var total float64
	for _, seat := range r.Seats {
		total += seat.Price
	}
	return total
}

// Service interface defines the contract for seat locking operations
type Service interface {
	// TryReserve acquires the distributed lock for the sorted seat set and
	// atomically transitions all seats AVAILABLE -> HELD. Exactly one of
	// any number of concurrent callers over the same seats succeeds.
	TryReserve(ctx context.Context, showID int64, seatIDs []int64) (*LockResult, error)

	// Confirm transitions held seats to RESERVED, re-checking versions.
	Confirm(ctx context.Context, showID int64, versions map[int64]int64) error

	// Release returns seats to AVAILABLE (hold expiry, cancellation,
	// saga compensation).
	Release(ctx context.Context, showID int64, seatIDs []int64) error

	ListSeats(ctx context.Context, showID int64) ([]Seat, error)
}

type service struct {
	repo   Repository
	locker Locker
	log    *logger.Logger
}

func NewService(repo Repository, locker Locker, log *logger.Logger) Service {
	return &service{
		repo:   repo,
		locker: locker,
		log:    log,
	}
}

// lockKey imposes a total order on seat IDs so overlapping seat sets
// always contend on identical keys and can never deadlock.
func lockKey(showID int64, sortedSeatIDs []int64) string {
	parts := make([]string, len(sortedSeatIDs))
	for i, id := range sortedSeatIDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("reservation:show:%d:seats:%s", showID, strings.Join(parts, ","))
}

func (s *service) TryReserve(ctx context.Context, showID int64, seatIDs []int64) (*LockResult, error) {
	if len(seatIDs) == 0 {
		return nil, apperr.Validation("at least one seat is required")
	}

	sorted := make([]int64, len(seatIDs))
	copy(sorted, seatIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, apperr.New(apperr.KindValidation, apperr.CodeDuplicateSeat,
				fmt.Sprintf("seat %d requested more than once", sorted[i]))
		}
	}

	lock, err := s.locker.Acquire(ctx, lockKey(showID, sorted))
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.log.WithError(rerr).Warn("failed to release seat lock", "show_id", showID)
		}
	}()

	held, err := s.repo.HoldSeats(ctx, showID, sorted)
	if err != nil {
		return nil, err
	}

	return &LockResult{ShowID: showID, Seats: held}, nil
}

func (s *service) Confirm(ctx context.Context, showID int64, versions map[int64]int64) error {
	return s.repo.ConfirmSeats(ctx, showID, versions)
}

func (s *service) Release(ctx context.Context, showID int64, seatIDs []int64) error {
	return s.repo.ReleaseSeats(ctx, showID, seatIDs)
}

func (s *service) ListSeats(ctx context.Context, showID int64) ([]Seat, error) {
	return s.repo.ListSeats(ctx, showID)
}
