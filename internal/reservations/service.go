package reservations

import (
	"context"
	"encoding/json"
	"time"

	"showtix/internal/idempotency"
	"showtix/internal/queue"
	"showtix/internal/seats"
	"showtix/internal/shared/apperr"
	"showtix/pkg/logger"

	"github.com/google/uuid"
)

const idempotencyScope = "reserve-seats"

// Service interface defines the contract for reservation operations
type Service interface {
	// Reserve runs one admission-checked, idempotent reservation attempt.
	Reserve(ctx context.Context, userID uuid.UUID, req *ReserveRequest) (*ReservationResponse, error)

	// GetReservation returns the caller's reservation.
	GetReservation(ctx context.Context, userID, reservationID uuid.UUID) (*ReservationResponse, error)

	// Confirm settles a reservation after payment: PENDING -> CONFIRMED,
	// held seats -> RESERVED. Idempotent: an already-confirmed
	// reservation is a no-op.
	Confirm(ctx context.Context, reservationID uuid.UUID) error

	// Cancel releases a reservation (hold expiry or saga compensation):
	// PENDING -> CANCELLED, seats back to AVAILABLE. Idempotent.
	Cancel(ctx context.Context, reservationID uuid.UUID) error

	// ExpireHolds cancels PENDING reservations past their hold deadline.
	ExpireHolds(ctx context.Context) (int, error)
}

// ServiceConfig contains reservation hold policy
type ServiceConfig struct {
	HoldDuration time.Duration
	SweepBatch   int
}

type service struct {
	repo     Repository
	seatSvc  seats.Service
	queueSvc queue.Service
	guard    *idempotency.Guard
	config   ServiceConfig
	log      *logger.Logger
}

func NewService(repo Repository, seatSvc seats.Service, queueSvc queue.Service, guard *idempotency.Guard, config ServiceConfig, log *logger.Logger) Service {
	return &service{
		repo:     repo,
		seatSvc:  seatSvc,
		queueSvc: queueSvc,
		guard:    guard,
		config:   config,
		log:      log,
	}
}

func (s *service) Reserve(ctx context.Context, userID uuid.UUID, req *ReserveRequest) (*ReservationResponse, error) {
	// Admission first: without an entered token the request never touches
	// seat state.
	if err := s.queueSvc.Verify(ctx, userID, req.ShowID, req.QueueToken); err != nil {
		return nil, err
	}

	outcome, err := s.guard.ExecuteOnce(ctx, idempotencyScope, req.IdempotencyKey, func(ctx context.Context) (interface{}, error) {
		return s.reserve(ctx, userID, req)
	})
	if err != nil {
		return nil, err
	}

	var response ReservationResponse
	if err := json.Unmarshal(outcome.Body, &response); err != nil {
		return nil, apperr.Fatal("failed to decode reservation result", err)
	}
	return &response, nil
}

func (s *service) reserve(ctx context.Context, userID uuid.UUID, req *ReserveRequest) (*ReservationResponse, error) {
	lockResult, err := s.seatSvc.TryReserve(ctx, req.ShowID, req.SeatIDs)
	if err != nil {
		return nil, err
	}

	reservation := &Reservation{
		ID:             uuid.New(),
		UserID:         userID,
		ShowID:         req.ShowID,
		Status:         StatusPending,
		IdempotencyKey: req.IdempotencyKey,
		TotalPrice:     lockResult.TotalPrice(),
		HoldExpiresAt:  time.Now().Add(s.config.HoldDuration),
	}
	for _, seat := range lockResult.Seats {
		reservation.Seats = append(reservation.Seats, ReservationSeat{
			ID:            uuid.New(),
			ReservationID: reservation.ID,
			SeatID:        seat.ID,
			Price:         seat.Price,
			SeatVersion:   seat.Version,
		})
	}

	if err := s.repo.Create(ctx, reservation); err != nil {
		// The seats are held but the claim record failed: undo the hold so
		// the seats don't leak until the sweeper runs.
		if rerr := s.seatSvc.Release(ctx, req.ShowID, reservation.SeatIDs()); rerr != nil {
			s.log.WithError(rerr).Error("failed to release seats after reservation create failure",
				"show_id", req.ShowID, "reservation_id", reservation.ID.String())
		}
		return nil, apperr.Fatal("failed to create reservation", err)
	}

	// The admission slot is spent once the claim exists.
	if err := s.queueSvc.Complete(ctx, userID, req.ShowID, req.QueueToken); err != nil {
		s.log.WithError(err).Warn("failed to retire queue token", "user_id", userID.String())
	}

	s.log.LogReservationCreated(ctx, reservation.ID.String(), userID.String(), req.ShowID)
	return NewReservationResponse(reservation), nil
}

func (s *service) GetReservation(ctx context.Context, userID, reservationID uuid.UUID) (*ReservationResponse, error) {
	reservation, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, apperr.Fatal("failed to load reservation", err)
	}
	if reservation == nil {
		return nil, apperr.NotFound("reservation not found")
	}
	if reservation.UserID != userID {
		return nil, apperr.NotFound("reservation not found")
	}
	return NewReservationResponse(reservation), nil
}

func (s *service) Confirm(ctx context.Context, reservationID uuid.UUID) error {
	reservation, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		return apperr.Fatal("failed to load reservation", err)
	}
	if reservation == nil {
		return apperr.NotFound("reservation not found")
	}

	switch reservation.Status {
	case StatusConfirmed:
		return nil
	case StatusCancelled:
		return apperr.Conflict(apperr.CodeHoldExpired, "reservation was already cancelled")
	}

	// Seats first: the version check rejects confirmation when the hold
	// was lost to a sweep or another writer.
	if err := s.seatSvc.Confirm(ctx, reservation.ShowID, reservation.SeatVersions()); err != nil {
		return err
	}

	moved, err := s.repo.TransitionStatus(ctx, reservationID, StatusPending, StatusConfirmed)
	if err != nil {
		return apperr.Fatal("failed to confirm reservation", err)
	}
	if !moved {
		// Lost a race after the seat transition; state is settled either way.
		return nil
	}

	s.log.Info("reservation confirmed", "reservation_id", reservationID.String())
	return nil
}

func (s *service) Cancel(ctx context.Context, reservationID uuid.UUID) error {
	reservation, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		return apperr.Fatal("failed to load reservation", err)
	}
	if reservation == nil {
		return apperr.NotFound("reservation not found")
	}
	if reservation.Status == StatusCancelled {
		return nil
	}

	moved, err := s.repo.TransitionStatus(ctx, reservationID, reservation.Status, StatusCancelled)
	if err != nil {
		return apperr.Fatal("failed to cancel reservation", err)
	}
	if !moved {
		return nil
	}

	if err := s.seatSvc.Release(ctx, reservation.ShowID, reservation.SeatIDs()); err != nil {
		return apperr.Fatal("failed to release seats for cancelled reservation", err)
	}

	s.log.Info("reservation cancelled", "reservation_id", reservationID.String())
	return nil
}

func (s *service) ExpireHolds(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpiredPending(ctx, time.Now(), s.config.SweepBatch)
	if err != nil {
		return 0, apperr.Fatal("failed to list expired holds", err)
	}

	cancelled := 0
	for _, reservation := range expired {
		if err := s.Cancel(ctx, reservation.ID); err != nil {
			s.log.WithError(err).Error("failed to cancel expired hold", "reservation_id", reservation.ID.String())
			continue
		}
		cancelled++
	}
	return cancelled, nil
}
