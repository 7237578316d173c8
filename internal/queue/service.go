package queue

import (
	"context"
	"time"

	"showtix/internal/shared/apperr"
	"showtix/pkg/logger"

	"github.com/google/uuid"
)

// Service interface defines the contract for waiting-room operations
type Service interface {
	// IssueToken returns the user's live token for the target, creating
	// one when none exists. New tokens enter directly when capacity allows
	// and nobody is already waiting.
	IssueToken(ctx context.Context, userID uuid.UUID, targetID int64) (*Token, error)

	// CheckStatus resolves a token to its current status and lazy rank.
	CheckStatus(ctx context.Context, userID uuid.UUID, targetID int64, token string) (*Token, error)

	// Verify asserts the token admits userID to the target right now.
	Verify(ctx context.Context, userID uuid.UUID, targetID int64, token string) error

	// Complete removes the token after a successful reservation, freeing
	// its admission slot.
	Complete(ctx context.Context, userID uuid.UUID, targetID int64, token string) error

	// Promote admits waiting users for one target up to free capacity.
	Promote(ctx context.Context, targetID int64) (int, error)

	// PromoteAll runs Promote for every target with waiting users.
	PromoteAll(ctx context.Context) (int, error)
}

// ServiceConfig contains waiting-room policy
type ServiceConfig struct {
	Capacity   int
	WaitingTTL time.Duration
	EnteredTTL time.Duration
}

type service struct {
	repo      Repository
	generator TokenGenerator
	config    ServiceConfig
	log       *logger.Logger
}

func NewService(repo Repository, generator TokenGenerator, config ServiceConfig, log *logger.Logger) Service {
	return &service{
		repo:      repo,
		generator: generator,
		config:    config,
		log:       log,
	}
}

func (s *service) IssueToken(ctx context.Context, userID uuid.UUID, targetID int64) (*Token, error) {
	// Reissue is idempotent per (user, target)
	existing, err := s.repo.FindByTargetAndUser(ctx, targetID, userID)
	if err != nil {
		return nil, apperr.Fatal("failed to look up existing token", err)
	}
	if existing != nil && existing.Status != StatusExpired {
		return existing, nil
	}

	now := time.Now()
	enteredCount, err := s.repo.CountEnteredActive(ctx, targetID, now)
	if err != nil {
		return nil, apperr.Fatal("failed to count admitted users", err)
	}
	hasWaiting, err := s.repo.HasWaiting(ctx, targetID)
	if err != nil {
		return nil, apperr.Fatal("failed to check waiting users", err)
	}

	// Jumping straight in while others wait would break FIFO order, so a
	// non-empty waiting set forces WAITING even below capacity.
	shouldWait := enteredCount >= int64(s.config.Capacity) || hasWaiting

	status := StatusEntered
	ttl := s.config.EnteredTTL
	if shouldWait {
		status = StatusWaiting
		ttl = s.config.WaitingTTL
	}

	raw, err := s.generator.NewToken()
	if err != nil {
		return nil, apperr.Fatal("failed to generate token", err)
	}

	token, err := s.repo.IssueToken(ctx, targetID, userID, raw, status, ttl)
	if err != nil {
		return nil, apperr.Fatal("failed to issue token", err)
	}

	s.log.LogTokenIssued(ctx, userID.String(), targetID, token.Rank)
	return token, nil
}

func (s *service) CheckStatus(ctx context.Context, userID uuid.UUID, targetID int64, token string) (*Token, error) {
	t, err := s.repo.FindByTargetAndToken(ctx, targetID, token)
	if err != nil {
		return nil, apperr.Fatal("failed to look up token", err)
	}
	if t == nil || t.Status == StatusExpired {
		return nil, apperr.NotFound("queue token not found or expired")
	}
	if t.UserID != userID {
		return nil, apperr.Forbidden(apperr.CodeQueueRequired, "queue token does not belong to this user")
	}
	return t, nil
}

func (s *service) Verify(ctx context.Context, userID uuid.UUID, targetID int64, token string) error {
	t, err := s.repo.FindByTargetAndToken(ctx, targetID, token)
	if err != nil {
		return apperr.Fatal("failed to look up token", err)
	}
	if t == nil || t.UserID != userID || !t.Entered(time.Now()) {
		return apperr.Forbidden(apperr.CodeQueueRequired, "a valid entered queue token is required")
	}
	return nil
}

func (s *service) Complete(ctx context.Context, userID uuid.UUID, targetID int64, token string) error {
	t, err := s.repo.FindByTargetAndToken(ctx, targetID, token)
	if err != nil {
		return apperr.Fatal("failed to look up token", err)
	}
	if t == nil || t.UserID != userID {
		return nil
	}
	if err := s.repo.Remove(ctx, t); err != nil {
		return apperr.Fatal("failed to remove token", err)
	}
	return nil
}

func (s *service) Promote(ctx context.Context, targetID int64) (int, error) {
	now := time.Now()

	enteredCount, err := s.repo.CountEnteredActive(ctx, targetID, now)
	if err != nil {
		return 0, apperr.Fatal("failed to count admitted users", err)
	}

	room := s.config.Capacity - int(enteredCount)
	if room <= 0 {
		return 0, nil
	}

	waiting, err := s.repo.WaitingTokens(ctx, targetID, room)
	if err != nil {
		return 0, apperr.Fatal("failed to list waiting tokens", err)
	}

	promoted := 0
	for _, token := range waiting {
		if err := s.repo.Promote(ctx, token, s.config.EnteredTTL); err != nil {
			s.log.WithError(err).Warn("failed to promote token", "target_id", targetID, "user_id", token.UserID.String())
			continue
		}
		promoted++
	}

	if promoted > 0 {
		s.log.Info("promoted waiting users", "target_id", targetID, "count", promoted)
	}
	return promoted, nil
}

func (s *service) PromoteAll(ctx context.Context) (int, error) {
	targets, err := s.repo.ActiveTargetIDs(ctx)
	if err != nil {
		return 0, apperr.Fatal("failed to list active targets", err)
	}

	total := 0
	for _, targetID := range targets {
		promoted, err := s.Promote(ctx, targetID)
		if err != nil {
			s.log.WithError(err).Error("promotion failed for target", "target_id", targetID)
			continue
		}
		total += promoted
	}
	return total, nil
}
