package payments

import (
	"context"
	"encoding/json"

	"showtix/internal/idempotency"
	"showtix/internal/shared/apperr"
	"showtix/pkg/logger"

	"github.com/google/uuid"
)

const idempotencyScope = "create-payment"

type Service interface {
	// CreatePayment starts a saga: persist the payment in CREATED and
	// publish the charge request. Retries with the same idempotency key
	// replay the original response.
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*PaymentResponse, error)

	// GetPayment is the status-polling surface for saga outcomes.
	GetPayment(ctx context.Context, paymentID uuid.UUID) (*PaymentResponse, error)
}

type service struct {
	repo      Repository
	publisher Publisher
	guard     *idempotency.Guard
	log       *logger.Logger
}

func NewService(repo Repository, publisher Publisher, guard *idempotency.Guard, log *logger.Logger) Service {
	return &service{
		repo:      repo,
		publisher: publisher,
		guard:     guard,
		log:       log,
	}
}

func (s *service) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*PaymentResponse, error) {
	outcome, err := s.guard.ExecuteOnce(ctx, idempotencyScope, req.IdempotencyKey, func(ctx context.Context) (interface{}, error) {
		return s.create(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	var response PaymentResponse
	if err := json.Unmarshal(outcome.Body, &response); err != nil {
		return nil, apperr.Fatal("failed to decode payment result", err)
	}
	return &response, nil
}

func (s *service) create(ctx context.Context, req *CreatePaymentRequest) (*PaymentResponse, error) {
	payment := &Payment{
		ID:             uuid.New(),
		ReservationID:  req.ReservationID,
		Amount:         req.Amount,
		Status:         StatusCreated,
		IdempotencyKey: req.IdempotencyKey,
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, apperr.Fatal("failed to create payment", err)
	}

	if err := s.publisher.Publish(ctx, TopicPaymentRequested, NewSagaEvent(payment)); err != nil {
		// The payment stays CREATED; the stuck sweep re-publishes the
		// requested event once the row passes the deadline.
		return nil, apperr.Fatal("failed to publish payment request", err)
	}

	s.log.LogSagaTransition(ctx, payment.ID.String(), "", string(StatusCreated))
	return NewPaymentResponse(payment), nil
}

func (s *service) GetPayment(ctx context.Context, paymentID uuid.UUID) (*PaymentResponse, error) {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperr.Fatal("failed to load payment", err)
	}
	if payment == nil {
		return nil, apperr.NotFound("payment not found")
	}
	return NewPaymentResponse(payment), nil
}
