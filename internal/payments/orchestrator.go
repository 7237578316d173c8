package payments

import (
	"context"
	"fmt"
	"time"

	"showtix/pkg/logger"

	"github.com/google/uuid"
)

// Reservations is the slice of the reservation service the saga needs.
type Reservations interface {
	Confirm(ctx context.Context, reservationID uuid.UUID) error
	Cancel(ctx context.Context, reservationID uuid.UUID) error
}

type OrchestratorConfig struct {
	ChargeMaxAttempts int
	ChargeBackoff     time.Duration
}

// Orchestrator drives the payment saga: one handler per topic, each
// reacting to one inbound event and emitting at most one outbound
// event. Handlers are idempotent through status-guarded transitions, so
// at-least-once delivery never double-charges or double-confirms. A
// handler error means the event should be redelivered; returning nil
// marks it consumed.
type Orchestrator struct {
	repo         Repository
	publisher    Publisher
	charger      ChargeClient
	reservations Reservations
	config       OrchestratorConfig
	log          *logger.Logger
}

func NewOrchestrator(repo Repository, publisher Publisher, charger ChargeClient, reservations Reservations, config OrchestratorConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		repo:         repo,
		publisher:    publisher,
		charger:      charger,
		reservations: reservations,
		config:       config,
		log:          log,
	}
}

// Topics lists every topic the orchestrator consumes.
func (o *Orchestrator) Topics() []string {
	return []string{
		TopicPaymentRequested,
		TopicPaymentCharged,
		TopicPaymentChargeFailed,
		TopicReservationConfirm,
		TopicReservationConfirmed,
		TopicPaymentCompensate,
		TopicPaymentCompensated,
	}
}

func (o *Orchestrator) Handle(ctx context.Context, topic string, event *SagaEvent) error {
	switch topic {
	case TopicPaymentRequested:
		return o.handleRequested(ctx, event)
	case TopicPaymentCharged:
		return o.handleCharged(ctx, event)
	case TopicPaymentChargeFailed:
		return o.handleChargeFailed(ctx, event)
	case TopicReservationConfirm:
		return o.handleReservationConfirm(ctx, event)
	case TopicReservationConfirmed:
		return o.handleReservationConfirmed(ctx, event)
	case TopicPaymentCompensate:
		return o.handleCompensate(ctx, event)
	case TopicPaymentCompensated:
		return o.handleCompensated(ctx, event)
	default:
		return fmt.Errorf("no handler for topic %s", topic)
	}
}

// handleRequested runs the external charge. The CREATED→PROCESSING
// transition doubles as the duplicate filter: a redelivered request
// finds the payment already moved on and does nothing.
func (o *Orchestrator) handleRequested(ctx context.Context, event *SagaEvent) error {
	moved, err := o.repo.TransitionStatus(ctx, event.PaymentID, StatusCreated, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to transition payment %s: %w", event.PaymentID, err)
	}
	if !moved {
		return nil
	}
	o.log.LogSagaTransition(ctx, event.PaymentID.String(), string(StatusCreated), string(StatusProcessing))

	result, chargeErr := chargeWithRetry(ctx, o.charger, event.PaymentID, event.Amount, o.config.ChargeMaxAttempts, o.config.ChargeBackoff)
	if chargeErr != nil {
		if err := o.repo.SetLastError(ctx, event.PaymentID, chargeErr.Error()); err != nil {
			o.log.WithError(err).Warn("failed to record charge error")
		}
		failed := *event
		failed.Reason = chargeErr.Error()
		return o.publisher.Publish(ctx, TopicPaymentChargeFailed, &failed)
	}

	if err := o.repo.SetChargeRef(ctx, event.PaymentID, result.Ref); err != nil {
		// The charge landed but we could not record its reference. Bail
		// out so redelivery retries the write; the duplicate filter has
		// already fired, so the charge itself is not repeated.
		return fmt.Errorf("failed to record charge ref for payment %s: %w", event.PaymentID, err)
	}

	charged := *event
	charged.ChargeRef = result.Ref
	return o.publisher.Publish(ctx, TopicPaymentCharged, &charged)
}

func (o *Orchestrator) handleCharged(ctx context.Context, event *SagaEvent) error {
	payment, err := o.repo.GetByID(ctx, event.PaymentID)
	if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", event.PaymentID, err)
	}
	if payment == nil || payment.Status != StatusProcessing {
		return nil
	}
	return o.publisher.Publish(ctx, TopicReservationConfirm, event)
}

func (o *Orchestrator) handleChargeFailed(ctx context.Context, event *SagaEvent) error {
	moved, err := o.repo.TransitionStatus(ctx, event.PaymentID, StatusProcessing, StatusCompensating)
	if err != nil {
		return fmt.Errorf("failed to transition payment %s: %w", event.PaymentID, err)
	}
	if !moved {
		return nil
	}
	o.log.LogSagaTransition(ctx, event.PaymentID.String(), string(StatusProcessing), string(StatusCompensating))
	return o.publisher.Publish(ctx, TopicPaymentCompensate, event)
}

func (o *Orchestrator) handleReservationConfirm(ctx context.Context, event *SagaEvent) error {
	payment, err := o.repo.GetByID(ctx, event.PaymentID)
	if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", event.PaymentID, err)
	}
	if payment == nil || payment.Status != StatusProcessing {
		return nil
	}

	if confirmErr := o.reservations.Confirm(ctx, event.ReservationID); confirmErr != nil {
		if err := o.repo.SetLastError(ctx, event.PaymentID, confirmErr.Error()); err != nil {
			o.log.WithError(err).Warn("failed to record confirm error")
		}
		compensate := *event
		compensate.Reason = fmt.Sprintf("reservation confirm failed: %v", confirmErr)
		return o.publisher.Publish(ctx, TopicPaymentCompensate, &compensate)
	}

	return o.publisher.Publish(ctx, TopicReservationConfirmed, event)
}

func (o *Orchestrator) handleReservationConfirmed(ctx context.Context, event *SagaEvent) error {
	moved, err := o.repo.TransitionStatus(ctx, event.PaymentID, StatusProcessing, StatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to transition payment %s: %w", event.PaymentID, err)
	}
	if moved {
		o.log.LogSagaTransition(ctx, event.PaymentID.String(), string(StatusProcessing), string(StatusCompleted))
	}
	return nil
}

// handleCompensate unwinds the saga: cancel the reservation (which
// releases its seats), refund a landed charge, then settle at
// COMPENSATED. Any failure returns an error so the event is redelivered
// with the payment held at COMPENSATING; it is never dropped.
func (o *Orchestrator) handleCompensate(ctx context.Context, event *SagaEvent) error {
	payment, err := o.repo.GetByID(ctx, event.PaymentID)
	if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", event.PaymentID, err)
	}
	// Only PROCESSING and COMPENSATING sagas can be unwound. A stale
	// compensate event, such as one from the stuck sweep racing a saga
	// that settled at COMPLETED, must not touch a confirmed reservation
	// or a settled charge.
	if payment == nil || (payment.Status != StatusProcessing && payment.Status != StatusCompensating) {
		return nil
	}

	// The confirm-failure path arrives here straight from PROCESSING.
	if payment.Status == StatusProcessing {
		moved, err := o.repo.TransitionStatus(ctx, event.PaymentID, StatusProcessing, StatusCompensating)
		if err != nil {
			return fmt.Errorf("failed to transition payment %s: %w", event.PaymentID, err)
		}
		if moved {
			o.log.LogSagaTransition(ctx, event.PaymentID.String(), string(StatusProcessing), string(StatusCompensating))
		}
	}

	if err := o.reservations.Cancel(ctx, event.ReservationID); err != nil {
		return fmt.Errorf("compensation failed to cancel reservation %s: %w", event.ReservationID, err)
	}

	if payment.ChargeRef != "" && !payment.Refunded {
		if err := o.charger.Refund(ctx, payment.ChargeRef); err != nil {
			return fmt.Errorf("compensation failed to refund charge %s: %w", payment.ChargeRef, err)
		}
		if err := o.repo.MarkRefunded(ctx, event.PaymentID); err != nil {
			return fmt.Errorf("failed to mark payment %s refunded: %w", event.PaymentID, err)
		}
	}

	moved, err := o.repo.TransitionStatus(ctx, event.PaymentID, StatusCompensating, StatusCompensated)
	if err != nil {
		return fmt.Errorf("failed to transition payment %s: %w", event.PaymentID, err)
	}
	if !moved {
		return nil
	}
	o.log.LogSagaTransition(ctx, event.PaymentID.String(), string(StatusCompensating), string(StatusCompensated))
	return o.publisher.Publish(ctx, TopicPaymentCompensated, event)
}

func (o *Orchestrator) handleCompensated(ctx context.Context, event *SagaEvent) error {
	o.log.WithFields(map[string]interface{}{
		"payment_id": event.PaymentID.String(),
		"reason":     event.Reason,
	}).Info("payment saga compensated")
	return nil
}
