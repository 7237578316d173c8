package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"showtix/pkg/logger"

	"github.com/google/uuid"
)

type fakePaymentRepository struct {
	mu          sync.Mutex
	payments    map[uuid.UUID]*Payment
	deadLetters []DeadLetter
}

func newFakePaymentRepository() *fakePaymentRepository {
	return &fakePaymentRepository{payments: make(map[uuid.UUID]*Payment)}
}

func (f *fakePaymentRepository) Create(ctx context.Context, payment *Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *payment
	f.payments[payment.ID] = &copied
	return nil
}

func (f *fakePaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payment, ok := f.payments[id]; ok {
		copied := *payment
		return &copied, nil
	}
	return nil, nil
}

func (f *fakePaymentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[id]
	if !ok || payment.Status != from {
		return false, nil
	}
	payment.Status = to
	return true, nil
}

func (f *fakePaymentRepository) SetChargeRef(ctx context.Context, id uuid.UUID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payment, ok := f.payments[id]; ok {
		payment.ChargeRef = ref
	}
	return nil
}

func (f *fakePaymentRepository) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payment, ok := f.payments[id]; ok {
		payment.Refunded = true
	}
	return nil
}

func (f *fakePaymentRepository) SetLastError(ctx context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payment, ok := f.payments[id]; ok {
		payment.LastError = message
	}
	return nil
}

func (f *fakePaymentRepository) StuckInStatus(ctx context.Context, status Status, before time.Time, limit int) ([]Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stuck []Payment
	for _, payment := range f.payments {
		if len(stuck) >= limit {
			break
		}
		if payment.Status == status && payment.UpdatedAt.Before(before) {
			stuck = append(stuck, *payment)
		}
	}
	return stuck, nil
}

func (f *fakePaymentRepository) RecordDeadLetter(ctx context.Context, letter *DeadLetter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetters = append(f.deadLetters, *letter)
	return nil
}

func (f *fakePaymentRepository) status(id uuid.UUID) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payments[id].Status
}

// capturingPublisher records events instead of sending them, so tests
// can drive them through the orchestrator themselves.
type capturingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	topic string
	event SagaEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, topic string, event *SagaEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, event: *event})
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

// drain pops all captured events in publish order.
func (p *capturingPublisher) drain() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := p.events
	p.events = nil
	return events
}

type fakeChargeClient struct {
	mu          sync.Mutex
	failCharges int // charge attempts to fail before succeeding
	failRefunds int
	charges     int
	refunds     []string
}

func (f *fakeChargeClient) Charge(ctx context.Context, paymentID uuid.UUID, amount float64) (*ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges++
	if f.failCharges > 0 {
		f.failCharges--
		return nil, errors.New("processor unavailable")
	}
	return &ChargeResult{Ref: "ch_" + paymentID.String()[:8]}, nil
}

func (f *fakeChargeClient) Refund(ctx context.Context, chargeRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRefunds > 0 {
		f.failRefunds--
		return errors.New("refund rejected")
	}
	f.refunds = append(f.refunds, chargeRef)
	return nil
}

func (f *fakeChargeClient) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.charges
}

type fakeReservations struct {
	mu         sync.Mutex
	confirmErr error
	cancelErr  error
	confirmed  []uuid.UUID
	cancelled  []uuid.UUID
}

func (f *fakeReservations) Confirm(ctx context.Context, reservationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmed = append(f.confirmed, reservationID)
	return nil
}

func (f *fakeReservations) Cancel(ctx context.Context, reservationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, reservationID)
	return nil
}

type sagaFixture struct {
	orchestrator *Orchestrator
	repo         *fakePaymentRepository
	publisher    *capturingPublisher
	charger      *fakeChargeClient
	reservations *fakeReservations
	payment      *Payment
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()
	repo := newFakePaymentRepository()
	publisher := &capturingPublisher{}
	charger := &fakeChargeClient{}
	reservations := &fakeReservations{}

	orchestrator := NewOrchestrator(repo, publisher, charger, reservations, OrchestratorConfig{
		ChargeMaxAttempts: 3,
		ChargeBackoff:     time.Millisecond,
	}, logger.GetDefault())

	payment := &Payment{
		ID:            uuid.New(),
		ReservationID: uuid.New(),
		Amount:        250,
		Status:        StatusCreated,
	}
	if err := repo.Create(context.Background(), payment); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	return &sagaFixture{
		orchestrator: orchestrator,
		repo:         repo,
		publisher:    publisher,
		charger:      charger,
		reservations: reservations,
		payment:      payment,
	}
}

// pump feeds published events back into the orchestrator until the bus
// goes quiet, simulating in-order per-key delivery.
func (sf *sagaFixture) pump(t *testing.T) {
	t.Helper()
	for i := 0; i < 50; i++ {
		events := sf.publisher.drain()
		if len(events) == 0 {
			return
		}
		for _, pe := range events {
			if err := sf.orchestrator.Handle(context.Background(), pe.topic, &pe.event); err != nil {
				t.Fatalf("handle %s: %v", pe.topic, err)
			}
		}
	}
	t.Fatal("saga did not quiesce")
}

func (sf *sagaFixture) request() *SagaEvent {
	return NewSagaEvent(sf.payment)
}

func TestSagaCompletesOnSuccessfulCharge(t *testing.T) {
	t.Parallel()
	sf := newSagaFixture(t)
	ctx := context.Background()

	if err := sf.orchestrator.Handle(ctx, TopicPaymentRequested, sf.request()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	sf.pump(t)

	if got := sf.repo.status(sf.payment.ID); got != StatusCompleted {
		t.Errorf("payment status: got %s, want %s", got, StatusCompleted)
	}
	if len(sf.reservations.confirmed) != 1 {
		t.Errorf("reservation confirms: got %d, want 1", len(sf.reservations.confirmed))
	}
	if sf.charger.chargeCount() != 1 {
		t.Errorf("charges: got %d, want 1", sf.charger.chargeCount())
	}

	stored, _ := sf.repo.GetByID(ctx, sf.payment.ID)
	if stored.ChargeRef == "" {
		t.Error("charge ref was not recorded")
	}
}

func TestSagaDuplicateRequestDoesNotDoubleCharge(t *testing.T) {
	t.Parallel()
	sf := newSagaFixture(t)
	ctx := context.Background()

	if err := sf.orchestrator.Handle(ctx, TopicPaymentRequested, sf.request()); err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	// Redelivery of the same event after the saga moved on.
	if err := sf.orchestrator.Handle(ctx, TopicPaymentRequested, sf.request()); err != nil {
		t.Fatalf("duplicate Handle: %v", err)
	}
	sf.pump(t)

	if sf.charger.chargeCount() != 1 {
		t.Errorf("charges after duplicate delivery: got %d, want 1", sf.charger.chargeCount())
	}
	if len(sf.reservations.confirmed) != 1 {
		t.Errorf("confirms after duplicate delivery: got %d, want 1", len(sf.reservations.confirmed))
	}
}

func TestSagaRetriesChargeBeforeSucceeding(t *testing.T) {
	t.Parallel()
	sf := newSagaFixture(t)
	sf.charger.failCharges = 2 // succeed on the third attempt

	if err := sf.orchestrator.Handle(context.Background(), TopicPaymentRequested, sf.request()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	sf.pump(t)

	if sf.charger.chargeCount() != 3 {
		t.Errorf("charge attempts: got %d, want 3", sf.charger.chargeCount())
	}
	if got := sf.repo.status(sf.payment.ID); got != StatusCompleted {
		t.Errorf("payment status: got %s, want %s", got, StatusCompleted)
	}
}

func TestSagaCompensatesWhenChargeExhaustsRetries(t *testing.T) {
	t.Parallel()
	sf := newSagaFixture(t)
	sf.charger.failCharges = 10 // more than max attempts

	if err := sf.orchestrator.Handle(context.Background(), TopicPaymentRequested, sf.request()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	sf.pump(t)

	if sf.charger.chargeCount() != 3 {
		t.Errorf("charge attempts: got %d, want 3", sf.charger.chargeCount())
	}
	if got := sf.repo.status(sf.payment.ID); got != StatusCompensated {
		t.Errorf("payment status: got %s, want %s", got, StatusCompensated)
	}
	if len(sf.reservations.cancelled) != 1 {
		t.Errorf("reservation cancels: got %d, want 1", len(sf.reservations.cancelled))
	}
	// No charge landed, so nothing to refund.
	if len(sf.charger.refunds) != 0 {
		t.Errorf("refunds: got %d, want 0", len(sf.charger.refunds))
	}
}

func TestSagaRefundsWhenConfirmFailsAfterCharge(t *testing.T) {
	t.Parallel()
	sf := newSagaFixture(t)
	sf.reservations.confirmErr = errors.New("hold already lapsed")

	if err := sf.orchestrator.Handle(context.Background(), TopicPaymentRequested, sf.request()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	sf.pump(t)

	if got := sf.repo.status(sf.payment.ID); got != StatusCompensated {
		t.Errorf("payment status: got %s, want %s", got, StatusCompensated)
	}
	if len(sf.charger.refunds) != 1 {
		t.Fatalf("refunds: got %d, want 1", len(sf.charger.refunds))
	}
	stored, _ := sf.repo.GetByID(context.Background(), sf.payment.ID)
	if !stored.Refunded {
		t.Error("payment not marked refunded")
	}
	if len(sf.reservations.cancelled) != 1 {
		t.Errorf("reservation cancels: got %d, want 1", len(sf.reservations.cancelled))
	}
}

func TestSagaHoldsAtCompensatingWhenCompensationFails(t *testing.T) {
	t.Parallel()
	sf := newSagaFixture(t)
	sf.charger.failCharges = 10
	sf.reservations.cancelErr = errors.New("reservation store down")
	ctx := context.Background()

	if err := sf.orchestrator.Handle(ctx, TopicPaymentRequested, sf.request()); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// charge-failed → compensate; the compensate handler must error out
	// so the event is redelivered, never dropped.
	var compensate *publishedEvent
	for i := 0; i < 10 && compensate == nil; i++ {
		for _, pe := range sf.publisher.drain() {
			if pe.topic == TopicPaymentCompensate {
				e := pe
				compensate = &e
				continue
			}
			if err := sf.orchestrator.Handle(ctx, pe.topic, &pe.event); err != nil {
				t.Fatalf("handle %s: %v", pe.topic, err)
			}
		}
	}
	if compensate == nil {
		t.Fatal("no compensate event published")
	}

	if err := sf.orchestrator.Handle(ctx, TopicPaymentCompensate, &compensate.event); err == nil {
		t.Fatal("compensate handler succeeded despite cancel failure")
	}
	if got := sf.repo.status(sf.payment.ID); got != StatusCompensating {
		t.Errorf("payment status: got %s, want %s", got, StatusCompensating)
	}

	// Once the store recovers, redelivery settles the saga.
	sf.reservations.cancelErr = nil
	if err := sf.orchestrator.Handle(ctx, TopicPaymentCompensate, &compensate.event); err != nil {
		t.Fatalf("compensate after recovery: %v", err)
	}
	if got := sf.repo.status(sf.payment.ID); got != StatusCompensated {
		t.Errorf("payment status after recovery: got %s, want %s", got, StatusCompensated)
	}
}

func TestSagaStaleCompensateLeavesCompletedPaymentAlone(t *testing.T) {
	t.Parallel()
	sf := newSagaFixture(t)
	ctx := context.Background()

	if err := sf.orchestrator.Handle(ctx, TopicPaymentRequested, sf.request()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	sf.pump(t)
	if got := sf.repo.status(sf.payment.ID); got != StatusCompleted {
		t.Fatalf("payment status: got %s, want %s", got, StatusCompleted)
	}

	// The stuck sweep can observe a slow saga in PROCESSING and publish a
	// compensate that lands only after the saga settled. It must be a
	// no-op: the confirmed reservation keeps its seats and the charge
	// stays settled.
	stale := sf.request()
	stale.Reason = "processing deadline exceeded"
	if err := sf.orchestrator.Handle(ctx, TopicPaymentCompensate, stale); err != nil {
		t.Fatalf("stale compensate: %v", err)
	}

	if got := sf.repo.status(sf.payment.ID); got != StatusCompleted {
		t.Errorf("payment status after stale compensate: got %s, want %s", got, StatusCompleted)
	}
	if len(sf.reservations.cancelled) != 0 {
		t.Errorf("cancels after stale compensate: got %d, want 0", len(sf.reservations.cancelled))
	}
	if len(sf.charger.refunds) != 0 {
		t.Errorf("refunds after stale compensate: got %d, want 0", len(sf.charger.refunds))
	}
}

func TestSagaDuplicateCompensateIsNoOp(t *testing.T) {
	t.Parallel()
	sf := newSagaFixture(t)
	sf.charger.failCharges = 10
	ctx := context.Background()

	if err := sf.orchestrator.Handle(ctx, TopicPaymentRequested, sf.request()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	sf.pump(t)

	if err := sf.orchestrator.Handle(ctx, TopicPaymentCompensate, sf.request()); err != nil {
		t.Fatalf("duplicate compensate: %v", err)
	}
	if len(sf.reservations.cancelled) != 1 {
		t.Errorf("cancels after duplicate compensate: got %d, want 1", len(sf.reservations.cancelled))
	}
	if got := sf.repo.status(sf.payment.ID); got != StatusCompensated {
		t.Errorf("payment status: got %s, want %s", got, StatusCompensated)
	}
}

func TestChargeWithRetrySucceedsMidway(t *testing.T) {
	t.Parallel()
	charger := &fakeChargeClient{failCharges: 1}

	result, err := chargeWithRetry(context.Background(), charger, uuid.New(), 100, 3, time.Millisecond)
	if err != nil {
		t.Fatalf("chargeWithRetry: %v", err)
	}
	if result.Ref == "" {
		t.Error("empty charge ref")
	}
	if charger.chargeCount() != 2 {
		t.Errorf("attempts: got %d, want 2", charger.chargeCount())
	}
}

func TestChargeWithRetryStopsAtMaxAttempts(t *testing.T) {
	t.Parallel()
	charger := &fakeChargeClient{failCharges: 100}

	_, err := chargeWithRetry(context.Background(), charger, uuid.New(), 100, 3, time.Millisecond)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if charger.chargeCount() != 3 {
		t.Errorf("attempts: got %d, want 3", charger.chargeCount())
	}
}
