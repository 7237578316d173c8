package payments

import (
	"context"
	"log"
	"time"
)

// JobProcessor sweeps payments stuck past their deadline. PROCESSING
// payments are pushed onto the compensation path; CREATED payments,
// whose requested event was lost between persisting the row and
// publishing, get the event re-published. Re-publishing is safe: the
// CREATED to PROCESSING transition filters duplicate deliveries.
type JobProcessor struct {
	repo      Repository
	publisher Publisher
	deadline  time.Duration
	interval  time.Duration
	batch     int
	done      chan struct{}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(repo Repository, publisher Publisher, deadline, interval time.Duration, batch int) *JobProcessor {
	return &JobProcessor{
		repo:      repo,
		publisher: publisher,
		deadline:  deadline,
		interval:  interval,
		batch:     batch,
		done:      make(chan struct{}),
	}
}

// Start starts the stuck-payment sweep
func (jp *JobProcessor) Start(ctx context.Context) {
	go jp.startSweep(ctx)
	log.Println("Payment stuck-processing sweep started")
}

// Stop stops the stuck-payment sweep
func (jp *JobProcessor) Stop() {
	close(jp.done)
	log.Println("Payment stuck-processing sweep stopped")
}

func (jp *JobProcessor) startSweep(ctx context.Context) {
	ticker := time.NewTicker(jp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			jp.sweep(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (jp *JobProcessor) sweep(ctx context.Context) {
	before := time.Now().Add(-jp.deadline)

	stuck, err := jp.repo.StuckInStatus(ctx, StatusProcessing, before, jp.batch)
	if err != nil {
		log.Printf("Error listing stuck payments: %v", err)
	} else {
		for i := range stuck {
			payment := &stuck[i]
			event := NewSagaEvent(payment)
			event.Reason = "processing deadline exceeded"
			if err := jp.publisher.Publish(ctx, TopicPaymentCompensate, event); err != nil {
				log.Printf("Error requesting compensation for payment %s: %v", payment.ID, err)
				continue
			}
		}
		if len(stuck) > 0 {
			log.Printf("Requested compensation for %d stuck payments", len(stuck))
		}
	}

	unstarted, err := jp.repo.StuckInStatus(ctx, StatusCreated, before, jp.batch)
	if err != nil {
		log.Printf("Error listing unstarted payments: %v", err)
		return
	}
	for i := range unstarted {
		payment := &unstarted[i]
		if err := jp.publisher.Publish(ctx, TopicPaymentRequested, NewSagaEvent(payment)); err != nil {
			log.Printf("Error re-publishing requested event for payment %s: %v", payment.ID, err)
			continue
		}
	}
	if len(unstarted) > 0 {
		log.Printf("Re-published requested events for %d unstarted payments", len(unstarted))
	}
}
