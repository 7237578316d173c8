package reservations

import (
	"context"
	"log"
	"time"
)

// JobProcessor cancels reservations whose hold deadline has lapsed,
// returning their seats to the pool.
type JobProcessor struct {
	service  Service
	interval time.Duration
	done     chan struct{}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(service Service, interval time.Duration) *JobProcessor {
	return &JobProcessor{
		service:  service,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start starts the hold-expiry sweep
func (jp *JobProcessor) Start(ctx context.Context) {
	go jp.startSweep(ctx)
	log.Println("Reservation hold-expiry sweep started")
}

// Stop stops the hold-expiry sweep
func (jp *JobProcessor) Stop() {
	close(jp.done)
	log.Println("Reservation hold-expiry sweep stopped")
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
	cancelled, err := jp.service.ExpireHolds(ctx)
	if err != nil {
		log.Printf("Error expiring reservation holds: %v", err)
		return
	}

	if cancelled > 0 {
		log.Printf("Cancelled %d expired reservation holds", cancelled)
	}
}
