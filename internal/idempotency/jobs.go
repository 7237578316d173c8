package idempotency

import (
	"context"
	"log"
	"time"
)

// JobProcessor prunes expired idempotency records in the background
type JobProcessor struct {
	repo     Repository
	interval time.Duration
	done     chan struct{}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(repo Repository, interval time.Duration) *JobProcessor {
	return &JobProcessor{
		repo:     repo,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start starts the cleanup job
func (jp *JobProcessor) Start(ctx context.Context) {
	go jp.startCleanup(ctx)
	log.Println("Idempotency cleanup job started")
}

// Stop stops the cleanup job
func (jp *JobProcessor) Stop() {
	close(jp.done)
	log.Println("Idempotency cleanup job stopped")
}

func (jp *JobProcessor) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(jp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			jp.cleanup(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (jp *JobProcessor) cleanup(ctx context.Context) {
	deleted, err := jp.repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		log.Printf("Error deleting expired idempotency records: %v", err)
		return
	}

	if deleted > 0 {
		log.Printf("Deleted %d expired idempotency records", deleted)
	}
}
