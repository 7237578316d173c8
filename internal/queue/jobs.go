package queue

import (
	"context"
	"log"
	"time"
)

// JobProcessor periodically promotes waiting users across all targets
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

// Start starts the promotion job
func (jp *JobProcessor) Start(ctx context.Context) {
	go jp.startPromoter(ctx)
	log.Println("Queue promotion job started")
}

// Stop stops the promotion job
func (jp *JobProcessor) Stop() {
	close(jp.done)
	log.Println("Queue promotion job stopped")
}

func (jp *JobProcessor) startPromoter(ctx context.Context) {
	ticker := time.NewTicker(jp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			jp.promote(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (jp *JobProcessor) promote(ctx context.Context) {
	promoted, err := jp.service.PromoteAll(ctx)
	if err != nil {
		log.Printf("Error promoting waiting users: %v", err)
		return
	}

	if promoted > 0 {
		log.Printf("Promoted %d waiting users", promoted)
	}
}
