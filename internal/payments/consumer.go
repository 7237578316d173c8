package payments

import (
	"context"
	"fmt"
	"time"

	"showtix/pkg/logger"

	"github.com/IBM/sarama"
)

type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	DeadLetterTopic string
	HandlerRetries  int
	HandlerBackoff  time.Duration
}

// Consumer pumps saga events from Kafka into the orchestrator. One
// consumer group session per instance; partition assignment gives the
// per-payment ordering the handlers rely on.
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	orchestrator  *Orchestrator
	repo          Repository
	publisher     Publisher
	config        ConsumerConfig
	log           *logger.Logger
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewConsumer(orchestrator *Orchestrator, repo Repository, publisher Publisher, config ConsumerConfig, log *logger.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Session.Timeout = 30 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		consumerGroup: consumerGroup,
		orchestrator:  orchestrator,
		repo:          repo,
		publisher:     publisher,
		config:        config,
		log:           log,
		done:          make(chan struct{}),
	}, nil
}

func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		for err := range c.consumerGroup.Errors() {
			c.log.WithError(err).Error("saga consumer group error")
		}
	}()

	go func() {
		defer close(c.done)
		handler := &sagaGroupHandler{consumer: c}
		topics := c.orchestrator.Topics()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := c.consumerGroup.Consume(ctx, topics, handler); err != nil {
					c.log.WithError(err).Error("saga consumer error")
					time.Sleep(time.Second)
				}
			}
		}
	}()

	c.log.Info("payment saga consumer started")
}

func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
	if err := c.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	c.log.Info("payment saga consumer stopped")
	return nil
}

type sagaGroupHandler struct {
	consumer *Consumer
}

func (h *sagaGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *sagaGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *sagaGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			h.processMessage(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage retries the handler with exponential backoff; an event
// that still fails goes to the dead-letter topic and table rather than
// blocking the partition.
func (h *sagaGroupHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	c := h.consumer

	event, err := SagaEventFromJSON(message.Value)
	if err != nil {
		c.log.WithError(err).Error("failed to decode saga event, routing to dead letter")
		h.deadLetter(ctx, message.Topic, string(message.Key), message.Value, err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.HandlerRetries; attempt++ {
		if attempt > 0 {
			delay := c.config.HandlerBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		if lastErr = c.orchestrator.Handle(ctx, message.Topic, event); lastErr == nil {
			return
		}
	}

	c.log.WithError(lastErr).WithFields(map[string]interface{}{
		"topic":      message.Topic,
		"payment_id": event.PaymentID.String(),
	}).Error("saga event exhausted retries, routing to dead letter")
	h.deadLetter(ctx, message.Topic, event.PartitionKey(), message.Value, lastErr)
}

func (h *sagaGroupHandler) deadLetter(ctx context.Context, topic, key string, payload []byte, cause error) {
	c := h.consumer

	letter := &DeadLetter{
		Topic:   topic,
		Key:     key,
		Payload: payload,
		Reason:  cause.Error(),
	}
	if err := c.repo.RecordDeadLetter(ctx, letter); err != nil {
		c.log.WithError(err).Error("failed to record dead letter")
	}

	event := &SagaEvent{Reason: cause.Error(), OccurredAt: time.Now()}
	if parsed, err := SagaEventFromJSON(payload); err == nil {
		event = parsed
		event.Reason = cause.Error()
	}
	if err := c.publisher.Publish(ctx, c.config.DeadLetterTopic, event); err != nil {
		c.log.WithError(err).Error("failed to publish dead letter")
	}
}
