package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Publisher is the outbound half of the saga bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *SagaEvent) error
	Close() error
}

type PublisherConfig struct {
	Brokers []string
	Retries int
	Timeout time.Duration
}

// KafkaPublisher publishes saga events through a synchronous idempotent
// producer. WaitForAll plus a single in-flight request keeps per-key
// ordering intact across producer retries.
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(config PublisherConfig) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = config.Retries
	saramaConfig.Producer.Timeout = config.Timeout
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaPublisher{producer: producer}, nil
}

func (kp *KafkaPublisher) Publish(ctx context.Context, topic string, event *SagaEvent) error {
	payload, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal saga event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(event.PartitionKey()),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: event.OccurredAt,
	}

	if _, _, err := kp.producer.SendMessage(message); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (kp *KafkaPublisher) Close() error {
	if kp.producer != nil {
		if err := kp.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
	}
	return nil
}
