package aggregator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher durably records Events to a Kafka topic, adapted from the
// pack's kafka.Producer: a thin *kafka.Writer wrapper that keys each
// message by game ID. The least-bytes balancer picks a partition by load,
// not by key, so one game's events are not kept on a single partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher creates a publisher writing to topic on the given
// brokers with least-bytes partitioning.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		topic: topic,
	}
}

// Publish implements EventPublisher.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	v, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("aggregator: marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(e.GameID),
		Value: v,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
