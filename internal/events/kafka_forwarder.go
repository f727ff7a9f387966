package events

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Producer is the slice of the Kafka client the forwarder needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaForwarder publishes domain events to a Kafka topic keyed by issue id,
// so per-issue ordering is preserved within a partition.
type KafkaForwarder struct {
	producer Producer
	topic    string
	logger   *zap.Logger
}

// NewKafkaClient builds a franz-go client for the given seed brokers.
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
}

// NewKafkaForwarder creates a forwarder over producer.
func NewKafkaForwarder(producer Producer, topic string, logger *zap.Logger) *KafkaForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaForwarder{producer: producer, topic: topic, logger: logger}
}

// Register subscribes the forwarder to every published event type.
func (f *KafkaForwarder) Register(dispatcher Dispatcher) {
	for _, eventType := range AllEventTypes {
		dispatcher.Subscribe(eventType, f.Handle)
	}
}

// Handle encodes the event and produces it asynchronously. Delivery failures
// are logged; they never fail the operation that emitted the event.
func (f *KafkaForwarder) Handle(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	record := &kgo.Record{
		Topic: f.topic,
		Key:   []byte(event.IssueID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	// The request context may be cancelled before delivery completes.
	f.producer.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			f.logger.Warn("kafka produce failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	})
	return nil
}
