// Package kafka appends audit events to a Kafka topic. Records are keyed by
// tenant so one tenant's trail stays ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"concilia/internal/audit"
)

// Store is a Kafka-backed audit sink.
type Store struct {
	client *kgo.Client
	topic  string
}

// New builds the sink. Returns nil when no brokers are configured so main
// can wire it unconditionally.
func New(brokers []string, topic string) (*Store, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("build kafka client: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.TenantID.String()),
		Value: value,
	}
	// async produce; the publisher already treats sink errors as non-fatal
	s.client.Produce(ctx, record, nil)
	return nil
}

// Close flushes buffered records and releases the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush audit records: %w", err)
	}
	s.client.Close()
	return nil
}
