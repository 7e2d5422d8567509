// Package kafka publishes registry events to a Kafka topic.
//
// Records are keyed by asset id so every event for one asset lands on the
// same partition and consumers see them in commit order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"assetregistry/internal/registry/models"
)

const (
	HeaderEventID   = "event-id"
	HeaderEventKind = "event-kind"
	HeaderSequence  = "sequence"
)

// Producer is the subset of *kgo.Client used for publishing.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Publisher struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) (*Publisher, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	return &Publisher{producer: producer, topic: topic}, nil
}

func (p *Publisher) Name() string { return "kafka" }

// Publish produces the batch synchronously and fails if any record failed.
func (p *Publisher) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(events))
	for i := range events {
		rec, err := p.record(&events[i])
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := p.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) record(e *models.Event) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", e.Sequence, err)
	}
	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(e.AssetID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventID, Value: []byte(e.ID.String())},
			{Key: HeaderEventKind, Value: []byte(e.Kind)},
			{Key: HeaderSequence, Value: fmt.Appendf(nil, "%d", e.Sequence)},
		},
		Timestamp: e.Timestamp,
	}, nil
}
