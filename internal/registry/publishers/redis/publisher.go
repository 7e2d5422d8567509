// Package redis publishes registry events on a Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"assetregistry/internal/registry/models"
)

// Pipeliner is the subset of the go-redis client used for publishing.
type Pipeliner interface {
	Pipeline() redis.Pipeliner
}

type Publisher struct {
	client  Pipeliner
	channel string
}

func New(client Pipeliner, channel string) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if channel == "" {
		return nil, errors.New("redis channel is required")
	}
	return &Publisher{client: client, channel: channel}, nil
}

func (p *Publisher) Name() string { return "redis" }

// Publish sends the batch in one pipeline round trip, in sequence order.
// Pub/sub has no retention: subscribers that are offline miss events and
// should catch up from the event log.
func (p *Publisher) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for i := range events {
		payload, err := json.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("encode event %d: %w", events[i].Sequence, err)
		}
		pipe.Publish(ctx, p.channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
