// Package redis owns the connection to the Redis server the event relay
// publishes to.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"assetregistry/internal/platform/config"
)

// ErrNoURL is returned by Options when Redis is not configured.
var ErrNoURL = errors.New("redis url is empty")

// Client is a pinged go-redis client. Embedding keeps Pipeline and Subscribe
// available to the publisher and to tests.
type Client struct {
	*redis.Client
	channel string
}

// Options turns cfg into go-redis options. Zero values in cfg keep the
// defaults parsed from the URL (or go-redis's own).
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	for dst, src := range map[*time.Duration]time.Duration{
		&opts.DialTimeout:  cfg.DialTimeout,
		&opts.ReadTimeout:  cfg.ReadTimeout,
		&opts.WriteTimeout: cfg.WriteTimeout,
	} {
		if src > 0 {
			*dst = src
		}
	}
	return opts, nil
}

// New connects and pings. It returns (nil, nil) when no URL is configured so
// callers can treat Redis as an optional sink.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts, err := Options(cfg)
	if errors.Is(err, ErrNoURL) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{Client: rdb, channel: cfg.EventsChannel}, nil
}

// Health pings the server. It backs the redis entry of /health.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Listeners reports how many subscribers currently listen on the events
// channel. Pub/sub drops messages nobody listens to, so zero is worth logging.
func (c *Client) Listeners(ctx context.Context) (int64, error) {
	if c.channel == "" {
		return 0, nil
	}
	counts, err := c.PubSubNumSub(ctx, c.channel).Result()
	if err != nil {
		return 0, err
	}
	return counts[c.channel], nil
}
