// Package relay delivers committed registry events to external subscribers.
//
// The event log is the outbox: a Worker reads events after its durable
// cursor, hands them to a Publisher and advances the cursor only after the
// publish succeeded. Delivery is at-least-once and in sequence order;
// subscribers deduplicate on the event ID.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"assetregistry/internal/registry/metrics"
	"assetregistry/internal/registry/models"
	"assetregistry/pkg/platform/circuit"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// EventSource is the read side of the registry store used by the relay.
type EventSource interface {
	EventsAfter(ctx context.Context, after int64, limit int) ([]models.Event, error)
	LatestSequence(ctx context.Context) (int64, error)
	LoadCursor(ctx context.Context, name string) (int64, error)
	SaveCursor(ctx context.Context, name string, sequence int64) error
}

// Publisher delivers a batch of events to one sink. A nil error means every
// event in the batch was accepted.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, events []models.Event) error
}

// Worker relays events from an EventSource to a single Publisher.
type Worker struct {
	source    EventSource
	publisher Publisher
	breaker   *circuit.Breaker
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	wake      chan struct{}
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) {
		if b != nil {
			w.breaker = b
		}
	}
}

func New(source EventSource, publisher Publisher, opts ...Option) (*Worker, error) {
	if source == nil {
		return nil, errors.New("event source is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	w := &Worker{
		source:    source,
		publisher: publisher,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.breaker == nil {
		w.breaker = circuit.New(publisher.Name())
	}
	return w, nil
}

func (w *Worker) Name() string { return w.publisher.Name() }

// Notify asks the worker to poll now. It never blocks.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Publish failures are logged and retried
// on the next tick; they never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "event relay started", "sink", w.Name(), "interval", w.interval)
	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "event relay stopped", "sink", w.Name())
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// drain publishes full batches until the log is caught up or a batch fails.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.ProcessBatch(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.logger.WarnContext(ctx, "event relay batch failed", "sink", w.Name(), "error", err)
			}
			return
		}
		if n < w.batchSize {
			return
		}
	}
}

// ProcessBatch publishes the next batch after the cursor and returns how many
// events were delivered. It returns 0 without publishing while the breaker is
// open.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	if !w.breaker.Allow() {
		return 0, nil
	}
	sink := w.Name()

	cursor, err := w.source.LoadCursor(ctx, sink)
	if err != nil {
		return 0, err
	}
	events, err := w.source.EventsAfter(ctx, cursor, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		w.setLag(ctx, cursor)
		return 0, nil
	}

	if err := w.publisher.Publish(ctx, events); err != nil {
		_, change := w.breaker.RecordFailure()
		if change.Opened {
			w.logger.ErrorContext(ctx, "event relay circuit opened", "sink", sink, "error", err)
		}
		if w.metrics != nil {
			w.metrics.IncrementRelayFailure(sink)
			w.metrics.SetCircuitOpen(sink, w.breaker.IsOpen())
		}
		return 0, err
	}
	if _, change := w.breaker.RecordSuccess(); change.Closed {
		w.logger.InfoContext(ctx, "event relay circuit closed", "sink", sink)
	}

	last := events[len(events)-1].Sequence
	if err := w.source.SaveCursor(ctx, sink, last); err != nil {
		// the batch will be delivered again; subscribers dedupe on event id
		return 0, err
	}
	if w.metrics != nil {
		w.metrics.ObservePublished(sink, len(events))
		w.metrics.SetCircuitOpen(sink, w.breaker.IsOpen())
	}
	w.setLag(ctx, last)
	return len(events), nil
}

func (w *Worker) setLag(ctx context.Context, cursor int64) {
	if w.metrics == nil {
		return
	}
	latest, err := w.source.LatestSequence(ctx)
	if err != nil {
		return
	}
	w.metrics.SetRelayLag(w.Name(), max(latest-cursor, 0))
}
