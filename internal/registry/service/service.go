// Package service implements the asset registry state transitions.
//
// Callers are pre-authenticated: every mutating operation takes the caller
// identity as an argument and trusts it verbatim. Authentication happens in
// the transport layer (see pkg/platform/middleware/auth.RequireAuth).
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"assetregistry/internal/registry/metrics"
	"assetregistry/internal/registry/models"
	"assetregistry/internal/registry/store"
	"assetregistry/pkg/domain"
	dErrors "assetregistry/pkg/domain-errors"
	"assetregistry/pkg/platform/sentinel"
	"assetregistry/pkg/requestcontext"
)

const tracerName = "assetregistry/internal/registry/service"

// Store persists records, the owner index and the event log atomically.
type Store interface {
	Create(ctx context.Context, record *models.AssetRecord, event *models.Event) (*models.Event, error)
	Execute(ctx context.Context, assetID domain.AssetID, validate store.ValidateFunc, mutate store.MutateFunc) (*models.AssetRecord, *models.Event, error)
	FindByID(ctx context.Context, assetID domain.AssetID) (*models.AssetRecord, error)
	Exists(ctx context.Context, assetID domain.AssetID) (bool, error)
	ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.AssetID, error)
	History(ctx context.Context, assetID domain.AssetID) ([]models.Event, error)
	EventsAfter(ctx context.Context, after int64, limit int) ([]models.Event, error)
}

// CommitNotifier is told after every committed mutation. The event relay uses
// it to publish without waiting for its next poll.
type CommitNotifier interface {
	Notify()
}

// Service owns the registry rules: create-only registration, owner-only
// transfer and metadata update, and read access for everyone.
type Service struct {
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	notifier CommitNotifier
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

func WithCommitNotifier(n CommitNotifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// New constructs a Service over st. Tracing uses the global provider unless
// WithTracerProvider is given.
func New(st Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("registry store is required")
	}
	s := &Service{store: st, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a record for assetID owned by caller.
//
// Errors: ErrInvalidIdentity for an empty caller, ErrAssetAlreadyRegistered
// when the id is taken. A failed registration leaves all state unchanged.
func (s *Service) Register(ctx context.Context, caller domain.Identity, assetID domain.AssetID, metadata string) (receipt *models.Receipt, err error) {
	ctx, finish := s.begin(ctx, "register", assetID)
	defer func() { finish(err) }()

	ec := s.eventContext(ctx, caller)
	record, err := models.NewAssetRecord(assetID, caller, metadata, ec.Now)
	if err != nil {
		return nil, err
	}

	event, err := s.store.Create(ctx, record, models.NewRegisteredEvent(ec, record))
	if err != nil {
		return nil, s.translate(err, assetID, "failed to register asset")
	}

	s.committed(ctx, event, "owner", caller)
	if s.metrics != nil {
		s.metrics.IncrementAssetsRegistered()
	}
	return models.NewReceipt(record, event), nil
}

// VerifyAsset returns the committed record for assetID. Anyone may verify.
func (s *Service) VerifyAsset(ctx context.Context, assetID domain.AssetID) (record *models.AssetRecord, err error) {
	ctx, finish := s.begin(ctx, "verify", assetID)
	defer func() { finish(err) }()

	record, err = s.store.FindByID(ctx, assetID)
	if err != nil {
		return nil, s.translate(err, assetID, "failed to load asset")
	}
	return record, nil
}

// TransferOwnership hands assetID from caller to newOwner.
//
// The ownership check runs against the locked current record, so of two
// racing transfers from the same owner only the first commits; the second
// fails with ErrNotAssetOwner. Transferring to the current owner succeeds,
// appends an OwnershipTransferred event and leaves the owner index as is.
func (s *Service) TransferOwnership(ctx context.Context, caller domain.Identity, assetID domain.AssetID, newOwner domain.Identity) (receipt *models.Receipt, err error) {
	ctx, finish := s.begin(ctx, "transfer", assetID)
	defer func() { finish(err) }()

	if newOwner.IsEmpty() {
		return nil, models.InvalidIdentity("new owner identity cannot be empty")
	}
	ec := s.eventContext(ctx, caller)

	record, event, err := s.store.Execute(ctx, assetID,
		func(current *models.AssetRecord) error {
			return current.CanTransfer(caller, newOwner)
		},
		func(current *models.AssetRecord) *models.Event {
			previous := current.Owner
			current.ApplyTransfer(newOwner)
			return models.NewTransferredEvent(ec, current.AssetID, previous, newOwner)
		},
	)
	if err != nil {
		return nil, s.translate(err, assetID, "failed to transfer asset")
	}

	s.committed(ctx, event, "previous_owner", event.PreviousOwner, "new_owner", newOwner)
	if s.metrics != nil {
		s.metrics.IncrementTransfers()
	}
	return models.NewReceipt(record, event), nil
}

// UpdateMetadata replaces the metadata of assetID. Only the owner may do so;
// owner and registration time are unaffected.
func (s *Service) UpdateMetadata(ctx context.Context, caller domain.Identity, assetID domain.AssetID, metadata string) (receipt *models.Receipt, err error) {
	ctx, finish := s.begin(ctx, "update_metadata", assetID)
	defer func() { finish(err) }()

	ec := s.eventContext(ctx, caller)
	record, event, err := s.store.Execute(ctx, assetID,
		func(current *models.AssetRecord) error {
			return current.CanUpdateMetadata(caller)
		},
		func(current *models.AssetRecord) *models.Event {
			current.ApplyMetadata(metadata)
			return models.NewMetadataUpdatedEvent(ec, current.AssetID, metadata)
		},
	)
	if err != nil {
		return nil, s.translate(err, assetID, "failed to update asset metadata")
	}

	s.committed(ctx, event)
	return models.NewReceipt(record, event), nil
}

// AssetsByOwner returns the assets identity currently owns, ordered by id.
// An identity that owns nothing yields an empty, non-nil slice.
func (s *Service) AssetsByOwner(ctx context.Context, identity domain.Identity) (ids []domain.AssetID, err error) {
	ctx, finish := s.begin(ctx, "assets_by_owner", domain.AssetID{})
	defer func() { finish(err) }()

	ids, err = s.store.ListByOwner(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list owned assets")
	}
	if ids == nil {
		ids = []domain.AssetID{}
	}
	return ids, nil
}

// AssetExists reports whether assetID has been registered. It never fails
// for an unknown id.
func (s *Service) AssetExists(ctx context.Context, assetID domain.AssetID) (exists bool, err error) {
	ctx, finish := s.begin(ctx, "exists", assetID)
	defer func() { finish(err) }()

	exists, err = s.store.Exists(ctx, assetID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check asset")
	}
	return exists, nil
}

// AssetOwner returns the current owner of assetID.
func (s *Service) AssetOwner(ctx context.Context, assetID domain.AssetID) (domain.Identity, error) {
	record, err := s.VerifyAsset(ctx, assetID)
	if err != nil {
		return "", err
	}
	return record.Owner, nil
}

// History returns the events for assetID in commit order.
func (s *Service) History(ctx context.Context, assetID domain.AssetID) (events []models.Event, err error) {
	ctx, finish := s.begin(ctx, "history", assetID)
	defer func() { finish(err) }()

	events, err = s.store.History(ctx, assetID)
	if err != nil {
		return nil, s.translate(err, assetID, "failed to load asset history")
	}
	return events, nil
}

// Events pages the global event log: up to limit events with a sequence
// greater than after.
func (s *Service) Events(ctx context.Context, after int64, limit int) (events []models.Event, err error) {
	ctx, finish := s.begin(ctx, "events", domain.AssetID{})
	defer func() { finish(err) }()

	if after < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "after must not be negative")
	}
	events, err = s.store.EventsAfter(ctx, after, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return events, nil
}

// begin opens a span for operation and returns a func that records the
// outcome on the span and in metrics.
func (s *Service) begin(ctx context.Context, operation string, assetID domain.AssetID) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{attribute.String("registry.operation", operation)}
	if !assetID.IsZero() {
		attrs = append(attrs, attribute.String("registry.asset_id", assetID.String()))
	}
	ctx, span := s.tracer.Start(ctx, "registry."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(operation, start, err)
		}
	}
}

func (s *Service) eventContext(ctx context.Context, caller domain.Identity) models.EventContext {
	return models.EventContext{
		Actor:     caller,
		RequestID: requestcontext.RequestID(ctx),
		// SQL stores keep microseconds; truncate so receipts match later reads.
		Now: requestcontext.Now(ctx).UTC().Truncate(time.Microsecond),
	}
}

// translate maps store errors to registry errors. Errors that already carry a
// code (validation failures from the record) pass through untouched.
func (s *Service) translate(err error, assetID domain.AssetID, msg string) error {
	var coded *dErrors.Error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return models.AssetDoesNotExist(assetID)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return models.AssetAlreadyRegistered(assetID)
	case errors.As(err, &coded):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// committed writes the audit line for event and wakes the relay.
func (s *Service) committed(ctx context.Context, event *models.Event, attributes ...any) {
	s.logAudit(ctx, event, attributes...)
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

func (s *Service) logAudit(ctx context.Context, event *models.Event, attributes ...any) {
	if s.logger == nil {
		return
	}
	args := append(attributes,
		"event", event.Kind.String(),
		"log_type", "audit",
		"asset_id", event.AssetID.String(),
		"actor", event.Actor.String(),
		"sequence", event.Sequence,
	)
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	s.logger.InfoContext(ctx, event.Kind.String(), args...)
}
