// Package handler exposes the asset registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"assetregistry/internal/registry/models"
	"assetregistry/internal/registry/publishers/bus"
	"assetregistry/pkg/domain"
	dErrors "assetregistry/pkg/domain-errors"
	"assetregistry/pkg/platform/httputil"
	"assetregistry/pkg/requestcontext"
)

// Service defines the registry operations served over HTTP.
type Service interface {
	Register(ctx context.Context, caller domain.Identity, assetID domain.AssetID, metadata string) (*models.Receipt, error)
	VerifyAsset(ctx context.Context, assetID domain.AssetID) (*models.AssetRecord, error)
	TransferOwnership(ctx context.Context, caller domain.Identity, assetID domain.AssetID, newOwner domain.Identity) (*models.Receipt, error)
	UpdateMetadata(ctx context.Context, caller domain.Identity, assetID domain.AssetID, metadata string) (*models.Receipt, error)
	AssetsByOwner(ctx context.Context, identity domain.Identity) ([]domain.AssetID, error)
	AssetExists(ctx context.Context, assetID domain.AssetID) (bool, error)
	AssetOwner(ctx context.Context, assetID domain.AssetID) (domain.Identity, error)
	History(ctx context.Context, assetID domain.AssetID) ([]models.Event, error)
	Events(ctx context.Context, after int64, limit int) ([]models.Event, error)
}

// EventStream hands out live subscriptions to committed events.
type EventStream interface {
	Subscribe() *bus.Subscription
}

const maxEventsPage = 1000

type Handler struct {
	service Service
	stream  EventStream
	logger  *slog.Logger
}

// New constructs a registry handler. stream may be nil, in which case the
// SSE endpoint is not mounted.
func New(service Service, stream EventStream, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		stream:  stream,
		logger:  logger,
	}
}

// Register mounts the registry endpoints. Mutations go through requireAuth,
// which must put the caller identity into the request context.
func (h *Handler) Register(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/assets", h.HandleRegister)
		r.Post("/assets/{assetID}/transfer", h.HandleTransfer)
		r.Put("/assets/{assetID}/metadata", h.HandleUpdateMetadata)
	})

	r.Get("/assets/{assetID}", h.HandleVerify)
	r.Get("/assets/{assetID}/exists", h.HandleExists)
	r.Get("/assets/{assetID}/owner", h.HandleOwner)
	r.Get("/assets/{assetID}/history", h.HandleHistory)
	r.Get("/owners/{identity}/assets", h.HandleOwnedAssets)
	r.Get("/events", h.HandleEvents)
	if h.stream != nil {
		r.Get("/events/stream", h.HandleStream)
	}
}

// HandleRegister handles POST /assets.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	receipt, err := h.service.Register(ctx, caller, req.ParsedAssetID(), req.Metadata)
	if err != nil {
		h.logFailure(ctx, "register asset failed", req.ParsedAssetID(), err)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Location", "/assets/"+receipt.Record.AssetID.String())
	httputil.WriteJSON(w, http.StatusCreated, receipt)
}

// HandleVerify handles GET /assets/{assetID}.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	assetID, ok := h.assetIDParam(w, r)
	if !ok {
		return
	}
	record, err := h.service.VerifyAsset(r.Context(), assetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleExists handles GET /assets/{assetID}/exists.
func (h *Handler) HandleExists(w http.ResponseWriter, r *http.Request) {
	assetID, ok := h.assetIDParam(w, r)
	if !ok {
		return
	}
	exists, err := h.service.AssetExists(r.Context(), assetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ExistsResponse{AssetID: assetID, Exists: exists})
}

// HandleOwner handles GET /assets/{assetID}/owner.
func (h *Handler) HandleOwner(w http.ResponseWriter, r *http.Request) {
	assetID, ok := h.assetIDParam(w, r)
	if !ok {
		return
	}
	owner, err := h.service.AssetOwner(r.Context(), assetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OwnerResponse{AssetID: assetID, Owner: owner})
}

// HandleTransfer handles POST /assets/{assetID}/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	assetID, ok := h.assetIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	receipt, err := h.service.TransferOwnership(ctx, caller, assetID, req.ParsedNewOwner())
	if err != nil {
		h.logFailure(ctx, "transfer ownership failed", assetID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

// HandleUpdateMetadata handles PUT /assets/{assetID}/metadata.
func (h *Handler) HandleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	assetID, ok := h.assetIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateMetadataRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	receipt, err := h.service.UpdateMetadata(ctx, caller, assetID, *req.Metadata)
	if err != nil {
		h.logFailure(ctx, "update metadata failed", assetID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

// HandleHistory handles GET /assets/{assetID}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	assetID, ok := h.assetIDParam(w, r)
	if !ok {
		return
	}
	events, err := h.service.History(r.Context(), assetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{AssetID: assetID, Events: events})
}

// HandleOwnedAssets handles GET /owners/{identity}/assets.
func (h *Handler) HandleOwnedAssets(w http.ResponseWriter, r *http.Request) {
	owner, err := domain.ParseAddress(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ids, err := h.service.AssetsByOwner(r.Context(), owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OwnedAssetsResponse{Owner: owner, AssetIDs: ids})
}

// HandleEvents handles GET /events?after=N&limit=M.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	after, err := int64Query(r, "after", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := int64Query(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if limit < 0 || limit > maxEventsPage {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be between 1 and 1000"))
		return
	}

	events, err := h.service.Events(r.Context(), after, int(limit))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventsResponse(after, events))
}

func (h *Handler) requireCaller(w http.ResponseWriter, ctx context.Context) (domain.Identity, bool) {
	caller := requestcontext.Caller(ctx)
	if caller.IsEmpty() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return caller, true
}

func (h *Handler) assetIDParam(w http.ResponseWriter, r *http.Request) (domain.AssetID, bool) {
	id, err := domain.ParseAssetID(chi.URLParam(r, "assetID"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.AssetID{}, false
	}
	return id, true
}

func (h *Handler) logFailure(ctx context.Context, msg string, assetID domain.AssetID, err error) {
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"asset_id", assetID.String(),
		"caller", requestcontext.Caller(ctx).String(),
		"error", err,
	)
}

func int64Query(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, name+" must be an integer")
	}
	return v, nil
}
