package handler

import (
	"assetregistry/internal/registry/models"
	"assetregistry/pkg/domain"
)

type ExistsResponse struct {
	AssetID domain.AssetID `json:"asset_id"`
	Exists  bool           `json:"exists"`
}

type OwnerResponse struct {
	AssetID domain.AssetID  `json:"asset_id"`
	Owner   domain.Identity `json:"owner"`
}

type HistoryResponse struct {
	AssetID domain.AssetID `json:"asset_id"`
	Events  []models.Event `json:"events"`
}

type OwnedAssetsResponse struct {
	Owner    domain.Identity  `json:"owner"`
	AssetIDs []domain.AssetID `json:"asset_ids"`
}

// EventsResponse is one page of the global event log. Pass Next as the
// after parameter to fetch the following page.
type EventsResponse struct {
	Events []models.Event `json:"events"`
	Next   int64          `json:"next"`
}

func toEventsResponse(after int64, events []models.Event) *EventsResponse {
	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Sequence
	}
	if events == nil {
		events = []models.Event{}
	}
	return &EventsResponse{Events: events, Next: next}
}
