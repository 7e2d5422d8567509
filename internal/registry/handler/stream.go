package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"assetregistry/internal/registry/models"
	dErrors "assetregistry/pkg/domain-errors"
	"assetregistry/pkg/platform/httputil"
)

const (
	streamBatch       = 100
	keepaliveInterval = 15 * time.Second
)

// HandleStream handles GET /events/stream as Server-Sent Events.
//
// The stream starts after the Last-Event-ID header (or the after query
// parameter), replays the committed log from there, then follows live
// events. Whenever the live feed skips sequence numbers, because the
// subscriber buffer overflowed, the gap is filled from the log, so clients
// see every event exactly once and in order.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	after, err := streamStart(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// the server write timeout would cut long-lived streams
	_ = rc.SetWriteDeadline(time.Time{})

	sub := h.stream.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &sseWriter{w: w, rc: rc, last: after}
	if err := s.comment("connected"); err != nil {
		return
	}
	if err := h.backfill(ctx, s, -1); err != nil {
		h.logger.WarnContext(ctx, "event stream replay failed", "error", err)
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if err := s.comment("keepalive"); err != nil {
				return
			}
		case <-sub.Ready():
			if err := h.forward(ctx, s, sub.Next(streamBatch)); err != nil {
				return
			}
			// more may be buffered than one batch
			for {
				batch := sub.Next(streamBatch)
				if len(batch) == 0 {
					break
				}
				if err := h.forward(ctx, s, batch); err != nil {
					return
				}
			}
		}
	}
}

// forward writes live events, filling any gap from the log first.
func (h *Handler) forward(ctx context.Context, s *sseWriter, live []models.Event) error {
	for i := range live {
		e := &live[i]
		if e.Sequence <= s.last {
			continue
		}
		if e.Sequence > s.last+1 {
			if err := h.backfill(ctx, s, e.Sequence-1); err != nil {
				return err
			}
		}
		if err := s.event(e); err != nil {
			return err
		}
	}
	return nil
}

// backfill replays the log after s.last up to and including upTo.
// A negative upTo replays to the current end of the log.
func (h *Handler) backfill(ctx context.Context, s *sseWriter, upTo int64) error {
	for upTo < 0 || s.last < upTo {
		events, err := h.service.Events(ctx, s.last, streamBatch)
		if err != nil {
			return err
		}
		for i := range events {
			if upTo >= 0 && events[i].Sequence > upTo {
				return nil
			}
			if err := s.event(&events[i]); err != nil {
				return err
			}
		}
		if len(events) < streamBatch {
			return nil
		}
	}
	return nil
}

func streamStart(r *http.Request) (int64, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("after")
	}
	if raw == "" {
		return 0, nil
	}
	after, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || after < 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "stream position must be a non-negative integer")
	}
	return after, nil
}

type sseWriter struct {
	w    io.Writer
	rc   *http.ResponseController
	last int64
}

func (s *sseWriter) event(e *models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", e.Sequence, e.Kind, data); err != nil {
		return err
	}
	s.last = e.Sequence
	return s.rc.Flush()
}

func (s *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.rc.Flush()
}
