package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/broadcast"
)

// Subscriber delivers the broadcasts of one event until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, eventID string) (<-chan broadcast.Message, error)
}

// StreamHandler relays event broadcasts to browsers as server-sent
// events.
type StreamHandler struct {
	Catalog   Catalog
	Subs      Subscriber
	Log       *zap.Logger
	Heartbeat time.Duration
}

func NewStreamHandler(catalog Catalog, subs Subscriber, log *zap.Logger) *StreamHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamHandler{Catalog: catalog, Subs: subs, Log: log, Heartbeat: 15 * time.Second}
}

// Stream handles GET /v1/events/:id/stream.  Each broadcast is written
// as one SSE frame named after its topic with the payload as data.
func (h *StreamHandler) Stream(c echo.Context) error {
	if h.Subs == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "broadcasts disabled"})
	}
	ctx := c.Request().Context()
	eventID := c.Param("id")
	if _, err := h.Catalog.Event(ctx, eventID); err != nil {
		return writeError(c, h.Log, err)
	}
	msgs, err := h.Subs.Subscribe(ctx, eventID)
	if err != nil {
		h.Log.Warn("subscribe failed", zap.String("event_id", eventID), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "broadcasts unavailable"})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	heartbeat := time.NewTicker(h.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", m.Topic, m.Payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
