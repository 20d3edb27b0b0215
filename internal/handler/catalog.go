package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// Catalog lists what an event sells.
type Catalog interface {
	Event(ctx context.Context, eventID string) (model.Event, error)
	ListTicketTypes(ctx context.Context, eventID string) ([]model.TicketType, error)
}

// CatalogHandler serves the read-only event routes.
type CatalogHandler struct {
	Catalog Catalog
	Log     *zap.Logger
}

func NewCatalogHandler(catalog Catalog, log *zap.Logger) *CatalogHandler {
	if catalog == nil {
		panic("nil catalog passed to NewCatalogHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogHandler{Catalog: catalog, Log: log}
}

// TicketTypes handles GET /v1/events/:id/ticket-types.
func (h *CatalogHandler) TicketTypes(c echo.Context) error {
	ctx := c.Request().Context()
	ev, err := h.Catalog.Event(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	types, err := h.Catalog.ListTicketTypes(ctx, ev.ID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"event": ev, "ticket_types": types})
}
