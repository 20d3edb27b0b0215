package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/cart"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

// Engine is the reservation engine the cart routes dispatch to.
type Engine interface {
	Join(ctx context.Context, connID, eventID string) (model.Cart, error)
	GetCart(connID string) (model.Cart, error)
	SetTicket(ctx context.Context, connID, ticketTypeID string, amount int) (cart.Allocation, error)
	AddOrReleaseSeat(ctx context.Context, connID, seatID string) (model.Cart, error)
	RemoveItem(ctx context.Context, connID, itemID string) (model.Cart, error)
	Empty(ctx context.Context, connID string) (model.Cart, error)
	SetDiscount(connID, itemID string, discount float64) (model.Cart, error)
	SetUser(connID, userID string) (model.Cart, error)
	Disconnect(ctx context.Context, connID string) error
}

// Connections opens new client sessions.
type Connections interface {
	Open(origin model.Origin, userID string) *cart.Connection
}

// CartHandler serves the connection and cart routes.  Each route stands
// for one message of the client protocol: joining an event, setting a
// ticket amount, toggling a seat and so on.
type CartHandler struct {
	Engine      Engine
	Connections Connections
	Log         *zap.Logger
}

// NewCartHandler panics if a dependency is missing.
func NewCartHandler(engine Engine, conns Connections, log *zap.Logger) *CartHandler {
	if engine == nil || conns == nil {
		panic("nil dependency passed to NewCartHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{Engine: engine, Connections: conns, Log: log}
}

type connectionResponse struct {
	ConnectionID string       `json:"connection_id"`
	Origin       model.Origin `json:"origin"`
	UserID       string       `json:"user_id,omitempty"`
}

// Open handles POST /v1/connections.  Staff presenting an admin or
// promoter token get an internal connection acting for their user id;
// everybody else gets an external one.
func (h *CartHandler) Open(c echo.Context) error {
	origin, userID := model.OriginExternal, ""
	switch middleware.Role(c) {
	case utils.RoleAdmin, utils.RolePromoter:
		origin, userID = model.OriginInternal, middleware.UserID(c)
	}
	conn := h.Connections.Open(origin, userID)
	return c.JSON(http.StatusCreated, connectionResponse{
		ConnectionID: conn.ID,
		Origin:       conn.Origin(),
		UserID:       userID,
	})
}

// Close handles DELETE /v1/connections/:conn and releases every hold.
func (h *CartHandler) Close(c echo.Context) error {
	if err := h.Engine.Disconnect(c.Request().Context(), c.Param("conn")); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type joinRequest struct {
	EventID string `json:"event_id" validate:"required,max=64"`
}

// Join handles PUT /v1/connections/:conn/event.
func (h *CartHandler) Join(c echo.Context) error {
	var req joinRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	got, err := h.Engine.Join(c.Request().Context(), c.Param("conn"), req.EventID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, got)
}

// Get handles GET /v1/connections/:conn/cart.
func (h *CartHandler) Get(c echo.Context) error {
	got, err := h.Engine.GetCart(c.Param("conn"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, got)
}

type setTicketRequest struct {
	Amount *int `json:"amount" validate:"required,min=0,max=1000"`
}

type allocationResponse struct {
	cart.Allocation
	Partial bool `json:"partial"`
}

// SetTicket handles PUT /v1/connections/:conn/cart/tickets/:ticket.
// The amount is the absolute number of units wanted; partial is true
// when fewer units could be held.
func (h *CartHandler) SetTicket(c echo.Context) error {
	var req setTicketRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	alloc, err := h.Engine.SetTicket(c.Request().Context(), c.Param("conn"), c.Param("ticket"), *req.Amount)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, allocationResponse{Allocation: alloc, Partial: alloc.Partial()})
}

// ToggleSeat handles POST /v1/connections/:conn/cart/seats/:seat.  A
// seat already in the cart is released.
func (h *CartHandler) ToggleSeat(c echo.Context) error {
	got, err := h.Engine.AddOrReleaseSeat(c.Request().Context(), c.Param("conn"), c.Param("seat"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, got)
}

// RemoveItem handles DELETE /v1/connections/:conn/cart/items/:item.
func (h *CartHandler) RemoveItem(c echo.Context) error {
	got, err := h.Engine.RemoveItem(c.Request().Context(), c.Param("conn"), c.Param("item"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, got)
}

// Empty handles DELETE /v1/connections/:conn/cart.
func (h *CartHandler) Empty(c echo.Context) error {
	got, err := h.Engine.Empty(c.Request().Context(), c.Param("conn"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, got)
}

type discountRequest struct {
	Discount *float64 `json:"discount" validate:"required,gte=0"`
}

// SetDiscount handles PUT /v1/connections/:conn/cart/items/:item/discount.
func (h *CartHandler) SetDiscount(c echo.Context) error {
	var req discountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	got, err := h.Engine.SetDiscount(c.Param("conn"), c.Param("item"), *req.Discount)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, got)
}

type userRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// SetUser handles PUT /v1/connections/:conn/cart/user.
func (h *CartHandler) SetUser(c echo.Context) error {
	var req userRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	got, err := h.Engine.SetUser(c.Param("conn"), req.UserID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, got)
}
