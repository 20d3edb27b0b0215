// Package router registers the HTTP routes of the reservation service.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

// RegisterRoutes registers the health checks.  ready may be nil when
// no database is wired, e.g. in tests.
func RegisterRoutes(e *echo.Echo, ready handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", handler.Ready(ready))
	}
}

// RegisterCatalog registers the read-only event routes.  cache sits in
// front of the ticket type listing only; the stream is never cached.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler, s *handler.StreamHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/events")
	g.GET("/:id/ticket-types", h.TicketTypes, cache)
	g.GET("/:id/stream", s.Stream)
}

// RegisterCart registers the connection and cart routes.  Opening a
// connection accepts an optional staff token; discounts and the acting
// user can only be changed by admins and promoters.  limiter throttles
// every route addressing an existing connection.
func RegisterCart(e *echo.Echo, h *handler.CartHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.POST("/v1/connections", h.Open, middleware.OptionalJWT(jwtSecret))

	g := e.Group("/v1/connections/:conn", limiter)
	g.DELETE("", h.Close)
	g.PUT("/event", h.Join)
	g.GET("/cart", h.Get)
	g.DELETE("/cart", h.Empty)
	g.PUT("/cart/tickets/:ticket", h.SetTicket)
	g.POST("/cart/seats/:seat", h.ToggleSeat)
	g.DELETE("/cart/items/:item", h.RemoveItem)

	staff := g.Group("", middleware.JWTAuth(jwtSecret), middleware.RequireRole(utils.RoleAdmin, utils.RolePromoter))
	staff.PUT("/cart/items/:item/discount", h.SetDiscount)
	staff.PUT("/cart/user", h.SetUser)
}
