package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/cart"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// writeError maps engine outcomes to HTTP responses.  Rejections carry
// the structured rejection so clients can re-render the seat or ticket
// state: 404 when the seat or ticket type does not exist, 409 otherwise.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var rej *model.Rejection
	var he *echo.HTTPError
	switch {
	case errors.As(err, &rej):
		status := http.StatusConflict
		if rej.State == model.RejectNotFound {
			status = http.StatusNotFound
		}
		return c.JSON(status, echo.Map{"error": "rejected", "rejection": rej})
	case errors.As(err, &he):
		return c.JSON(he.Code, echo.Map{"error": he.Message})
	case errors.Is(err, cart.ErrConnectionNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, model.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, cart.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, cart.ErrNoEvent), errors.Is(err, cart.ErrEventChanged):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, cart.ErrInvalidAmount), errors.Is(err, cart.ErrInvalidDiscount):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		log.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("conn_id", c.Param("conn")),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
