package cart

import "errors"

// Sentinel errors returned by the engine.  Seat and ticket conflicts are
// reported as *model.Rejection instead.
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrNoEvent            = errors.New("connection has not joined an event")
	ErrEventChanged       = errors.New("connection switched events during the request")
	ErrInvalidAmount      = errors.New("amount must not be negative")
	ErrInvalidDiscount    = errors.New("discount must not be negative")
	ErrItemNotFound       = errors.New("line item not found")
	ErrForbidden          = errors.New("operation requires an internal connection")
)
