package model

import (
	"errors"
	"fmt"
)

// Lookup failures reported by inventory providers.
var (
	ErrEventNotFound      = errors.New("event not found")
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrSeatNotFound       = errors.New("seat not found")
)

// Rejection states.
const (
	RejectSold     = "sold"
	RejectReserved = "reserved"
	RejectBlocked  = "blocked"
	RejectNotFound = "not-found"
)

// Rejection is the structured refusal of a reservation request.  It is
// a normal outcome, not an infrastructure fault; callers re-render the
// seat or ticket state to the user.  Exactly one of SeatID and
// TicketTypeID is set.
type Rejection struct {
	SeatID       string `json:"seat_id,omitempty"`
	TicketTypeID string `json:"ticket_type_id,omitempty"`
	State        string `json:"state"`
}

func (r *Rejection) Error() string {
	if r.SeatID != "" {
		return fmt.Sprintf("seat %s rejected: %s", r.SeatID, r.State)
	}
	return fmt.Sprintf("ticket type %s rejected: %s", r.TicketTypeID, r.State)
}
