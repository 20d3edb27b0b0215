package model

import (
	"strconv"
	"strings"
)

// Seat states.  A seat's state is derived from its links to committed
// orders and reservations; holds in carts are not stored on the seat.
const (
	SeatFree     = "free"
	SeatSold     = "sold"
	SeatReserved = "reserved"
)

// SeatBlocked is announced while a seat sits in some connection's cart.
// It is never returned by Seat.State.
const SeatBlocked = "blocked"

// Seat describes a single physical seat of an event.  Seats belong to a
// room and optionally to a table.  Label fields are copied into the
// display text of a seat line item.
type Seat struct {
	ID            string  `json:"id"`
	EventID       string  `json:"event_id"`
	RoomID        *string `json:"room_id,omitempty"`
	TableID       *string `json:"table_id,omitempty"`
	Name          string  `json:"name"`
	RoomName      string  `json:"room_name"`
	RoomLabel     string  `json:"room_label"`
	TableName     string  `json:"table_name"`
	TableLabel    string  `json:"table_label"`
	TableNumber   int     `json:"table_number"`
	Label         string  `json:"label"`
	Row           string  `json:"row"`
	Number        int     `json:"number"`
	GrossPrice    float64 `json:"gross_price"`
	TaxPercent    float64 `json:"tax_percent"`
	OrderID       *string `json:"order_id,omitempty"`
	ReservationID *string `json:"reservation_id,omitempty"`
}

// State returns sold when the seat is linked to an order, reserved when
// it is linked to a reservation and free otherwise.
func (s Seat) State() string {
	switch {
	case s.OrderID != nil:
		return SeatSold
	case s.ReservationID != nil:
		return SeatReserved
	default:
		return SeatFree
	}
}

// DisplayText builds the text shown for the seat in a cart: room, table
// and seat labels followed by row/number, table number/number or just
// the number, whichever is available first.
func (s Seat) DisplayText() string {
	var b strings.Builder
	b.WriteString(s.RoomLabel)
	if s.TableLabel != "" {
		b.WriteString(" " + s.TableLabel)
	}
	if s.Label != "" {
		b.WriteString(" " + s.Label)
	}
	switch {
	case s.Row != "" && s.Number != 0:
		b.WriteString(" " + s.Row + "/" + strconv.Itoa(s.Number))
	case s.TableNumber != 0 && s.Number != 0:
		b.WriteString(" " + strconv.Itoa(s.TableNumber) + "/" + strconv.Itoa(s.Number))
	case s.Number != 0:
		b.WriteString(" " + strconv.Itoa(s.Number))
	}
	return strings.TrimSpace(b.String())
}
