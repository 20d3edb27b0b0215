package model

// Origin tells whether a connection belongs to a staff member (admin or
// promoter) or to a public client.  Online maximums apply to external
// connections only.
type Origin string

const (
	OriginInternal Origin = "internal"
	OriginExternal Origin = "external"
)

// Line item types.
const (
	ItemTicket = "ticket"
	ItemSeat   = "seat"
)

// ItemStateHeld marks a line item that is reserved but not committed.
const ItemStateHeld = "held"

// LineItem is one unit in a cart: a single ticket of a ticket type or a
// single seat.  Price fields are captured when the item is added and
// are never re-read from the ticket type or seat afterwards.
type LineItem struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	RefID        string  `json:"ref_id"`
	Kind         string  `json:"kind"`
	Name         string  `json:"name"`
	Text         string  `json:"text"`
	ScanType     string  `json:"scan_type"`
	State        string  `json:"state"`
	SortOrder    int     `json:"sort_order"`
	GrossRegular float64 `json:"gross_regular"`
	Discount     float64 `json:"discount"`
	GrossPrice   float64 `json:"gross_price"`
	TaxPercent   float64 `json:"tax_percent"`
	TaxPrice     float64 `json:"tax_price"`
	NetPrice     float64 `json:"net_price"`
}

// CountsVisitors reports whether the item counts against the event's
// maximum visitor cap.
func (li LineItem) CountsVisitors() bool {
	return li.Type == ItemTicket && li.Kind == KindTicket
}

// Totals are the sums over all line items of a cart.
type Totals struct {
	Gross float64 `json:"gross_total"`
	Net   float64 `json:"net_total"`
	Tax   float64 `json:"tax_total"`
}

// Cart is the reservation state of one connection.
type Cart struct {
	ConnectionID string     `json:"connection_id"`
	Origin       Origin     `json:"origin"`
	UserID       string     `json:"user_id,omitempty"`
	Items        []LineItem `json:"items"`
	Totals
}

// Clone returns a deep copy so callers never share the item slice with
// the engine.
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]LineItem, len(c.Items))
	copy(out.Items, c.Items)
	return out
}

// HoldsSeat reports whether the cart contains the given seat.
func (c Cart) HoldsSeat(seatID string) bool {
	for _, it := range c.Items {
		if it.Type == ItemSeat && it.RefID == seatID {
			return true
		}
	}
	return false
}
