package model

// Ticket kinds.  KindTicket is the only kind that counts against the
// event's maximum visitor cap.
const (
	KindTicket = "ticket"
	KindSeat   = "seat"
)

// TicketType represents a purchasable category of an event.  It is a
// row of the `ticket_types` table and is read-only from the cart's
// point of view.
//
// Fields:
//
//	ID         – primary key identifier.
//	EventID    – event the ticket type belongs to.
//	Kind       – ticket, seat or another non-visitor kind.
//	Contingent – total sellable units.
//	OnlineMax  – maximum units one external connection may hold.
//	GrossPrice – unit price including tax.
//	TaxPercent – tax rate contained in the gross price.
//	Name       – internal name.
//	Label      – display text copied into line items.
//	SortOrder  – ordering hint for clients.
//	ScanType   – how the ticket is scanned at the entrance.
//	Active     – inactive ticket types cannot be reserved.
type TicketType struct {
	ID         string  `json:"id"`
	EventID    string  `json:"event_id"`
	Kind       string  `json:"kind"`
	Contingent int     `json:"contingent"`
	OnlineMax  int     `json:"online_max"`
	GrossPrice float64 `json:"gross_price"`
	TaxPercent float64 `json:"tax_percent"`
	Name       string  `json:"name"`
	Label      string  `json:"label"`
	SortOrder  int     `json:"sort_order"`
	ScanType   string  `json:"scan_type"`
	Active     bool    `json:"active"`
}

// CountsVisitors reports whether units of this type count against the
// event's maximum visitor cap.
func (t TicketType) CountsVisitors() bool { return t.Kind == KindTicket }

// Event holds the attributes of an event the cart engine needs.
type Event struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	MaximumVisitors int    `json:"maximum_visitors"`
}
