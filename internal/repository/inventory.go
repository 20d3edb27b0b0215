package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// Inventory bundles the repositories into the snapshot provider the
// cart engine reads committed state from.
type Inventory struct {
	Events      *EventRepo
	TicketTypes *TicketTypeRepo
	Seats       *SeatRepo
	Orders      *OrderRepo
}

// NewInventory wires every repository to the same DB handle.
func NewInventory(db *sql.DB) *Inventory {
	return &Inventory{
		Events:      NewEventRepo(db),
		TicketTypes: NewTicketTypeRepo(db),
		Seats:       NewSeatRepo(db),
		Orders:      NewOrderRepo(db),
	}
}

func (i *Inventory) Event(ctx context.Context, eventID string) (model.Event, error) {
	return i.Events.GetByID(ctx, eventID)
}

func (i *Inventory) TicketType(ctx context.Context, eventID, ticketTypeID string) (model.TicketType, error) {
	return i.TicketTypes.GetByEvent(ctx, eventID, ticketTypeID)
}

func (i *Inventory) Seat(ctx context.Context, eventID, seatID string) (model.Seat, error) {
	return i.Seats.GetByEvent(ctx, eventID, seatID)
}

func (i *Inventory) CommittedSoldCount(ctx context.Context, ticketTypeID string) (int, error) {
	return i.Orders.CountSoldTickets(ctx, ticketTypeID)
}

func (i *Inventory) CommittedVisitorCount(ctx context.Context, eventID string) (int, error) {
	return i.Orders.CountVisitors(ctx, eventID)
}

// ListTicketTypes returns the active ticket types of an event.
func (i *Inventory) ListTicketTypes(ctx context.Context, eventID string) ([]model.TicketType, error) {
	return i.TicketTypes.ListByEvent(ctx, eventID)
}
