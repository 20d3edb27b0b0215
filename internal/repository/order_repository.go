package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// OrderRepo counts units committed through orders.  Cancelled orders
// no longer hold inventory.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo constructs an OrderRepo with the given DB handle.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// CountSoldTickets returns how many units of a ticket type are sold.
func (r *OrderRepo) CountSoldTickets(ctx context.Context, ticketTypeID string) (int, error) {
	const q = `SELECT COUNT(*)
	           FROM order_details od
	           JOIN orders o ON o.id = od.order_id
	           WHERE od.type = ? AND od.type_id = ? AND o.state <> 'cancelled'`
	var n int
	if err := r.db.QueryRowContext(ctx, q, model.ItemTicket, ticketTypeID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountVisitors returns how many visitor-counted units of an event are
// sold across all of its ticket types.
func (r *OrderRepo) CountVisitors(ctx context.Context, eventID string) (int, error) {
	const q = `SELECT COUNT(*)
	           FROM order_details od
	           JOIN orders o ON o.id = od.order_id
	           JOIN ticket_types tt ON tt.id = od.type_id
	           WHERE od.type = ? AND tt.event_id = ? AND tt.kind = ? AND o.state <> 'cancelled'`
	var n int
	if err := r.db.QueryRowContext(ctx, q, model.ItemTicket, eventID, model.KindTicket).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
