package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// TicketTypeRepo provides read access to the ticket_types table.
type TicketTypeRepo struct {
	db *sql.DB
}

// NewTicketTypeRepo constructs a TicketTypeRepo with the given DB handle.
func NewTicketTypeRepo(db *sql.DB) *TicketTypeRepo { return &TicketTypeRepo{db: db} }

const ticketTypeColumns = `id, event_id, kind, contingent, online_max, gross_price, tax_percent,
	       name, label, sort_order, scan_type, active`

func scanTicketType(row interface{ Scan(...any) error }) (model.TicketType, error) {
	var tt model.TicketType
	err := row.Scan(&tt.ID, &tt.EventID, &tt.Kind, &tt.Contingent, &tt.OnlineMax,
		&tt.GrossPrice, &tt.TaxPercent, &tt.Name, &tt.Label, &tt.SortOrder, &tt.ScanType, &tt.Active)
	return tt, err
}

// GetByEvent returns the ticket type when it belongs to eventID, and
// model.ErrTicketTypeNotFound otherwise.
func (r *TicketTypeRepo) GetByEvent(ctx context.Context, eventID, id string) (model.TicketType, error) {
	q := `SELECT ` + ticketTypeColumns + `
	      FROM ticket_types
	      WHERE id = ? AND event_id = ?`
	tt, err := scanTicketType(r.db.QueryRowContext(ctx, q, id, eventID))
	if err != nil {
		return model.TicketType{}, notFound(err, model.ErrTicketTypeNotFound)
	}
	return tt, nil
}

// ListByEvent returns the active ticket types of an event in display order.
func (r *TicketTypeRepo) ListByEvent(ctx context.Context, eventID string) ([]model.TicketType, error) {
	q := `SELECT ` + ticketTypeColumns + `
	      FROM ticket_types
	      WHERE event_id = ? AND active = 1
	      ORDER BY sort_order, name`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TicketType{}
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tt)
	}
	return out, rows.Err()
}
