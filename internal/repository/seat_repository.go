package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// SeatRepo provides read access to seats together with the labels of
// the room and table they belong to.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// GetByEvent returns the seat when it belongs to eventID, and
// model.ErrSeatNotFound otherwise.  OrderID and ReservationID carry the
// committed links that decide whether the seat is sold or reserved.
func (r *SeatRepo) GetByEvent(ctx context.Context, eventID, id string) (model.Seat, error) {
	const q = `SELECT s.id, s.event_id, s.room_id, s.table_id, s.name, s.label, s.seat_row, s.seat_number,
	                  s.gross_price, s.tax_percent, s.order_id, s.reservation_id,
	                  COALESCE(rm.name, ''), COALESCE(rm.label, ''),
	                  COALESCE(tb.name, ''), COALESCE(tb.label, ''), COALESCE(tb.table_number, 0)
	           FROM seats s
	           LEFT JOIN rooms rm ON rm.id = s.room_id
	           LEFT JOIN ` + "`tables`" + ` tb ON tb.id = s.table_id
	           WHERE s.id = ? AND s.event_id = ?`
	var (
		s                      model.Seat
		roomID, tableID        sql.NullString
		orderID, reservationID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, id, eventID).Scan(
		&s.ID, &s.EventID, &roomID, &tableID, &s.Name, &s.Label, &s.Row, &s.Number,
		&s.GrossPrice, &s.TaxPercent, &orderID, &reservationID,
		&s.RoomName, &s.RoomLabel, &s.TableName, &s.TableLabel, &s.TableNumber,
	)
	if err != nil {
		return model.Seat{}, notFound(err, model.ErrSeatNotFound)
	}
	s.RoomID = nullable(roomID)
	s.TableID = nullable(tableID)
	s.OrderID = nullable(orderID)
	s.ReservationID = nullable(reservationID)
	return s, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
