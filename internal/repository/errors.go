// Package repository reads the committed inventory of events from
// MySQL: ticket types, seats with their room and table, and the counts
// of units already sold through orders.  Lookups that find no row
// return the sentinel errors of the model package so the cart engine
// can tell a missing resource from an infrastructure failure.
package repository

import (
	"database/sql"
	"errors"
)

// notFound maps sql.ErrNoRows to the given sentinel and leaves every
// other error untouched.
func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
