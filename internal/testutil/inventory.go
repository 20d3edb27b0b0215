// Package testutil holds in-memory collaborators shared by package tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// Inventory is an in-memory inventory snapshot provider.  Delay makes
// every call sleep first, which widens the window between the reads and
// the cart mutation of a reservation the way a database round trip does.
type Inventory struct {
	mu          sync.Mutex
	events      map[string]model.Event
	ticketTypes map[string]model.TicketType
	seats       map[string]model.Seat
	sold        map[string]int

	Delay time.Duration
	Err   error
}

func NewInventory() *Inventory {
	return &Inventory{
		events:      make(map[string]model.Event),
		ticketTypes: make(map[string]model.TicketType),
		seats:       make(map[string]model.Seat),
		sold:        make(map[string]int),
	}
}

func (i *Inventory) AddEvent(ev model.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events[ev.ID] = ev
}

func (i *Inventory) AddTicketType(tt model.TicketType) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ticketTypes[tt.ID] = tt
}

func (i *Inventory) AddSeat(s model.Seat) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seats[s.ID] = s
}

// SetSold sets the committed sold count of a ticket type.
func (i *Inventory) SetSold(ticketTypeID string, n int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sold[ticketTypeID] = n
}

// SetErr makes every subsequent call fail with err (nil clears it).
func (i *Inventory) SetErr(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Err = err
}

func (i *Inventory) wait(ctx context.Context) error {
	i.mu.Lock()
	d, err := i.Delay, i.Err
	i.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (i *Inventory) Event(ctx context.Context, eventID string) (model.Event, error) {
	if err := i.wait(ctx); err != nil {
		return model.Event{}, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	ev, ok := i.events[eventID]
	if !ok {
		return model.Event{}, model.ErrEventNotFound
	}
	return ev, nil
}

func (i *Inventory) TicketType(ctx context.Context, eventID, ticketTypeID string) (model.TicketType, error) {
	if err := i.wait(ctx); err != nil {
		return model.TicketType{}, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	tt, ok := i.ticketTypes[ticketTypeID]
	if !ok || tt.EventID != eventID {
		return model.TicketType{}, model.ErrTicketTypeNotFound
	}
	return tt, nil
}

func (i *Inventory) Seat(ctx context.Context, eventID, seatID string) (model.Seat, error) {
	if err := i.wait(ctx); err != nil {
		return model.Seat{}, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.seats[seatID]
	if !ok || s.EventID != eventID {
		return model.Seat{}, model.ErrSeatNotFound
	}
	return s, nil
}

func (i *Inventory) CommittedSoldCount(ctx context.Context, ticketTypeID string) (int, error) {
	if err := i.wait(ctx); err != nil {
		return 0, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sold[ticketTypeID], nil
}

func (i *Inventory) CommittedVisitorCount(ctx context.Context, eventID string) (int, error) {
	if err := i.wait(ctx); err != nil {
		return 0, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for id, count := range i.sold {
		if tt, ok := i.ticketTypes[id]; ok && tt.EventID == eventID && tt.CountsVisitors() {
			n += count
		}
	}
	return n, nil
}

// ListTicketTypes returns the active ticket types of an event ordered
// by sort order.
func (i *Inventory) ListTicketTypes(ctx context.Context, eventID string) ([]model.TicketType, error) {
	if err := i.wait(ctx); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	out := []model.TicketType{}
	for _, tt := range i.ticketTypes {
		if tt.EventID == eventID && tt.Active {
			out = append(out, tt)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].SortOrder != out[b].SortOrder {
			return out[a].SortOrder < out[b].SortOrder
		}
		return out[a].Name < out[b].Name
	})
	return out, nil
}
