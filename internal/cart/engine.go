// Package cart implements the reservation engine: per-connection carts
// holding fungible tickets and seats of an event, clamped against the
// contingent, the online maximum and the event's visitor cap.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/broadcast"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// Inventory is the read-only view of committed state.
type Inventory interface {
	Event(ctx context.Context, eventID string) (model.Event, error)
	TicketType(ctx context.Context, eventID, ticketTypeID string) (model.TicketType, error)
	Seat(ctx context.Context, eventID, seatID string) (model.Seat, error)
	CommittedSoldCount(ctx context.Context, ticketTypeID string) (int, error)
	CommittedVisitorCount(ctx context.Context, eventID string) (int, error)
}

// ConnectionRegistry gives the engine access to the live connections.
type ConnectionRegistry interface {
	Get(connID string) (*Connection, bool)
	Others(eventID, excluding string) []*Connection
	Remove(connID string) (*Connection, bool)
}

// Notifier publishes availability changes of an event.
type Notifier interface {
	Publish(ctx context.Context, eventID, topic string, payload any) error
}

// Allocation is the result of SetTicket.  Granted is lower than
// Requested when the amount was clamped.
type Allocation struct {
	Cart         model.Cart `json:"cart"`
	TicketTypeID string     `json:"ticket_type_id"`
	Requested    int        `json:"requested"`
	Granted      int        `json:"granted"`
}

// Partial reports whether the request was only partly fulfilled.
func (a Allocation) Partial() bool { return a.Granted < a.Requested }

// Engine serialises every read-scan-mutate sequence per resource: one
// lock per seat, one per non-visitor ticket type, and a single lock for
// all visitor-counted ticket types of an event.
type Engine struct {
	inv            Inventory
	reg            ConnectionRegistry
	notifier       Notifier
	locks          *Locker
	log            *zap.Logger
	newID          func() string
	publishTimeout time.Duration
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithIDGenerator replaces the line item id generator.
func WithIDGenerator(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

// WithPublishTimeout bounds each broadcast.  Non-positive values keep
// the default.
func WithPublishTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.publishTimeout = d
		}
	}
}

func NewEngine(inv Inventory, reg ConnectionRegistry, opts ...Option) *Engine {
	e := &Engine{
		inv:            inv,
		reg:            reg,
		notifier:       broadcast.Nop{},
		locks:          NewLocker(),
		log:            zap.NewNop(),
		newID:          uuid.NewString,
		publishTimeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func visitorsKey(eventID string) string { return "event:" + eventID + ":visitors" }

func ticketKey(eventID, kind, ticketTypeID string) string {
	if kind == model.KindTicket {
		return visitorsKey(eventID)
	}
	return "event:" + eventID + ":ticket:" + ticketTypeID
}

func seatKey(eventID, seatID string) string { return "event:" + eventID + ":seat:" + seatID }

// joined returns the connection and the event it currently browses.
func (e *Engine) joined(connID string) (*Connection, string, error) {
	conn, ok := e.reg.Get(connID)
	if !ok {
		return nil, "", ErrConnectionNotFound
	}
	eventID := conn.EventID()
	if eventID == "" {
		return nil, "", ErrNoEvent
	}
	return conn, eventID, nil
}

// Join binds a connection to an event.  Moving to another event
// releases everything the connection held in the previous one.
func (e *Engine) Join(ctx context.Context, connID, eventID string) (model.Cart, error) {
	conn, ok := e.reg.Get(connID)
	if !ok {
		return model.Cart{}, ErrConnectionNotFound
	}
	if _, err := e.inv.Event(ctx, eventID); err != nil {
		return model.Cart{}, err
	}
	prev, released := conn.join(eventID)
	if prev != "" && len(released) > 0 {
		e.announceReleased(ctx, prev, released)
	}
	return conn.Snapshot(), nil
}

// GetCart returns the connection's cart, empty when nothing is held.
func (e *Engine) GetCart(connID string) (model.Cart, error) {
	conn, ok := e.reg.Get(connID)
	if !ok {
		return model.Cart{}, ErrConnectionNotFound
	}
	return conn.Snapshot(), nil
}

// SetTicket sets the number of held units of a ticket type to amount.
// The amount is an absolute target, not a delta.  It is silently
// clamped to what the connection may hold; Allocation.Granted carries
// the clamped value.
func (e *Engine) SetTicket(ctx context.Context, connID, ticketTypeID string, amount int) (Allocation, error) {
	if amount < 0 {
		return Allocation{}, ErrInvalidAmount
	}
	conn, eventID, err := e.joined(connID)
	if err != nil {
		return Allocation{}, err
	}
	alloc := Allocation{TicketTypeID: ticketTypeID, Requested: amount}

	if amount == 0 {
		alloc.Cart, err = conn.mutate(eventID, func(c *model.Cart) error {
			c.Items = withoutTicket(c.Items, ticketTypeID)
			return nil
		})
		return alloc, err
	}

	tt, err := e.inv.TicketType(ctx, eventID, ticketTypeID)
	if errors.Is(err, model.ErrTicketTypeNotFound) || (err == nil && !tt.Active) {
		e.log.Info("ticket type rejected",
			zap.String("event_id", eventID),
			zap.String("ticket_type_id", ticketTypeID),
			zap.String("conn_id", connID))
		return Allocation{}, &model.Rejection{TicketTypeID: ticketTypeID, State: model.RejectNotFound}
	}
	if err != nil {
		return Allocation{}, fmt.Errorf("load ticket type: %w", err)
	}

	alloc, notices, err := e.setTicketLocked(ctx, conn, eventID, tt, alloc)
	if err != nil {
		return Allocation{}, err
	}
	e.broadcast(ctx, eventID, notices)
	return alloc, nil
}

// setTicketLocked runs the read-scan-mutate sequence under the ticket
// lock and returns the broadcasts to send once the lock is released.
func (e *Engine) setTicketLocked(ctx context.Context, conn *Connection, eventID string, tt model.TicketType, alloc Allocation) (Allocation, []notice, error) {
	unlock := e.locks.Lock(ticketKey(eventID, tt.Kind, tt.ID))
	defer unlock()

	av, err := e.availability(ctx, eventID, conn.ID, tt)
	if err != nil {
		return Allocation{}, nil, err
	}
	// The requester's own units of this type are replaced, its other
	// visitor-counted units still count against the cap.
	held, ownVisitors := conn.heldCounts(tt.ID)
	if tt.CountsVisitors() {
		ownVisitors -= held
	}
	av.visitors += ownVisitors

	granted := clamp(alloc.Requested, conn.Origin(), tt, av)
	alloc.Granted = granted
	alloc.Cart, err = conn.mutate(eventID, func(c *model.Cart) error {
		items := withoutTicket(c.Items, tt.ID)
		for i := 0; i < granted; i++ {
			items = append(items, e.ticketItem(tt))
		}
		c.Items = items
		return nil
	})
	if err != nil {
		return Allocation{}, nil, err
	}

	if alloc.Partial() {
		e.log.Debug("ticket request clamped",
			zap.String("event_id", eventID),
			zap.String("ticket_type_id", tt.ID),
			zap.Int("requested", alloc.Requested),
			zap.Int("granted", granted))
	}
	return alloc, ticketNotices(eventID, tt, av, granted), nil
}

// AddOrReleaseSeat toggles a seat in the connection's cart.  A seat
// that is sold, reserved or held by another connection is rejected
// with a *model.Rejection.
func (e *Engine) AddOrReleaseSeat(ctx context.Context, connID, seatID string) (model.Cart, error) {
	conn, eventID, err := e.joined(connID)
	if err != nil {
		return model.Cart{}, err
	}

	cart, state, err := e.toggleSeatLocked(ctx, conn, eventID, seatID)
	if err != nil {
		return model.Cart{}, err
	}
	e.broadcast(ctx, eventID, []notice{{broadcast.TopicSeat, broadcast.SeatUpdate{SeatID: seatID, State: state}}})
	return cart, nil
}

// toggleSeatLocked adds or releases the seat under the seat lock and
// returns the seat state to announce.
func (e *Engine) toggleSeatLocked(ctx context.Context, conn *Connection, eventID, seatID string) (model.Cart, string, error) {
	unlock := e.locks.Lock(seatKey(eventID, seatID))
	defer unlock()

	seat, err := e.inv.Seat(ctx, eventID, seatID)
	if errors.Is(err, model.ErrSeatNotFound) {
		return model.Cart{}, "", &model.Rejection{SeatID: seatID, State: model.RejectNotFound}
	}
	if err != nil {
		return model.Cart{}, "", fmt.Errorf("load seat: %w", err)
	}
	switch seat.State() {
	case model.SeatSold:
		return model.Cart{}, "", &model.Rejection{SeatID: seatID, State: model.RejectSold}
	case model.SeatReserved:
		return model.Cart{}, "", &model.Rejection{SeatID: seatID, State: model.RejectReserved}
	}

	if conn.holdsSeat(seatID) {
		cart, err := conn.mutate(eventID, func(c *model.Cart) error {
			c.Items = withoutSeat(c.Items, seatID)
			return nil
		})
		return cart, model.SeatFree, err
	}

	if holder, ok := HolderOf(e.reg, eventID, seatID, conn.ID); ok {
		e.log.Debug("seat blocked",
			zap.String("event_id", eventID),
			zap.String("seat_id", seatID),
			zap.String("holder", holder))
		return model.Cart{}, "", &model.Rejection{SeatID: seatID, State: model.RejectBlocked}
	}

	cart, err := conn.mutate(eventID, func(c *model.Cart) error {
		c.Items = append(c.Items, e.seatItem(seat))
		return nil
	})
	return cart, model.SeatBlocked, err
}

// RemoveItem drops a single line item from the cart.
func (e *Engine) RemoveItem(ctx context.Context, connID, itemID string) (model.Cart, error) {
	conn, eventID, err := e.joined(connID)
	if err != nil {
		return model.Cart{}, err
	}
	it, ok := conn.item(itemID)
	if !ok {
		return model.Cart{}, ErrItemNotFound
	}

	key := seatKey(eventID, it.RefID)
	if it.Type == model.ItemTicket {
		key = ticketKey(eventID, it.Kind, it.RefID)
	}
	unlock := e.locks.Lock(key)
	cart, err := conn.mutate(eventID, func(c *model.Cart) error {
		out := make([]model.LineItem, 0, len(c.Items))
		for _, li := range c.Items {
			if li.ID != itemID {
				out = append(out, li)
			}
		}
		if len(out) == len(c.Items) {
			return ErrItemNotFound
		}
		c.Items = out
		return nil
	})
	unlock()
	if err != nil {
		return model.Cart{}, err
	}
	e.announceReleased(ctx, eventID, []model.LineItem{it})
	return cart, nil
}

// Empty releases every item of the cart.
func (e *Engine) Empty(ctx context.Context, connID string) (model.Cart, error) {
	conn, eventID, err := e.joined(connID)
	if err != nil {
		return model.Cart{}, err
	}
	released := conn.drain()
	e.announceReleased(ctx, eventID, released)
	return conn.Snapshot(), nil
}

// SetDiscount sets the per-unit discount of a line item.  Only internal
// connections may grant discounts; the discount is capped at the
// regular gross price.
func (e *Engine) SetDiscount(connID, itemID string, discount float64) (model.Cart, error) {
	if discount < 0 {
		return model.Cart{}, ErrInvalidDiscount
	}
	conn, eventID, err := e.joined(connID)
	if err != nil {
		return model.Cart{}, err
	}
	if conn.Origin() != model.OriginInternal {
		return model.Cart{}, ErrForbidden
	}
	return conn.mutate(eventID, func(c *model.Cart) error {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items[i].Discount = min(discount, c.Items[i].GrossRegular)
				return nil
			}
		}
		return ErrItemNotFound
	})
}

// SetUser sets the user an internal connection acts for.
func (e *Engine) SetUser(connID, userID string) (model.Cart, error) {
	conn, ok := e.reg.Get(connID)
	if !ok {
		return model.Cart{}, ErrConnectionNotFound
	}
	if conn.Origin() != model.OriginInternal {
		return model.Cart{}, ErrForbidden
	}
	return conn.setUser(userID), nil
}

// Disconnect removes the connection and releases everything it held.
// It must be called when a client goes away, otherwise its holds are
// never freed.
func (e *Engine) Disconnect(ctx context.Context, connID string) error {
	conn, ok := e.reg.Remove(connID)
	if !ok {
		return ErrConnectionNotFound
	}
	eventID := conn.EventID()
	released := conn.drain()
	if eventID != "" {
		e.announceReleased(ctx, eventID, released)
	}
	e.log.Debug("connection closed",
		zap.String("conn_id", connID),
		zap.Int("released", len(released)))
	return nil
}

// availability counts the committed state of the event and what the
// connections other than excluding hold.  An empty excluding counts
// every connection.
type availability struct {
	sold        int // committed units of the ticket type
	held        int // units of the ticket type held in other carts
	visitors    int // committed and held visitor-counted units
	maxVisitors int
}

func (a availability) remainingContingent(tt model.TicketType) int {
	return max(0, tt.Contingent-a.sold-a.held)
}

func (a availability) remainingVisitors() int {
	return max(0, a.maxVisitors-a.visitors)
}

func (e *Engine) availability(ctx context.Context, eventID, excluding string, tt model.TicketType) (availability, error) {
	ev, err := e.inv.Event(ctx, eventID)
	if err != nil {
		return availability{}, fmt.Errorf("load event: %w", err)
	}
	sold, err := e.inv.CommittedSoldCount(ctx, tt.ID)
	if err != nil {
		return availability{}, fmt.Errorf("count sold tickets: %w", err)
	}
	visitors, err := e.inv.CommittedVisitorCount(ctx, eventID)
	if err != nil {
		return availability{}, fmt.Errorf("count visitors: %w", err)
	}
	av := availability{sold: sold, visitors: visitors, maxVisitors: ev.MaximumVisitors}
	for _, c := range e.reg.Others(eventID, excluding) {
		held, v := c.heldCounts(tt.ID)
		av.held += held
		av.visitors += v
	}
	return av, nil
}

// clamp applies the online maximum (external connections only), then
// the remaining contingent, then the remaining visitor capacity.
func clamp(amount int, origin model.Origin, tt model.TicketType, av availability) int {
	if origin == model.OriginExternal && amount > tt.OnlineMax {
		amount = tt.OnlineMax
	}
	if left := tt.Contingent - av.sold - av.held; amount > left {
		amount = left
	}
	if tt.CountsVisitors() {
		if left := av.maxVisitors - av.visitors; amount > left {
			amount = left
		}
	}
	return max(0, amount)
}

func (e *Engine) ticketItem(tt model.TicketType) model.LineItem {
	return model.LineItem{
		ID:           e.newID(),
		Type:         model.ItemTicket,
		RefID:        tt.ID,
		Kind:         tt.Kind,
		Name:         tt.Name,
		Text:         tt.Label,
		ScanType:     tt.ScanType,
		State:        model.ItemStateHeld,
		SortOrder:    tt.SortOrder,
		GrossRegular: tt.GrossPrice,
		TaxPercent:   tt.TaxPercent,
	}
}

func (e *Engine) seatItem(s model.Seat) model.LineItem {
	return model.LineItem{
		ID:           e.newID(),
		Type:         model.ItemSeat,
		RefID:        s.ID,
		Kind:         model.KindSeat,
		Name:         s.Name,
		Text:         s.DisplayText(),
		ScanType:     "single",
		State:        model.ItemStateHeld,
		GrossRegular: s.GrossPrice,
		TaxPercent:   s.TaxPercent,
	}
}

func withoutTicket(items []model.LineItem, ticketTypeID string) []model.LineItem {
	out := make([]model.LineItem, 0, len(items))
	for _, it := range items {
		if it.Type == model.ItemTicket && it.RefID == ticketTypeID {
			continue
		}
		out = append(out, it)
	}
	return out
}

func withoutSeat(items []model.LineItem, seatID string) []model.LineItem {
	out := make([]model.LineItem, 0, len(items))
	for _, it := range items {
		if it.Type == model.ItemSeat && it.RefID == seatID {
			continue
		}
		out = append(out, it)
	}
	return out
}

// notice is a broadcast prepared while a lock is held and sent after
// it is released.
type notice struct {
	topic   string
	payload any
}

// ticketNotices announces the contingent and visitor capacity left once
// the requester holds granted units.  av excludes the requester's units
// of the ticket type.
func ticketNotices(eventID string, tt model.TicketType, av availability, granted int) []notice {
	av.held += granted
	if tt.CountsVisitors() {
		av.visitors += granted
	}
	return []notice{
		{broadcast.TopicTicket, broadcast.TicketUpdate{
			TicketTypeID:        tt.ID,
			TicketKind:          tt.Kind,
			RemainingContingent: av.remainingContingent(tt),
		}},
		{broadcast.TopicEvent, broadcast.EventUpdate{
			EventID:                  eventID,
			RemainingVisitorCapacity: av.remainingVisitors(),
		}},
	}
}

// announceReleased republishes availability for released items.  Errors
// are logged; the release itself has already happened.
func (e *Engine) announceReleased(ctx context.Context, eventID string, items []model.LineItem) {
	seen := make(map[string]bool)
	for _, it := range items {
		if it.Type == model.ItemSeat {
			e.broadcast(ctx, eventID, []notice{{broadcast.TopicSeat, broadcast.SeatUpdate{SeatID: it.RefID, State: model.SeatFree}}})
			continue
		}
		if seen[it.RefID] {
			continue
		}
		seen[it.RefID] = true

		tt, err := e.inv.TicketType(ctx, eventID, it.RefID)
		if err != nil {
			e.log.Warn("announce release", zap.String("ticket_type_id", it.RefID), zap.Error(err))
			continue
		}
		av, err := e.availability(ctx, eventID, "", tt)
		if err != nil {
			e.log.Warn("announce release", zap.String("ticket_type_id", it.RefID), zap.Error(err))
			continue
		}
		e.broadcast(ctx, eventID, ticketNotices(eventID, tt, av, 0))
	}
}

// broadcast is fire-and-forget.  Callers must not hold a resource lock.
// Each publish outlives a cancelled request context but is bounded by
// the publish timeout.
func (e *Engine) broadcast(ctx context.Context, eventID string, notices []notice) {
	ctx = context.WithoutCancel(ctx)
	for _, n := range notices {
		pctx, cancel := context.WithTimeout(ctx, e.publishTimeout)
		err := e.notifier.Publish(pctx, eventID, n.topic, n.payload)
		cancel()
		if err != nil {
			e.log.Warn("broadcast failed",
				zap.String("event_id", eventID),
				zap.String("topic", n.topic),
				zap.Error(err))
		}
	}
}
