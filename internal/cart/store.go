package cart

import (
	"sync"

	"github.com/google/uuid"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/pricing"
)

// Connection is one logical client session.  Its cart is created on the
// first reservation action and dropped when the connection closes.
//
// Lock order: a store lock may be followed by a connection lock, never
// the other way round, and no goroutine holds two connection locks.
type Connection struct {
	ID string

	mu      sync.RWMutex
	origin  model.Origin
	userID  string
	eventID string
	cart    *model.Cart
	closed  bool
}

// EventID returns the event the connection currently browses.
func (c *Connection) EventID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eventID
}

// Origin returns whether the connection is internal or external.
func (c *Connection) Origin() model.Origin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.origin
}

// Snapshot returns a copy of the cart, empty when none exists yet.
func (c *Connection) Snapshot() model.Cart {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cart == nil {
		return c.emptyCart().Clone()
	}
	return c.cart.Clone()
}

func (c *Connection) emptyCart() *model.Cart {
	return &model.Cart{
		ConnectionID: c.ID,
		Origin:       c.origin,
		UserID:       c.userID,
		Items:        []model.LineItem{},
	}
}

// heldCounts returns how many items of ticketTypeID the cart holds and
// how many of its items count against the visitor cap.
func (c *Connection) heldCounts(ticketTypeID string) (held, visitors int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cart == nil {
		return 0, 0
	}
	for _, it := range c.cart.Items {
		if it.Type == model.ItemTicket && it.RefID == ticketTypeID {
			held++
		}
		if it.CountsVisitors() {
			visitors++
		}
	}
	return held, visitors
}

func (c *Connection) holdsSeat(seatID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cart != nil && c.cart.HoldsSeat(seatID)
}

// mutate applies fn to the cart of a connection still joined to eventID,
// creating the cart if needed, recomputes the totals and returns a copy.
// fn must not modify the cart when it returns an error.
func (c *Connection) mutate(eventID string, fn func(*model.Cart) error) (model.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return model.Cart{}, ErrConnectionNotFound
	}
	if c.eventID != eventID {
		return model.Cart{}, ErrEventChanged
	}
	if c.cart == nil {
		c.cart = c.emptyCart()
	}
	if err := fn(c.cart); err != nil {
		return model.Cart{}, err
	}
	pricing.Apply(c.cart)
	return c.cart.Clone(), nil
}

// item returns a copy of the line item with the given id.
func (c *Connection) item(itemID string) (model.LineItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cart == nil {
		return model.LineItem{}, false
	}
	for _, it := range c.cart.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return model.LineItem{}, false
}

// join binds the connection to eventID.  Switching to another event
// drops the cart; the items it held are returned with the previous
// event id so their availability can be announced again.
func (c *Connection) join(eventID string) (prev string, released []model.LineItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev = c.eventID
	if prev == eventID {
		return prev, nil
	}
	if c.cart != nil {
		released = c.cart.Items
		c.cart = nil
	}
	c.eventID = eventID
	return prev, released
}

// setUser changes the acting user of an internal connection.
func (c *Connection) setUser(userID string) model.Cart {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	if c.cart == nil {
		return c.emptyCart().Clone()
	}
	c.cart.UserID = userID
	return c.cart.Clone()
}

// drain empties the cart and returns the items it held.
func (c *Connection) drain() []model.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cart == nil {
		return nil
	}
	items := c.cart.Items
	c.cart.Items = []model.LineItem{}
	pricing.Apply(c.cart)
	return items
}

// Store is the registry of live connections.  It replaces the ad hoc
// state bag the socket layer would otherwise carry per client.
type Store struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	newID func() string
}

func NewStore() *Store {
	return &Store{
		conns: make(map[string]*Connection),
		newID: uuid.NewString,
	}
}

// Open registers a new connection.  userID is kept for internal
// connections only.
func (s *Store) Open(origin model.Origin, userID string) *Connection {
	if origin != model.OriginInternal {
		origin = model.OriginExternal
		userID = ""
	}
	c := &Connection{ID: s.newID(), origin: origin, userID: userID}
	s.mu.Lock()
	s.conns[c.ID] = c
	s.mu.Unlock()
	return c
}

// Get looks a connection up by id.
func (s *Store) Get(connID string) (*Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[connID]
	return c, ok
}

// Others returns the connections joined to eventID except excluding.
// An empty excluding returns every connection of the event.
func (s *Store) Others(eventID, excluding string) []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Connection, 0, len(s.conns))
	for id, c := range s.conns {
		if id == excluding {
			continue
		}
		if c.EventID() == eventID {
			out = append(out, c)
		}
	}
	return out
}

// Remove unregisters a connection and marks it closed so no in-flight
// request can add to its cart afterwards.
func (s *Store) Remove(connID string) (*Connection, bool) {
	s.mu.Lock()
	c, ok := s.conns[connID]
	delete(s.conns, connID)
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c, true
}

// Len returns the number of live connections.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
