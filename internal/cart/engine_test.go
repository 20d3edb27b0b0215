package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/broadcast"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/testutil"
)

type fixture struct {
	inv    *testutil.Inventory
	store  *Store
	rec    *broadcast.Recorder
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	inv := testutil.NewInventory()
	inv.AddEvent(model.Event{ID: "E1", Name: "Concert", MaximumVisitors: 100})
	inv.AddEvent(model.Event{ID: "E2", Name: "Matinee", MaximumVisitors: 100})
	inv.AddTicketType(model.TicketType{
		ID: "T1", EventID: "E1", Kind: model.KindTicket, Contingent: 10, OnlineMax: 4,
		GrossPrice: 20, TaxPercent: 10, Name: "standard", Label: "Standard", SortOrder: 1,
		ScanType: "single", Active: true,
	})
	inv.AddSeat(model.Seat{ID: "S1", EventID: "E1", RoomLabel: "Hall", Row: "A", Number: 1, GrossPrice: 35, TaxPercent: 7})

	store := NewStore()
	rec := &broadcast.Recorder{}
	return &fixture{
		inv:    inv,
		store:  store,
		rec:    rec,
		engine: NewEngine(inv, store, WithNotifier(rec)),
	}
}

// join opens a connection and binds it to eventID.
func (f *fixture) join(t *testing.T, origin model.Origin, eventID string) string {
	t.Helper()
	c := f.store.Open(origin, "")
	_, err := f.engine.Join(context.Background(), c.ID, eventID)
	require.NoError(t, err)
	return c.ID
}

func assertTotals(t *testing.T, c model.Cart) {
	t.Helper()
	var gross float64
	for _, it := range c.Items {
		gross += it.GrossPrice
	}
	assert.InDelta(t, gross, c.Gross, 0.01)
	assert.InDelta(t, c.Gross, c.Net+c.Tax, 0.01)
}

func heldOf(f *fixture, eventID, ticketTypeID string) int {
	n := 0
	for _, c := range f.store.Others(eventID, "") {
		held, _ := c.heldCounts(ticketTypeID)
		n += held
	}
	return n
}

func TestSetTicket_ClampsToOnlineMaxAndContingent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")
	b := f.join(t, model.OriginExternal, "E1")

	got, err := f.engine.SetTicket(ctx, a, "T1", 4)
	require.NoError(t, err)
	assert.Len(t, got.Cart.Items, 4)
	assert.False(t, got.Partial())
	assert.InDelta(t, 80.00, got.Cart.Gross, 0.001)
	// each line rounds to 18.18 net and 1.82 tax
	assert.InDelta(t, 7.28, got.Cart.Tax, 0.001)
	assert.InDelta(t, 72.72, got.Cart.Net, 0.001)
	assertTotals(t, got.Cart)

	got, err = f.engine.SetTicket(ctx, b, "T1", 10)
	require.NoError(t, err)
	assert.Len(t, got.Cart.Items, 4)
	assert.Equal(t, 10, got.Requested)
	assert.Equal(t, 4, got.Granted)
	assert.True(t, got.Partial())

	c := f.join(t, model.OriginExternal, "E1")
	got, err = f.engine.SetTicket(ctx, c, "T1", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Granted)
	assert.Equal(t, 10, heldOf(f, "E1", "T1"))
}

func TestSetTicket_InternalIgnoresOnlineMax(t *testing.T) {
	f := newFixture(t)
	a := f.join(t, model.OriginInternal, "E1")

	got, err := f.engine.SetTicket(context.Background(), a, "T1", 9)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Granted)
	assert.Equal(t, model.OriginInternal, got.Cart.Origin)
}

func TestSetTicket_CommittedSoldCounts(t *testing.T) {
	f := newFixture(t)
	f.inv.SetSold("T1", 8)
	a := f.join(t, model.OriginExternal, "E1")

	got, err := f.engine.SetTicket(context.Background(), a, "T1", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Granted)

	f.inv.SetSold("T1", 12)
	got, err = f.engine.SetTicket(context.Background(), a, "T1", 4)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Granted)
	assert.Empty(t, got.Cart.Items)
}

func TestSetTicket_AbsoluteTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")

	_, err := f.engine.SetTicket(ctx, a, "T1", 3)
	require.NoError(t, err)
	got, err := f.engine.SetTicket(ctx, a, "T1", 2)
	require.NoError(t, err)
	assert.Len(t, got.Cart.Items, 2)
	assertTotals(t, got.Cart)
}

func TestSetTicket_ZeroIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")
	_, err := f.engine.SetTicket(ctx, a, "T1", 3)
	require.NoError(t, err)
	f.rec.Reset()

	first, err := f.engine.SetTicket(ctx, a, "T1", 0)
	require.NoError(t, err)
	second, err := f.engine.SetTicket(ctx, a, "T1", 0)
	require.NoError(t, err)

	assert.Equal(t, first.Cart, second.Cart)
	assert.Empty(t, second.Cart.Items)
	assert.Zero(t, second.Cart.Gross)
	assert.Empty(t, f.rec.Messages())
}

func TestSetTicket_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.inv.AddTicketType(model.TicketType{ID: "OFF", EventID: "E1", Kind: model.KindTicket, Contingent: 5, OnlineMax: 5})
	f.inv.AddTicketType(model.TicketType{ID: "OTHER", EventID: "E2", Kind: model.KindTicket, Contingent: 5, OnlineMax: 5, Active: true})
	a := f.join(t, model.OriginExternal, "E1")

	for _, id := range []string{"missing", "OFF", "OTHER"} {
		_, err := f.engine.SetTicket(ctx, a, id, 1)
		var rej *model.Rejection
		require.ErrorAs(t, err, &rej, id)
		assert.Equal(t, id, rej.TicketTypeID)
		assert.Equal(t, model.RejectNotFound, rej.State)
	}

	_, err := f.engine.SetTicket(ctx, a, "T1", -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.engine.SetTicket(ctx, "nobody", "T1", 1)
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	idle := f.store.Open(model.OriginExternal, "")
	_, err = f.engine.SetTicket(ctx, idle.ID, "T1", 1)
	assert.ErrorIs(t, err, ErrNoEvent)
}

func TestSetTicket_InventoryFailureLeavesCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")
	before, err := f.engine.SetTicket(ctx, a, "T1", 2)
	require.NoError(t, err)

	boom := errors.New("connection refused")
	f.inv.SetErr(boom)
	_, err = f.engine.SetTicket(ctx, a, "T1", 4)
	assert.ErrorIs(t, err, boom)

	f.inv.SetErr(nil)
	after, err := f.engine.GetCart(a)
	require.NoError(t, err)
	assert.Equal(t, before.Cart, after)
}

func TestSetTicket_Broadcasts(t *testing.T) {
	f := newFixture(t)
	a := f.join(t, model.OriginExternal, "E1")
	f.inv.SetSold("T1", 1)

	_, err := f.engine.SetTicket(context.Background(), a, "T1", 3)
	require.NoError(t, err)

	tickets := f.rec.ByTopic(broadcast.TopicTicket)
	require.Len(t, tickets, 1)
	var tu broadcast.TicketUpdate
	require.NoError(t, json.Unmarshal(tickets[0].Payload, &tu))
	assert.Equal(t, broadcast.TicketUpdate{TicketTypeID: "T1", TicketKind: model.KindTicket, RemainingContingent: 6}, tu)
	assert.Equal(t, "E1", tickets[0].EventID)

	events := f.rec.ByTopic(broadcast.TopicEvent)
	require.Len(t, events, 1)
	var eu broadcast.EventUpdate
	require.NoError(t, json.Unmarshal(events[0].Payload, &eu))
	assert.Equal(t, broadcast.EventUpdate{EventID: "E1", RemainingVisitorCapacity: 96}, eu)
}

func TestSetTicket_BroadcastFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.rec.Err = errors.New("broker down")
	a := f.join(t, model.OriginExternal, "E1")

	got, err := f.engine.SetTicket(context.Background(), a, "T1", 2)
	require.NoError(t, err)
	assert.Len(t, got.Cart.Items, 2)
}

func TestSetTicket_NoOversellUnderContention(t *testing.T) {
	f := newFixture(t)
	f.inv.AddTicketType(model.TicketType{ID: "VIP", EventID: "E1", Kind: "vip", Contingent: 10, OnlineMax: 3, GrossPrice: 99, Active: true})
	f.inv.Delay = time.Millisecond

	conns := make([]string, 12)
	for i := range conns {
		conns[i] = f.join(t, model.OriginExternal, "E1")
	}

	var wg sync.WaitGroup
	for _, id := range conns {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, n := range []int{3, 1, 3} {
				_, err := f.engine.SetTicket(context.Background(), id, "VIP", n)
				assert.NoError(t, err)
				assert.LessOrEqual(t, heldOf(f, "E1", "VIP"), 10)
			}
		}(id)
	}
	wg.Wait()

	assert.LessOrEqual(t, heldOf(f, "E1", "VIP"), 10)
}

func TestSetTicket_VisitorCapUnderContention(t *testing.T) {
	f := newFixture(t)
	f.inv.AddEvent(model.Event{ID: "E3", MaximumVisitors: 5})
	f.inv.AddTicketType(model.TicketType{ID: "ADULT", EventID: "E3", Kind: model.KindTicket, Contingent: 10, OnlineMax: 10, Active: true})
	f.inv.AddTicketType(model.TicketType{ID: "CHILD", EventID: "E3", Kind: model.KindTicket, Contingent: 10, OnlineMax: 10, Active: true})
	f.inv.Delay = 2 * time.Millisecond
	a := f.join(t, model.OriginExternal, "E3")
	b := f.join(t, model.OriginExternal, "E3")

	var wg sync.WaitGroup
	granted := make([]int, 2)
	for i, req := range []struct{ conn, tt string }{{a, "ADULT"}, {b, "CHILD"}} {
		wg.Add(1)
		go func(i int, conn, tt string) {
			defer wg.Done()
			got, err := f.engine.SetTicket(context.Background(), conn, tt, 3)
			assert.NoError(t, err)
			granted[i] = got.Granted
		}(i, req.conn, req.tt)
	}
	wg.Wait()

	assert.Equal(t, 5, granted[0]+granted[1])
	assert.ElementsMatch(t, []int{3, 2}, granted)
}

func TestSetTicket_VisitorCapCountsOwnOtherTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.inv.AddEvent(model.Event{ID: "E3", MaximumVisitors: 5})
	f.inv.AddTicketType(model.TicketType{ID: "ADULT", EventID: "E3", Kind: model.KindTicket, Contingent: 10, OnlineMax: 10, Active: true})
	f.inv.AddTicketType(model.TicketType{ID: "CHILD", EventID: "E3", Kind: model.KindTicket, Contingent: 10, OnlineMax: 10, Active: true})
	f.inv.AddTicketType(model.TicketType{ID: "PARKING", EventID: "E3", Kind: "parking", Contingent: 10, OnlineMax: 10, Active: true})
	f.inv.SetSold("ADULT", 1)
	a := f.join(t, model.OriginExternal, "E3")

	got, err := f.engine.SetTicket(ctx, a, "ADULT", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Granted)

	got, err = f.engine.SetTicket(ctx, a, "CHILD", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Granted)

	// resetting a type frees its own share of the cap
	got, err = f.engine.SetTicket(ctx, a, "ADULT", 4)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Granted)

	got, err = f.engine.SetTicket(ctx, a, "PARKING", 6)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Granted)
	assert.Len(t, got.Cart.Items, 10)
}

func TestSetTicket_ZeroMaximumVisitorsBlocksVisitorTickets(t *testing.T) {
	f := newFixture(t)
	f.inv.AddEvent(model.Event{ID: "E4"})
	f.inv.AddTicketType(model.TicketType{ID: "GA", EventID: "E4", Kind: model.KindTicket, Contingent: 10, OnlineMax: 10, Active: true})
	a := f.join(t, model.OriginInternal, "E4")

	got, err := f.engine.SetTicket(context.Background(), a, "GA", 2)
	require.NoError(t, err)
	assert.Zero(t, got.Granted)
}

func TestAddOrReleaseSeat_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")
	b := f.join(t, model.OriginExternal, "E1")

	cart, err := f.engine.AddOrReleaseSeat(ctx, a, "S1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	it := cart.Items[0]
	assert.Equal(t, model.ItemSeat, it.Type)
	assert.Equal(t, "S1", it.RefID)
	assert.Equal(t, "Hall A/1", it.Text)
	assert.Equal(t, "single", it.ScanType)
	assert.InDelta(t, 35.0, cart.Gross, 0.001)
	assertTotals(t, cart)

	_, err = f.engine.AddOrReleaseSeat(ctx, b, "S1")
	var rej *model.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, model.Rejection{SeatID: "S1", State: model.RejectBlocked}, *rej)

	cart, err = f.engine.AddOrReleaseSeat(ctx, a, "S1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	cart, err = f.engine.AddOrReleaseSeat(ctx, b, "S1")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	seats := f.rec.ByTopic(broadcast.TopicSeat)
	require.Len(t, seats, 3)
	want := []string{model.SeatBlocked, model.SeatFree, model.SeatBlocked}
	for i, m := range seats {
		var su broadcast.SeatUpdate
		require.NoError(t, json.Unmarshal(m.Payload, &su))
		assert.Equal(t, broadcast.SeatUpdate{SeatID: "S1", State: want[i]}, su)
	}
}

func TestAddOrReleaseSeat_ToggleRestoresCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")
	start, err := f.engine.SetTicket(ctx, a, "T1", 2)
	require.NoError(t, err)

	_, err = f.engine.AddOrReleaseSeat(ctx, a, "S1")
	require.NoError(t, err)
	end, err := f.engine.AddOrReleaseSeat(ctx, a, "S1")
	require.NoError(t, err)

	assert.Equal(t, start.Cart, end)
}

func TestAddOrReleaseSeat_CommittedStates(t *testing.T) {
	f := newFixture(t)
	order, res := "O1", "R1"
	f.inv.AddSeat(model.Seat{ID: "SOLD", EventID: "E1", OrderID: &order})
	f.inv.AddSeat(model.Seat{ID: "HELD", EventID: "E1", ReservationID: &res})
	f.inv.AddSeat(model.Seat{ID: "ELSEWHERE", EventID: "E2"})
	a := f.join(t, model.OriginInternal, "E1")

	tests := []struct {
		seat  string
		state string
	}{
		{"SOLD", model.RejectSold},
		{"HELD", model.RejectReserved},
		{"ELSEWHERE", model.RejectNotFound},
		{"missing", model.RejectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.seat, func(t *testing.T) {
			_, err := f.engine.AddOrReleaseSeat(context.Background(), a, tt.seat)
			var rej *model.Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.state, rej.State)
			assert.Equal(t, tt.seat, rej.SeatID)
		})
	}
	cart, err := f.engine.GetCart(a)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestAddOrReleaseSeat_NoDoubleHoldUnderContention(t *testing.T) {
	f := newFixture(t)
	f.inv.Delay = time.Millisecond

	conns := make([]string, 10)
	for i := range conns {
		conns[i] = f.join(t, model.OriginExternal, "E1")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		added   int
		blocked int
	)
	for _, id := range conns {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.engine.AddOrReleaseSeat(context.Background(), id, "S1")
			mu.Lock()
			defer mu.Unlock()
			var rej *model.Rejection
			switch {
			case err == nil:
				added++
			case errors.As(err, &rej) && rej.State == model.RejectBlocked:
				blocked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, added)
	assert.Equal(t, 9, blocked)

	holders := 0
	for _, c := range f.store.Others("E1", "") {
		if c.holdsSeat("S1") {
			holders++
		}
	}
	assert.Equal(t, 1, holders)
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")
	got, err := f.engine.SetTicket(ctx, a, "T1", 3)
	require.NoError(t, err)
	f.rec.Reset()

	cart, err := f.engine.RemoveItem(ctx, a, got.Cart.Items[0].ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.InDelta(t, 40.0, cart.Gross, 0.001)

	tickets := f.rec.ByTopic(broadcast.TopicTicket)
	require.Len(t, tickets, 1)
	var tu broadcast.TicketUpdate
	require.NoError(t, json.Unmarshal(tickets[0].Payload, &tu))
	assert.Equal(t, 8, tu.RemainingContingent)

	_, err = f.engine.RemoveItem(ctx, a, got.Cart.Items[0].ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")
	_, err := f.engine.SetTicket(ctx, a, "T1", 2)
	require.NoError(t, err)
	_, err = f.engine.AddOrReleaseSeat(ctx, a, "S1")
	require.NoError(t, err)
	f.rec.Reset()

	cart, err := f.engine.Empty(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.Gross)
	assert.Len(t, f.rec.ByTopic(broadcast.TopicSeat), 1)
	assert.Len(t, f.rec.ByTopic(broadcast.TopicTicket), 1)
}

func TestSetDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	internal := f.join(t, model.OriginInternal, "E1")
	external := f.join(t, model.OriginExternal, "E1")

	got, err := f.engine.SetTicket(ctx, internal, "T1", 1)
	require.NoError(t, err)
	id := got.Cart.Items[0].ID

	cart, err := f.engine.SetDiscount(internal, id, 5)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, cart.Gross, 0.001)
	assert.InDelta(t, 5.0, cart.Items[0].Discount, 0.001)
	assertTotals(t, cart)

	cart, err = f.engine.SetDiscount(internal, id, 50)
	require.NoError(t, err)
	assert.Zero(t, cart.Gross)

	_, err = f.engine.SetDiscount(internal, id, -1)
	assert.ErrorIs(t, err, ErrInvalidDiscount)
	_, err = f.engine.SetDiscount(internal, "missing", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
	_, err = f.engine.SetDiscount(external, id, 1)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSetUser(t *testing.T) {
	f := newFixture(t)
	internal := f.join(t, model.OriginInternal, "E1")
	external := f.join(t, model.OriginExternal, "E1")

	cart, err := f.engine.SetUser(internal, "u-42")
	require.NoError(t, err)
	assert.Equal(t, "u-42", cart.UserID)

	_, err = f.engine.SetUser(external, "u-42")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDisconnect_ReleasesHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")
	b := f.join(t, model.OriginExternal, "E1")
	_, err := f.engine.SetTicket(ctx, a, "T1", 4)
	require.NoError(t, err)
	_, err = f.engine.AddOrReleaseSeat(ctx, a, "S1")
	require.NoError(t, err)
	f.rec.Reset()

	require.NoError(t, f.engine.Disconnect(ctx, a))
	assert.ErrorIs(t, f.engine.Disconnect(ctx, a), ErrConnectionNotFound)

	_, err = f.engine.GetCart(a)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
	assert.Len(t, f.rec.ByTopic(broadcast.TopicSeat), 1)

	tickets := f.rec.ByTopic(broadcast.TopicTicket)
	require.Len(t, tickets, 1)
	var tu broadcast.TicketUpdate
	require.NoError(t, json.Unmarshal(tickets[0].Payload, &tu))
	assert.Equal(t, 10, tu.RemainingContingent)

	cart, err := f.engine.AddOrReleaseSeat(ctx, b, "S1")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestJoin_SwitchingEventsReleasesCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")
	_, err := f.engine.AddOrReleaseSeat(ctx, a, "S1")
	require.NoError(t, err)
	f.rec.Reset()

	cart, err := f.engine.Join(ctx, a, "E2")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	seats := f.rec.ByTopic(broadcast.TopicSeat)
	require.Len(t, seats, 1)
	assert.Equal(t, "E1", seats[0].EventID)

	_, err = f.engine.Join(ctx, a, "nope")
	assert.ErrorIs(t, err, model.ErrEventNotFound)
}

func TestAddOrReleaseSeat_InventoryFailureLeavesCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.join(t, model.OriginExternal, "E1")
	before, err := f.engine.AddOrReleaseSeat(ctx, a, "S1")
	require.NoError(t, err)
	f.rec.Reset()

	boom := errors.New("connection refused")
	f.inv.SetErr(boom)
	_, err = f.engine.AddOrReleaseSeat(ctx, a, "S1")
	require.ErrorIs(t, err, boom)
	var rej *model.Rejection
	assert.False(t, errors.As(err, &rej))

	f.inv.SetErr(nil)
	after, err := f.engine.GetCart(a)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.rec.Messages())
}

// stallingNotifier blocks its first publish until release is closed and
// ignores the context while doing so, like a dial to an unreachable
// broker.
type stallingNotifier struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newStallingNotifier() *stallingNotifier {
	return &stallingNotifier{entered: make(chan struct{}), release: make(chan struct{})}
}

func (n *stallingNotifier) Publish(context.Context, string, string, any) error {
	first := false
	n.once.Do(func() { first = true })
	if first {
		close(n.entered)
		<-n.release
	}
	return nil
}

func TestBroadcastDoesNotHoldResourceLocks(t *testing.T) {
	tests := []struct {
		name   string
		first  func(e *Engine, conn string) error
		second func(e *Engine, conn string) error
	}{
		{
			name: "visitor tickets of another type",
			first: func(e *Engine, conn string) error {
				_, err := e.SetTicket(context.Background(), conn, "T1", 1)
				return err
			},
			second: func(e *Engine, conn string) error {
				_, err := e.SetTicket(context.Background(), conn, "T2", 1)
				return err
			},
		},
		{
			name: "same seat",
			first: func(e *Engine, conn string) error {
				_, err := e.AddOrReleaseSeat(context.Background(), conn, "S1")
				return err
			},
			second: func(e *Engine, conn string) error {
				_, err := e.AddOrReleaseSeat(context.Background(), conn, "S1")
				var rej *model.Rejection
				if errors.As(err, &rej) && rej.State == model.RejectBlocked {
					return nil
				}
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.inv.AddTicketType(model.TicketType{
				ID: "T2", EventID: "E1", Kind: model.KindTicket, Contingent: 10, OnlineMax: 4,
				GrossPrice: 10, Active: true,
			})
			stall := newStallingNotifier()
			f.engine = NewEngine(f.inv, f.store, WithNotifier(stall), WithPublishTimeout(10*time.Millisecond))
			a := f.join(t, model.OriginExternal, "E1")
			b := f.join(t, model.OriginExternal, "E1")

			firstDone := make(chan error, 1)
			go func() { firstDone <- tt.first(f.engine, a) }()
			select {
			case <-stall.entered:
			case <-time.After(2 * time.Second):
				t.Fatal("first request never published")
			}

			secondDone := make(chan error, 1)
			go func() { secondDone <- tt.second(f.engine, b) }()
			select {
			case err := <-secondDone:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("second request waited for the first request's broadcast")
			}

			close(stall.release)
			assert.NoError(t, <-firstDone)
		})
	}
}
