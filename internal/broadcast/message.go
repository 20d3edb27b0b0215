// Package broadcast publishes availability changes of an event to every
// client watching it.  Delivery is at-most-once: a lost message leaves a
// stale display on a client, never an inconsistent cart, because each
// reservation re-derives availability from the live carts.
package broadcast

import (
	"encoding/json"
	"time"
)

// Topics mirror the event names clients listen for.
const (
	TopicTicket = "update-ticket"
	TopicEvent  = "update-event"
	TopicSeat   = "update-seat"
)

// TicketUpdate announces the remaining contingent of a ticket type.
type TicketUpdate struct {
	TicketTypeID        string `json:"ticket_type_id"`
	TicketKind          string `json:"ticket_kind"`
	RemainingContingent int    `json:"remaining_contingent"`
}

// EventUpdate announces the remaining visitor capacity of an event.
type EventUpdate struct {
	EventID                  string `json:"event_id"`
	RemainingVisitorCapacity int    `json:"remaining_visitor_capacity"`
}

// SeatUpdate announces that a seat became blocked by a cart or free again.
type SeatUpdate struct {
	SeatID string `json:"seat_id"`
	State  string `json:"state"`
}

// Message is the envelope put on the wire.
type Message struct {
	EventID string          `json:"event_id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewMessage encodes payload into an envelope stamped with the current
// UTC time.
func NewMessage(eventID, topic string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		EventID: eventID,
		Topic:   topic,
		Payload: raw,
		SentAt:  time.Now().UTC(),
	}, nil
}

// RoutingKey is the topic-exchange key a message of an event is
// published under, e.g. "event.42.update-seat".
func RoutingKey(eventID, topic string) string {
	return "event." + eventID + "." + topic
}

// BindingKey matches every topic of one event.
func BindingKey(eventID string) string {
	return "event." + eventID + ".*"
}
