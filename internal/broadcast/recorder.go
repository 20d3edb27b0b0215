package broadcast

import (
	"context"
	"sync"
)

// Nop discards every message.  It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }

// Recorder keeps published messages in memory.  Tests use it to assert
// on broadcasts; Err, when set, is returned by Publish instead.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	Err  error
}

func (r *Recorder) Publish(_ context.Context, eventID, topic string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	m, err := NewMessage(eventID, topic, payload)
	if err != nil {
		return err
	}
	r.msgs = append(r.msgs, m)
	return nil
}

// Messages returns a copy of everything published so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// ByTopic returns the messages published under topic in order.
func (r *Recorder) ByTopic(topic string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Reset forgets all recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}
