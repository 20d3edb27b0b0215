package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultExchange is the topic exchange all event broadcasts go through.
const DefaultExchange = "ticketing.broadcast"

// DefaultDialTimeout bounds connecting to the broker.  amqp.Dial does
// not take a context, so this is the only limit on a blackholed broker.
const DefaultDialTimeout = 5 * time.Second

func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// Publisher sends broadcasts to a RabbitMQ topic exchange.  One
// connection and channel are kept open and re-dialed lazily after the
// broker drops them, so a broker outage only costs the messages sent
// while it is down.
type Publisher struct {
	url      string
	exchange string
	log      *zap.Logger

	// DialTimeout bounds each (re)connect; DefaultDialTimeout when zero.
	DialTimeout time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the broker at url.  No connection
// is made until the first Publish.
func NewPublisher(url, exchange string, log *zap.Logger) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, exchange: exchange, log: log, DialTimeout: DefaultDialTimeout}
}

// Publish encodes payload and publishes it under the event's routing
// key.  Messages are transient; nobody waits for a confirm.
func (p *Publisher) Publish(ctx context.Context, eventID, topic string, payload any) error {
	msg, err := NewMessage(eventID, topic, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		p.exchange,                 // exchange
		RoutingKey(eventID, topic), // routing key
		false,                      // mandatory
		false,                      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Timestamp:    msg.SentAt,
			Type:         topic,
			Body:         body,
		},
	)
	if err != nil {
		// Drop the channel so the next publish re-dials.
		p.reset()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// channel returns an open channel, dialing the broker and declaring the
// exchange when needed.  Callers hold p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := dial(p.url, p.DialTimeout)
	if err != nil {
		p.log.Warn("broadcast: dial failed", zap.Error(err))
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	p.log.Info("broadcast: connected", zap.String("exchange", p.exchange))
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(
		name,    // name
		"topic", // kind
		true,    // durable
		false,   // autoDelete
		false,   // internal
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	return nil
}

// Subscriber relays the broadcasts of one event to a Go channel.  Every
// subscription gets its own exclusive, auto-deleted queue so each
// watching client sees every message.
type Subscriber struct {
	url      string
	exchange string
	log      *zap.Logger

	// DialTimeout bounds connecting; DefaultDialTimeout when zero.
	DialTimeout time.Duration
}

// NewSubscriber returns a Subscriber for the broker at url.
func NewSubscriber(url, exchange string, log *zap.Logger) *Subscriber {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{url: url, exchange: exchange, log: log, DialTimeout: DefaultDialTimeout}
}

// Subscribe starts consuming the event's broadcasts.  The returned
// channel is closed when ctx is done or the broker connection is lost;
// the caller is expected to reconnect the client in that case.
func (s *Subscriber) Subscribe(ctx context.Context, eventID string) (<-chan Message, error) {
	conn, err := dial(s.url, s.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	deliveries, err := s.bind(ch, eventID)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		defer func() { _ = conn.Close() }()
		defer func() { _ = ch.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					s.log.Warn("broadcast: deliveries channel closed", zap.String("event_id", eventID))
					return
				}
				var m Message
				if err := json.Unmarshal(d.Body, &m); err != nil {
					s.log.Warn("broadcast: dropping malformed message", zap.Error(err))
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
					// Slow client; the next delta supersedes this one.
					s.log.Debug("broadcast: dropped message for slow subscriber", zap.String("event_id", eventID))
				}
			}
		}
	}()
	return out, nil
}

func (s *Subscriber) bind(ch *amqp.Channel, eventID string) (<-chan amqp.Delivery, error) {
	if err := declareExchange(ch, s.exchange); err != nil {
		return nil, err
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // autoDelete
		true,  // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, BindingKey(eventID), s.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("queue bind: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue consume: %w", err)
	}
	if deliveries == nil {
		return nil, errors.New("queue consume: no deliveries channel")
	}
	return deliveries, nil
}
