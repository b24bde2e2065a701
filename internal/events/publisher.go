// Package events fans recorded clicks out to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"github.com/zhejian/glasslink/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	// DefaultQueue carries one JSON model.ClickEvent per message.
	DefaultQueue = "click.recorded"

	// DefaultBuffer is how many events may wait for the broker before new
	// ones are dropped.
	DefaultBuffer = 1024

	dialTimeout    = 5 * time.Second
	publishTimeout = 2 * time.Second
	drainTimeout   = 5 * time.Second

	// consecutive failures before the breaker opens
	tripAfter   = 5
	openTimeout = 30 * time.Second
)

var (
	// ErrBufferFull is returned when the broker is slower than incoming clicks.
	ErrBufferFull = errors.New("click event buffer full")
	// ErrClosed is returned by PublishClick after Close.
	ErrClosed = errors.New("click publisher closed")
)

var dropped = func() metric.Int64Counter {
	c, err := otel.Meter("github.com/zhejian/glasslink/internal/events").
		Int64Counter("glasslink.events.dropped", metric.WithDescription("Click events not delivered to the broker"))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return c
}()

type message struct {
	body []byte
	at   time.Time
}

// AMQPPublisher publishes click events to a durable queue on the default
// exchange. PublishClick only enqueues; one goroutine owns the connection,
// re-dials it lazily after a failure and stops dialing while the circuit
// breaker is open.
type AMQPPublisher struct {
	url     string
	queue   string
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker

	pending chan message
	done    chan struct{}
	started bool

	// closeMu orders PublishClick against Close so pending is never sent on
	// after it is closed.
	closeMu sync.RWMutex
	closed  bool

	// mu guards conn and ch. Only the drain goroutine and Close take it.
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher connects to url, declares queue and starts delivering.
// An empty queue uses DefaultQueue.
func NewAMQPPublisher(url, queue string, logger *slog.Logger) (*AMQPPublisher, error) {
	p := newAMQPPublisher(url, queue, DefaultBuffer, logger)

	p.mu.Lock()
	err := p.connect()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.started = true
	go p.run()
	return p, nil
}

func newAMQPPublisher(url, queue string, buffer int, logger *slog.Logger) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &AMQPPublisher{
		url:     url,
		queue:   queue,
		logger:  logger,
		pending: make(chan message, buffer),
		done:    make(chan struct{}),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "amqp:" + queue,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return p
}

// PublishClick queues ev for delivery as a persistent JSON message. It never
// waits on the broker: when the buffer is full the event is dropped and
// ErrBufferFull returned.
func (p *AMQPPublisher) PublishClick(ctx context.Context, ev model.ClickEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal click event: %w", err)
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.pending <- message{body: body, at: ev.OccurredAt}:
		return nil
	default:
		dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "buffer_full")))
		return ErrBufferFull
	}
}

func (p *AMQPPublisher) run() {
	defer close(p.done)
	for m := range p.pending {
		if err := p.deliver(m); err != nil {
			dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "broker")))
			if !errors.Is(err, gobreaker.ErrOpenState) {
				p.logger.Warn("click event not delivered",
					slog.String("queue", p.queue),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// deliver sends one message through the breaker.
func (p *AMQPPublisher) deliver(m message) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publish(m)
	})
	return err
}

func (p *AMQPPublisher) publish(m message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    m.at.UTC(),
		Type:         DefaultQueue,
		Body:         m.body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish click event: %w", err)
	}
	return nil
}

// connect must be called with mu held.
func (p *AMQPPublisher) connect() error {
	p.reset()

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}

	p.conn, p.ch = conn, ch
	return nil
}

// reset must be called with mu held.
func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close stops accepting events, waits up to drainTimeout for queued ones to
// be delivered and releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	close(p.pending)
	p.closeMu.Unlock()

	if p.started {
		select {
		case <-p.done:
		case <-time.After(drainTimeout):
			p.logger.Warn("click events still queued at shutdown", slog.Int("pending", len(p.pending)))
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
