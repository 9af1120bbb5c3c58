// Package queue carries booking confirmation notifications over AMQP so that
// email delivery can run in a separate worker process.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/services"
)

// publishAttempts covers one redial after a dropped connection
const publishAttempts = 2

// dialTimeout bounds the TCP connect and AMQP handshake
const dialTimeout = 5 * time.Second

var errPublisherClosed = errors.New("publisher closed")

// channel is the part of *amqp.Channel the publisher uses
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url, queue string) (channel, io.Closer, error)

// dialBroker connects with a bounded dial instead of amqp.Dial's 30s default
func dialBroker(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
}

// dialChannel opens a connection and channel and declares the durable queue
func dialChannel(url, queue string) (channel, io.Closer, error) {
	conn, err := dialBroker(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return ch, conn, nil
}

// Publisher implements services.Dispatcher on top of a durable AMQP queue.
// Enqueue only buffers; one goroutine started by Start owns the connection,
// opens it lazily and reopens it after a failed publish.
type Publisher struct {
	url     string
	queue   string
	dial    dialFunc
	timeout time.Duration
	metrics *services.Metrics
	logger  *logrus.Logger

	pending chan models.BookingNotification
	stop    context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool

	// owned by the run goroutine
	ch   channel
	conn io.Closer
}

// NewPublisher creates a publisher holding up to bufferSize notifications.
// No connection is made until Start and the first Enqueue.
func NewPublisher(cfg config.AMQPConfig, bufferSize int, metrics *services.Metrics, logger *logrus.Logger) *Publisher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	stop, cancel := context.WithCancel(context.Background())
	return &Publisher{
		url:     cfg.URL,
		queue:   cfg.Queue,
		dial:    dialChannel,
		timeout: 5 * time.Second,
		metrics: metrics,
		logger:  logger,
		pending: make(chan models.BookingNotification, bufferSize),
		stop:    stop,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start launches the goroutine that publishes buffered notifications
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	go p.run()
	p.logger.WithField("queue", p.queue).Info("Notification publisher started")
}

// Enqueue buffers n without blocking. When the buffer is full or the
// publisher is stopped the notification is dropped and counted as failed.
func (p *Publisher) Enqueue(ctx context.Context, n models.BookingNotification) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	log := p.logger.WithFields(logrus.Fields{
		"booking_reference": n.BookingReference,
		"queue":             p.queue,
	})
	if p.closed {
		p.metrics.NotificationFailed()
		log.Warn("Notification dropped, publisher stopped")
		return
	}

	select {
	case p.pending <- n:
	default:
		p.metrics.NotificationFailed()
		log.Warn("Notification dropped, publish buffer full")
	}
}

// Stop closes the buffer and waits for it to drain, or for ctx to end.
// Whatever is still buffered when ctx ends is dropped.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	if !p.closed {
		p.closed = true
		close(p.pending)
	}
	p.mu.Unlock()

	if !started {
		p.cancel()
		p.logger.Info("Notification publisher closed")
		return nil
	}

	select {
	case <-p.done:
		p.cancel()
		p.logger.Info("Notification publisher closed")
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("notification publisher did not drain: %w", ctx.Err())
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	defer p.reset()

	for n := range p.pending {
		if p.stop.Err() != nil {
			p.metrics.NotificationFailed()
			continue
		}
		p.send(n)
	}
}

// send publishes n as a persistent message. Failures are logged and counted.
func (p *Publisher) send(n models.BookingNotification) {
	log := p.logger.WithFields(logrus.Fields{
		"booking_reference": n.BookingReference,
		"queue":             p.queue,
	})

	body, err := json.Marshal(n)
	if err != nil {
		p.metrics.NotificationFailed()
		log.WithError(err).Error("Failed to encode notification")
		return
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.BookingReference,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	pubCtx, cancel := context.WithTimeout(p.stop, p.timeout)
	defer cancel()

	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.publish(pubCtx, msg)
		if err == nil {
			p.metrics.NotificationQueued()
			log.Debug("Notification published")
			return
		}
		if pubCtx.Err() != nil {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Notification publish failed")
	}

	p.metrics.NotificationFailed()
	log.WithError(err).Error("Notification dropped")
}

func (p *Publisher) publish(ctx context.Context, msg amqp.Publishing) error {
	if p.ch == nil {
		if err := ctx.Err(); err != nil {
			return errPublisherClosed
		}
		ch, conn, err := p.dial(p.url, p.queue)
		if err != nil {
			return err
		}
		p.ch, p.conn = ch, conn
	}

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// reset drops the current connection
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}
