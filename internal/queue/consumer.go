package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/services"
)

const (
	consumerTag     = "museum-notifier"
	defaultPrefetch = 10
	maxBackoff      = 30 * time.Second
)

// Consumer reads notifications from the queue and hands them to a
// NotificationHandler, reconnecting until its context ends
type Consumer struct {
	url      string
	queue    string
	prefetch int
	handler  services.NotificationHandler
	timeout  time.Duration
	dial     func(url string) (*amqp.Connection, error)
	logger   *logrus.Logger
}

// NewConsumer creates a consumer for the notification queue
func NewConsumer(cfg config.AMQPConfig, handler services.NotificationHandler, logger *logrus.Logger) *Consumer {
	return &Consumer{
		url:      cfg.URL,
		queue:    cfg.Queue,
		prefetch: defaultPrefetch,
		handler:  handler,
		timeout:  30 * time.Second,
		dial:     dialBroker,
		logger:   logger,
	}
}

// Run consumes until ctx is cancelled. Broker failures are retried with
// exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := c.dial(c.url)
		if err != nil {
			c.logger.WithError(err).WithField("retry_in", backoff.String()).Warn("Notification consumer cannot reach broker")
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.logger.WithError(err).Warn("Notification consumer disconnected, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.logger.WithError(err).Warn("Failed to set consumer prefetch")
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}

	msgs, err := ch.Consume(c.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.WithField("queue", c.queue).Info("Notification consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle acknowledges a delivery once it was sent. Undecodable messages are
// dropped; a failed send is requeued once and dropped on redelivery.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var n models.BookingNotification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		c.logger.WithError(err).WithField("message_id", d.MessageId).Error("Dropping malformed notification")
		_ = d.Nack(false, false)
		return
	}

	log := c.logger.WithFields(logrus.Fields{
		"booking_reference": n.BookingReference,
		"redelivered":       d.Redelivered,
	})

	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.handler.Send(sendCtx, n); err != nil {
		requeue := !d.Redelivered
		log.WithError(err).WithField("requeue", requeue).Error("Failed to send booking confirmation")
		_ = d.Nack(false, requeue)
		return
	}

	_ = d.Ack(false)
}

// sleep waits for d or until ctx ends; false means ctx ended
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
