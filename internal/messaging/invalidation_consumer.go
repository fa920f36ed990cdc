package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"
)

var errEmptyInvalidation = errors.New("invalidation message names no fingerprint")

// CacheInvalidator is the part of the analysis service the consumer drives
type CacheInvalidator interface {
	InvalidateFingerprint(ctx context.Context, fingerprint string) error
	InvalidateAll(ctx context.Context) (int64, error)
}

// InvalidationConsumer drops cached analyses on request from other services,
// e.g. after a price history correction
type InvalidationConsumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queueName   string
	invalidator CacheInvalidator
	timeout     time.Duration
	logger      *logrus.Logger
}

// NewInvalidationConsumer declares and binds the invalidation queue
func NewInvalidationConsumer(rabbitURL, exchange, queueName, routingKey string, invalidator CacheInvalidator, logger *logrus.Logger) (*InvalidationConsumer, error) {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(channel, exchange); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	queue, err := channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, routingKey, exchange, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Infof("Cache invalidation consumer initialized (queue: %s)", queueName)

	return &InvalidationConsumer{
		conn:        conn,
		channel:     channel,
		queueName:   queue.Name,
		invalidator: invalidator,
		timeout:     10 * time.Second,
		logger:      logger,
	}, nil
}

// Start consumes invalidation requests in the background until ctx is done
func (c *InvalidationConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Cache invalidation consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Cache invalidation consumer shutting down")
				return

			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("Message channel closed")
					return
				}

				if err := c.handle(ctx, msg.Body); err != nil {
					c.logger.WithError(err).Error("Failed to process invalidation message")
					// Malformed messages are dropped, anything else is retried once
					var syntaxErr *json.SyntaxError
					requeue := !msg.Redelivered && !errors.As(err, &syntaxErr) && !errors.Is(err, errEmptyInvalidation)
					msg.Nack(false, requeue)
					continue
				}
				msg.Ack(false)
			}
		}
	}()

	return nil
}

func (c *InvalidationConsumer) handle(ctx context.Context, body []byte) error {
	var message CacheInvalidationMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fields := logrus.Fields{"event_id": message.EventID, "reason": message.Reason}

	if message.All {
		removed, err := c.invalidator.InvalidateAll(ctx)
		if err != nil {
			return err
		}
		fields["removed"] = removed
		c.logger.WithFields(fields).Info("Cleared analysis cache")
		return nil
	}

	if message.Fingerprint == "" {
		return errEmptyInvalidation
	}

	if err := c.invalidator.InvalidateFingerprint(ctx, message.Fingerprint); err != nil {
		return err
	}
	fields["fingerprint"] = message.Fingerprint
	c.logger.WithFields(fields).Info("Invalidated cached analysis")
	return nil
}

// Close closes the consumer channel and connection
func (c *InvalidationConsumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.logger.Warnf("Error closing channel: %v", err)
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warnf("Error closing connection: %v", err)
		return err
	}
	c.logger.Info("Cache invalidation consumer closed")
	return nil
}
