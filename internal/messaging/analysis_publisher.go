package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"
)

// AnalysisPublisher publishes analysis.completed events
type AnalysisPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *logrus.Logger
	mu         sync.Mutex
}

// NewAnalysisPublisher connects and declares the exchange
func NewAnalysisPublisher(rabbitURL, exchange, routingKey string, logger *logrus.Logger) (*AnalysisPublisher, error) {
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

	logger.Infof("Analysis publisher initialized (exchange: %s, routing_key: %s)", exchange, routingKey)

	return &AnalysisPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

// PublishAnalysisCompleted publishes msg as a persistent JSON message,
// filling in the event ID and timestamp when missing
func (p *AnalysisPublisher) PublishAnalysisCompleted(ctx context.Context, msg *AnalysisCompletedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.EventID == "" {
		msg.EventID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			MessageId:    msg.EventID,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    msg.Timestamp,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id":    msg.EventID,
		"fingerprint": msg.Fingerprint,
	}).Debug("Published analysis.completed")

	return nil
}

// Close closes the publisher channel and connection
func (p *AnalysisPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.logger.Warnf("Error closing channel: %v", err)
	}
	if err := p.conn.Close(); err != nil {
		p.logger.Warnf("Error closing connection: %v", err)
		return err
	}
	p.logger.Info("Analysis publisher closed")
	return nil
}

func declareExchange(channel *amqp.Channel, exchange string) error {
	err := channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}
