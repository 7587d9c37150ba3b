package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/config"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

const routingKeyPrefix = "job."

// Publisher mirrors job events onto a topic exchange
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	mu       sync.Mutex
}

// NewPublisher connects to RabbitMQ and declares the events exchange
func NewPublisher(cfg config.EventsConfig) (*Publisher, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: cfg.Exchange,
	}, nil
}

// Close closes the channel and connection
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Publish sends evt with routing key job.<type>. Progress events are
// transient; lifecycle events are persistent.
func (p *Publisher) Publish(ctx context.Context, evt models.JobEvent) error {
	msg, err := buildPublishing(evt)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(evt),
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// RoutingKey returns job.<type> for evt.
func RoutingKey(evt models.JobEvent) string {
	return routingKeyPrefix + evt.Type
}

func buildPublishing(evt models.JobEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	mode := amqp.Persistent
	if evt.Type == models.JobEventProgress {
		mode = amqp.Transient
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return amqp.Publishing{
		DeliveryMode: mode,
		ContentType:  "application/json",
		MessageId:    evt.JobID,
		Type:         evt.Type,
		Body:         body,
		Timestamp:    ts,
	}, nil
}
