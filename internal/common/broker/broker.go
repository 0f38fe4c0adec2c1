// Package broker is the RabbitMQ transport for background jobs. One durable
// queue carries all job kinds; the Publishing Type header selects the handler
// on the consuming side.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"notification-workers/internal/common/config"
)

const retryCountHeader = "x-retry-count"

// Client owns the AMQP connection and channel.
type Client struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	retryQueue string
	logger     *zap.Logger
}

// New connects to RabbitMQ and declares the job queue.
func New(cfg config.RabbitMQConfig, logger *zap.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	// Failed jobs park here for min_backoff, then dead-letter back onto the
	// main queue. The delay lives in the broker, not in the consumer loop.
	retryQueue := cfg.Queue + ".retry"
	if _, err := ch.QueueDeclare(retryQueue, true, false, false, false, amqp.Table{
		"x-message-ttl":             config.GetDuration(cfg.MinBackoff).Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.Queue,
	}); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", retryQueue, err)
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	return &Client{conn: conn, ch: ch, queue: cfg.Queue, retryQueue: retryQueue, logger: logger}, nil
}

// Enqueue publishes a job. The payload is marshalled to JSON; jobType routes
// the message to a registered handler.
func (c *Client) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}
	return c.publish(ctx, jobType, body, 0)
}

func (c *Client) publish(ctx context.Context, jobType string, body []byte, retries int32) error {
	return c.publishTo(ctx, c.queue, jobType, body, retries)
}

// publishDelayed routes the job through the retry queue, so it reappears on
// the main queue after the TTL instead of immediately.
func (c *Client) publishDelayed(ctx context.Context, jobType string, body []byte, retries int32) error {
	return c.publishTo(ctx, c.retryQueue, jobType, body, retries)
}

func (c *Client) publishTo(ctx context.Context, queue, jobType string, body []byte, retries int32) error {
	err := c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         jobType,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{retryCountHeader: retries},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s job: %w", jobType, err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (c *Client) Close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
