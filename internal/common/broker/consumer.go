package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"notification-workers/internal/common/config"
	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/metrics"
)

// HandlerFunc processes one job payload. A retryable error re-enqueues the
// job; anything else drops it.
type HandlerFunc func(ctx context.Context, payload []byte) error

type handlerEntry struct {
	schema  *gojsonschema.Schema
	handler HandlerFunc
}

type publisher interface {
	publish(ctx context.Context, jobType string, body []byte, retries int32) error
	publishDelayed(ctx context.Context, jobType string, body []byte, retries int32) error
}

// Consumer dispatches queued jobs to registered handlers. Payloads are
// validated against the handler's JSON schema before the handler runs, so
// malformed messages are dropped instead of crashing a handler mid-flight.
type Consumer struct {
	client     *Client
	pub        publisher
	handlers   map[string]handlerEntry
	maxRetries int32
	logger     *zap.Logger
}

func NewConsumer(client *Client, cfg config.RabbitMQConfig, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:     client,
		pub:        client,
		handlers:   make(map[string]handlerEntry),
		maxRetries: int32(cfg.MaxRetries),
		logger:     logger,
	}
}

// Register binds a handler and its payload schema to a job type. Must be
// called before Run; the registry is not guarded for concurrent mutation.
func (c *Consumer) Register(jobType string, schemaJSON string, h HandlerFunc) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", jobType, err)
	}
	c.handlers[jobType] = handlerEntry{schema: schema, handler: h}
	return nil
}

// Run consumes jobs until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.client.ch.Consume(c.client.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started", zap.String("queue", c.client.queue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	logger := c.logger.With(zap.String("job", d.Type))

	entry, ok := c.handlers[d.Type]
	if !ok {
		logger.Error("no handler registered, dropping job")
		d.Ack(false)
		return
	}

	if err := c.validate(entry.schema, d.Body); err != nil {
		logger.Error("payload failed schema validation, dropping job", zap.Error(err))
		metrics.JobsFailed.WithLabelValues(d.Type, "INVALID_PAYLOAD").Inc()
		d.Ack(false)
		return
	}

	err := entry.handler(ctx, d.Body)
	if err == nil {
		metrics.JobsCompleted.WithLabelValues(d.Type).Inc()
		metrics.JobDuration.WithLabelValues(d.Type).Observe(time.Since(start).Seconds())
		d.Ack(false)
		return
	}

	code := string(errors.CodeOf(err))
	if code == "" {
		code = "UNKNOWN"
	}
	metrics.JobsFailed.WithLabelValues(d.Type, code).Inc()

	retries := retryCount(d)
	if errors.IsRetryable(err) && retries < c.maxRetries {
		logger.Warn("job failed, parking for retry",
			zap.Int32("retries", retries),
			zap.Error(err))
		if pubErr := c.pub.publishDelayed(ctx, d.Type, d.Body, retries+1); pubErr != nil {
			// Could not re-enqueue; put the original back instead.
			logger.Error("failed to re-enqueue job", zap.Error(pubErr))
			d.Nack(false, true)
			return
		}
		d.Ack(false)
		return
	}

	logger.Error("job failed terminally, dropping",
		zap.Int32("retries", retries),
		zap.Error(err))
	d.Ack(false)
}

func (c *Consumer) validate(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return err
	}
	if !result.Valid() {
		return fmt.Errorf("schema violations: %v", result.Errors())
	}
	return nil
}

func retryCount(d amqp.Delivery) int32 {
	if d.Headers == nil {
		return 0
	}
	switch v := d.Headers[retryCountHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	}
	return 0
}
