package broker

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notification-workers/internal/common/errors"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.nacks++
	return nil
}

type fakePublisher struct {
	published []int32
	delayed   []int32
	err       error
}

func (f *fakePublisher) publish(ctx context.Context, jobType string, body []byte, retries int32) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, retries)
	return nil
}

func (f *fakePublisher) publishDelayed(ctx context.Context, jobType string, body []byte, retries int32) error {
	if f.err != nil {
		return f.err
	}
	f.delayed = append(f.delayed, retries)
	return nil
}

const testSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {"id": {"type": "string"}},
	"additionalProperties": false
}`

func testConsumer(t *testing.T, pub publisher) *Consumer {
	t.Helper()
	c := &Consumer{
		pub:        pub,
		handlers:   make(map[string]handlerEntry),
		maxRetries: 3,
		logger:     zap.NewNop(),
	}
	return c
}

func delivery(ack *fakeAcknowledger, jobType string, body []byte, retries int32) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		Type:         jobType,
		Body:         body,
		Headers:      amqp.Table{retryCountHeader: retries},
	}
}

func TestHandleSuccessAcks(t *testing.T) {
	pub := &fakePublisher{}
	c := testConsumer(t, pub)
	handled := 0
	require.NoError(t, c.Register("job", testSchema, func(ctx context.Context, payload []byte) error {
		handled++
		return nil
	}))

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), delivery(ack, "job", []byte(`{"id":"x"}`), 0))

	assert.Equal(t, 1, handled)
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, pub.published)
}

func TestHandleInvalidPayloadDropped(t *testing.T) {
	c := testConsumer(t, &fakePublisher{})
	handled := 0
	require.NoError(t, c.Register("job", testSchema, func(ctx context.Context, payload []byte) error {
		handled++
		return nil
	}))

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), delivery(ack, "job", []byte(`{"wrong":true}`), 0))

	assert.Equal(t, 0, handled)
	assert.Equal(t, 1, ack.acks)
}

func TestHandleUnknownJobDropped(t *testing.T) {
	c := testConsumer(t, &fakePublisher{})

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), delivery(ack, "nobody-home", []byte(`{}`), 0))

	assert.Equal(t, 1, ack.acks)
}

func TestHandleRetryableFailureParksForRetry(t *testing.T) {
	pub := &fakePublisher{}
	c := testConsumer(t, pub)
	require.NoError(t, c.Register("job", testSchema, func(ctx context.Context, payload []byte) error {
		return errors.NewConnectionFailure(assert.AnError)
	}))

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), delivery(ack, "job", []byte(`{"id":"x"}`), 1))

	// The retry goes through the delayed queue, never straight back onto the
	// main one, so the consumer loop is free for the next delivery.
	assert.Equal(t, []int32{2}, pub.delayed)
	assert.Empty(t, pub.published)
	assert.Equal(t, 1, ack.acks)
}

func TestHandleRetryBudgetExhausted(t *testing.T) {
	pub := &fakePublisher{}
	c := testConsumer(t, pub)
	require.NoError(t, c.Register("job", testSchema, func(ctx context.Context, payload []byte) error {
		return errors.NewConnectionFailure(assert.AnError)
	}))

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), delivery(ack, "job", []byte(`{"id":"x"}`), 3))

	assert.Empty(t, pub.delayed)
	assert.Equal(t, 1, ack.acks)
}

func TestHandleTerminalFailureDropped(t *testing.T) {
	pub := &fakePublisher{}
	c := testConsumer(t, pub)
	require.NoError(t, c.Register("job", testSchema, func(ctx context.Context, payload []byte) error {
		return errors.NewNotificationNotFound("gone")
	}))

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), delivery(ack, "job", []byte(`{"id":"x"}`), 0))

	assert.Empty(t, pub.delayed)
	assert.Equal(t, 1, ack.acks)
}

func TestHandleReEnqueueFailureNacks(t *testing.T) {
	pub := &fakePublisher{err: assert.AnError}
	c := testConsumer(t, pub)
	require.NoError(t, c.Register("job", testSchema, func(ctx context.Context, payload []byte) error {
		return errors.NewConnectionFailure(assert.AnError)
	}))

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), delivery(ack, "job", []byte(`{"id":"x"}`), 0))

	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue)
}

func TestRegisterRejectsBrokenSchema(t *testing.T) {
	c := testConsumer(t, &fakePublisher{})

	err := c.Register("job", `{"type": 42}`, func(ctx context.Context, payload []byte) error {
		return nil
	})

	assert.Error(t, err)
}
