package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/metrics"
	"notification-workers/internal/models"
	"notification-workers/internal/templates"
)

// Delivery is one rendered message bound for one channel.
type Delivery struct {
	Notification *models.Notification
	Channel      models.Channel
	SendTo       string
	Title        string
	Content      string
	Occurrence   string
}

// DeliverFunc pushes one delivery through a channel's transport.
type DeliverFunc func(ctx context.Context, d Delivery) error

// Deduper guards against double delivery of the same occurrence. Acquire
// returns false when the key is already held.
type Deduper interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Dispatcher handles dispatch jobs: it loads the notification, renders the
// template once and fans the result out to every contact channel. Channels
// fail independently; one broken channel never blocks the others.
type Dispatcher struct {
	store    NotificationStore
	engine   *templates.Engine
	users    UserLookup
	dedup    Deduper
	dedupTTL time.Duration
	handlers map[models.Channel]DeliverFunc
	logger   *zap.Logger
}

func NewDispatcher(store NotificationStore, engine *templates.Engine, users UserLookup,
	dedup Deduper, dedupTTL time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		engine:   engine,
		users:    users,
		dedup:    dedup,
		dedupTTL: dedupTTL,
		handlers: make(map[models.Channel]DeliverFunc),
		logger:   logger,
	}
}

// On registers the delivery handler for a channel.
func (d *Dispatcher) On(ch models.Channel, fn DeliverFunc) {
	d.handlers[ch] = fn
}

// Handle processes one dispatch job payload.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) error {
	var job DispatchPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("failed to decode dispatch payload: %w", err)
	}

	n, err := d.store.GetByID(ctx, job.NotificationID)
	if err != nil {
		return errors.NewConnectionFailure(err)
	}
	if n == nil {
		return errors.NewNotificationNotFound(job.NotificationID.String())
	}

	// The template can change between creation and dispatch; re-check the
	// declared variables so a gap fails terminally instead of retrying.
	if err := templates.RequireVariables(n.Template.Variables, n.TemplateData); err != nil {
		return err
	}
	title, content, err := d.engine.Render(ctx, n.Template, n.TemplateData)
	if err != nil {
		return err
	}

	var firstErr error
	for ch, addr := range n.Contacts {
		if err := d.deliverChannel(ctx, n, job, ch, addr, title, content); err != nil {
			d.logger.Error("channel delivery failed",
				zap.String("notification_id", n.ID.String()),
				zap.String("channel", string(ch)),
				zap.Error(err))
			if firstErr == nil || (!errors.IsRetryable(firstErr) && errors.IsRetryable(err)) {
				firstErr = err
			}
		}
	}
	return firstErr
}

// DeliverHandler returns the job handler for single-channel delivery jobs
// (deliver-email, deliver-sms). The address comes from the payload, not the
// contact map, so no enrichment happens here.
func (d *Dispatcher) DeliverHandler(ch models.Channel) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var job DeliverPayload
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("failed to decode deliver payload: %w", err)
		}
		if _, ok := d.handlers[ch]; !ok {
			return errors.NewUnrecognizedChannel(string(ch))
		}

		n, err := d.store.GetByID(ctx, job.NotificationID)
		if err != nil {
			return errors.NewConnectionFailure(err)
		}
		if n == nil {
			return errors.NewNotificationNotFound(job.NotificationID.String())
		}

		if err := templates.RequireVariables(n.Template.Variables, n.TemplateData); err != nil {
			return err
		}
		title, content, err := d.engine.Render(ctx, n.Template, n.TemplateData)
		if err != nil {
			return err
		}

		dispatchJob := DispatchPayload{NotificationID: job.NotificationID, Occurrence: job.Occurrence}
		return d.deliverChannel(ctx, n, dispatchJob, ch, job.SendTo, title, content)
	}
}

func (d *Dispatcher) deliverChannel(ctx context.Context, n *models.Notification,
	job DispatchPayload, ch models.Channel, addr, title, content string) error {
	logger := d.logger.With(
		zap.String("notification_id", n.ID.String()),
		zap.String("channel", string(ch)))

	handler, ok := d.handlers[ch]
	if !ch.Known() || !ok {
		// Stored data can outlive the channel set; skip rather than fail the
		// remaining channels.
		logger.Warn("no delivery handler for channel, skipping")
		metrics.Deliveries.WithLabelValues(string(ch), "skipped").Inc()
		return nil
	}

	key := dedupKey(n.ID, ch, job.Occurrence)
	acquired, err := d.dedup.Acquire(ctx, key, d.dedupTTL)
	if err != nil {
		return errors.NewConnectionFailure(err)
	}
	if !acquired {
		logger.Info("occurrence already delivered, skipping")
		metrics.Deliveries.WithLabelValues(string(ch), "deduped").Inc()
		return nil
	}

	if addr == "" {
		addr, err = d.resolveContact(ctx, n, ch)
		if err != nil {
			d.dedup.Release(ctx, key)
			metrics.Deliveries.WithLabelValues(string(ch), "failed").Inc()
			return err
		}
	}

	if err := handler(ctx, Delivery{
		Notification: n,
		Channel:      ch,
		SendTo:       addr,
		Title:        title,
		Content:      content,
		Occurrence:   job.Occurrence,
	}); err != nil {
		// Release the dedup slot so a redelivered job can try again.
		d.dedup.Release(ctx, key)
		metrics.Deliveries.WithLabelValues(string(ch), "failed").Inc()
		return err
	}

	metrics.Deliveries.WithLabelValues(string(ch), "success").Inc()
	return nil
}

func (d *Dispatcher) resolveContact(ctx context.Context, n *models.Notification, ch models.Channel) (string, error) {
	if n.UserID == nil {
		return "", errors.NewInvalidContacts()
	}
	info, err := d.users.Lookup(ctx, *n.UserID)
	if err != nil {
		return "", err
	}
	addr := info.contactFor(ch)
	if addr == "" {
		return "", errors.NewInvalidContacts()
	}
	return addr, nil
}

func dedupKey(id uuid.UUID, ch models.Channel, occurrence string) string {
	return fmt.Sprintf("dedup:%s:%s:%s", id, ch, occurrence)
}
