package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"
	"notification-workers/internal/recurrence"
	"notification-workers/internal/templates"
)

// NotificationStore is the persistence surface the orchestrator needs.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
}

// Enqueuer publishes background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}) error
}

// CreateNotification is a validated notification submission. The template is
// addressed by slug in the request path, not here.
type CreateNotification struct {
	UserID       *int64                        `json:"user_id,omitempty"`
	Contacts     map[models.Channel]string     `json:"contacts"`
	TemplateData map[string]interface{}        `json:"template_data"`
	Recurrence   *models.NotificationRecurrence `json:"recurrence,omitempty"`
}

// Orchestrator owns the notification write path. Persistence commits before
// any job is published, so a consumed job always finds its row.
type Orchestrator struct {
	store  NotificationStore
	loader *templates.Loader
	queue  Enqueuer
	logger *zap.Logger
	now    func() time.Time
}

func NewOrchestrator(store NotificationStore, loader *templates.Loader, queue Enqueuer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:  store,
		loader: loader,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Create validates and persists a notification against the template named by
// slug. A one-shot notification is enqueued for immediate delivery; a
// recurring one is left to the scheduler, which derives every occurrence
// including the first.
func (o *Orchestrator) Create(ctx context.Context, slug string, in CreateNotification) (*models.Notification, error) {
	t, err := o.loader.Resolve(ctx, slug, templates.Wrapped)
	if err != nil {
		return nil, err
	}

	// A directive send must name its channels even when user_id is set;
	// enrichment fills empty addresses, never an empty contact map.
	if len(in.Contacts) == 0 {
		return nil, errors.NewInvalidContacts()
	}
	for ch := range in.Contacts {
		if !ch.Known() {
			return nil, errors.NewUnrecognizedChannel(string(ch))
		}
	}

	if err := templates.RequireVariables(t.Variables, in.TemplateData); err != nil {
		return nil, err
	}

	if in.Recurrence != nil {
		if err := recurrence.Validate(in.Recurrence); err != nil {
			return nil, err
		}
		recurrence.Normalize(in.Recurrence)
	}

	n := &models.Notification{
		UserID:       in.UserID,
		Contacts:     in.Contacts,
		TemplateData: in.TemplateData,
		TemplateID:   t.ID,
		Recurrence:   in.Recurrence,
	}

	n, err = o.store.Create(ctx, n)
	if err != nil {
		return nil, err
	}
	n.Template = t

	if n.Recurrence == nil {
		payload := NewDispatchPayload(n.ID, o.now().UTC())
		if err := o.queue.Enqueue(ctx, JobDispatch, payload); err != nil {
			// The notification is committed; surface the enqueue failure so
			// the caller can retry delivery without re-creating it.
			o.logger.Error("failed to enqueue dispatch job",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err))
			return n, err
		}
	}

	o.logger.Info("notification created",
		zap.String("notification_id", n.ID.String()),
		zap.String("template", slug),
		zap.Bool("recurring", n.Recurrence != nil))
	return n, nil
}

// Get loads one notification with its template and recurrence.
func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	n, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, errors.NewNotificationNotFound(id.String())
	}
	return n, nil
}
