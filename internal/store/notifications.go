package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notification-workers/internal/models"
)

// NotificationRepo persists notifications and their recurrence rules.
// Creation is transactional and committed before returning, so callers can
// safely enqueue delivery work afterwards without risking a dangling job.
type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Create inserts the recurrence rule (when present) and the notification in
// one transaction.
func (r *NotificationRepo) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if n.Recurrence != nil {
		id, err := insertRecurrence(ctx, tx, n.Recurrence)
		if err != nil {
			return nil, err
		}
		n.Recurrence.ID = id
		n.RecurrenceID = &id
	}

	contacts, err := json.Marshal(n.Contacts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode contacts: %w", err)
	}
	templateData, err := json.Marshal(n.TemplateData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode template data: %w", err)
	}

	query := `INSERT INTO notifications (id, user_id, contacts, template_data, template_id, recurrence_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err = tx.QueryRowContext(ctx, query,
		n.ID, n.UserID, contacts, templateData, n.TemplateID, n.RecurrenceID).Scan(&n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit notification: %w", err)
	}
	return n, nil
}

const notificationJoin = `
	SELECT n.id, n.user_id, n.contacts, n.template_data, n.template_id, n.recurrence_id, n.created_at,
	       t.id, t.slug, t.name, t.title, t.content, t.is_base, t.variables, t.search_params, t.created_at, t.updated_at,
	       r.id, r.frequency, r.started_at, r."interval", r.count, r.until, r.week_days, r.additional_dates, r.exclude_dates
	FROM notifications n
	JOIN templates t ON t.id = n.template_id
	LEFT JOIN notification_recurrences r ON r.id = n.recurrence_id`

// GetByID loads a notification with its template and recurrence in a single
// round trip. Delivery handlers rely on Template being populated.
func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	row := r.db.QueryRowContext(ctx, notificationJoin+` WHERE n.id = $1`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// ListRecurring returns every notification governed by a recurrence rule,
// eagerly joined. The scheduler walks this set each tick.
func (r *NotificationRepo) ListRecurring(ctx context.Context) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, notificationJoin+` WHERE n.recurrence_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func insertRecurrence(ctx context.Context, tx *sql.Tx, rec *models.NotificationRecurrence) (int64, error) {
	weekDays, err := json.Marshal(rec.WeekDays)
	if err != nil {
		return 0, fmt.Errorf("failed to encode week days: %w", err)
	}
	additional, err := json.Marshal(rec.AdditionalDates)
	if err != nil {
		return 0, fmt.Errorf("failed to encode additional dates: %w", err)
	}
	exclude, err := json.Marshal(rec.ExcludeDates)
	if err != nil {
		return 0, fmt.Errorf("failed to encode exclude dates: %w", err)
	}

	query := `INSERT INTO notification_recurrences (frequency, started_at, "interval", count, until, week_days, additional_dates, exclude_dates)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	var id int64
	err = tx.QueryRowContext(ctx, query,
		rec.Frequency, rec.StartedAt, rec.Interval, rec.Count, rec.Until,
		weekDays, additional, exclude).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert recurrence: %w", err)
	}
	return id, nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n            models.Notification
		t            models.Template
		contacts     []byte
		templateData []byte
		variables    []byte
		searchParams []byte

		recID         sql.NullInt64
		recFrequency  sql.NullString
		recStartedAt  sql.NullTime
		recInterval   sql.NullInt64
		recCount      sql.NullInt64
		recUntil      sql.NullTime
		recWeekDays   []byte
		recAdditional []byte
		recExclude    []byte
	)

	err := row.Scan(
		&n.ID, &n.UserID, &contacts, &templateData, &n.TemplateID, &n.RecurrenceID, &n.CreatedAt,
		&t.ID, &t.Slug, &t.Name, &t.Title, &t.Content, &t.IsBase, &variables, &searchParams, &t.CreatedAt, &t.UpdatedAt,
		&recID, &recFrequency, &recStartedAt, &recInterval, &recCount, &recUntil,
		&recWeekDays, &recAdditional, &recExclude,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &n.Contacts); err != nil {
			return nil, fmt.Errorf("failed to decode contacts: %w", err)
		}
	}
	if len(templateData) > 0 {
		if err := json.Unmarshal(templateData, &n.TemplateData); err != nil {
			return nil, fmt.Errorf("failed to decode template data: %w", err)
		}
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &t.Variables); err != nil {
			return nil, fmt.Errorf("failed to decode template variables: %w", err)
		}
	}
	if len(searchParams) > 0 {
		if err := json.Unmarshal(searchParams, &t.SearchParams); err != nil {
			return nil, fmt.Errorf("failed to decode template search params: %w", err)
		}
	}
	n.Template = &t

	if recID.Valid {
		rec := models.NotificationRecurrence{
			ID:        recID.Int64,
			Frequency: models.Frequency(recFrequency.String),
			StartedAt: recStartedAt.Time,
			Interval:  int(recInterval.Int64),
		}
		if recCount.Valid {
			c := int(recCount.Int64)
			rec.Count = &c
		}
		if recUntil.Valid {
			u := recUntil.Time
			rec.Until = &u
		}
		if len(recWeekDays) > 0 {
			if err := json.Unmarshal(recWeekDays, &rec.WeekDays); err != nil {
				return nil, fmt.Errorf("failed to decode week days: %w", err)
			}
		}
		if err := decodeDates(recAdditional, &rec.AdditionalDates); err != nil {
			return nil, err
		}
		if err := decodeDates(recExclude, &rec.ExcludeDates); err != nil {
			return nil, err
		}
		n.Recurrence = &rec
	}
	return &n, nil
}

func decodeDates(raw []byte, dst *[]time.Time) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode recurrence dates: %w", err)
	}
	return nil
}
