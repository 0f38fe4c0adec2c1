package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"notification-workers/internal/models"
)

// MessageRepo persists delivery records. Rows are append-only; the single
// permitted mutation is stamping read_at.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, notification_id, user_id, channel, send_to, title, content, sent_at, read_at, created_at`

func (r *MessageRepo) Insert(ctx context.Context, m *models.NotificationMessage) (*models.NotificationMessage, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `INSERT INTO notification_messages (id, notification_id, user_id, channel, send_to, title, content, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		m.ID, m.NotificationID, m.UserID, m.Channel, m.SendTo, m.Title, m.Content, m.SentAt).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM notification_messages WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// MarkRead stamps read_at once; re-reading an already read message keeps the
// original timestamp. Returns (nil, nil) for an unknown id.
func (r *MessageRepo) MarkRead(ctx context.Context, id uuid.UUID) (*models.NotificationMessage, error) {
	query := `UPDATE notification_messages
		SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1
		RETURNING ` + messageColumns
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// ListByUser returns a user's delivery records, newest first.
func (r *MessageRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.NotificationMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM notification_messages
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.NotificationMessage
	for rows.Next() {
		m, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) scanOne(row rowScanner) (*models.NotificationMessage, error) {
	var m models.NotificationMessage
	err := row.Scan(&m.ID, &m.NotificationID, &m.UserID, &m.Channel, &m.SendTo,
		&m.Title, &m.Content, &m.SentAt, &m.ReadAt, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	return &m, nil
}
