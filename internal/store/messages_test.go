package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-workers/internal/models"
)

var messageCols = []string{"id", "notification_id", "user_id", "channel", "send_to",
	"title", "content", "sent_at", "read_at", "created_at"}

func TestMessageRepoInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	nid := uuid.New()
	sentAt := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO notification_messages`)).
		WithArgs(sqlmock.AnyArg(), nid, nil, "email", "ann@example.com", "Hello Ann", "<p>Hi</p>", sentAt).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	repo := NewMessageRepo(db)
	m, err := repo.Insert(context.Background(), &models.NotificationMessage{
		NotificationID: nid,
		Channel:        models.ChannelEmail,
		SendTo:         "ann@example.com",
		Title:          "Hello Ann",
		Content:        "<p>Hi</p>",
		SentAt:         sentAt,
	})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepoMarkRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	nid := uuid.New()
	readAt := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SET read_at = COALESCE(read_at, NOW())`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow(id.String(), nid.String(), nil, "sms", "+155501", "t", "c",
				time.Now(), readAt, time.Now()))

	repo := NewMessageRepo(db)
	m, err := repo.MarkRead(context.Background(), id)

	require.NoError(t, err)
	require.NotNil(t, m)
	require.NotNil(t, m.ReadAt)
	assert.Equal(t, readAt.Unix(), m.ReadAt.Unix())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepoMarkReadMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(`UPDATE notification_messages`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(messageCols))

	repo := NewMessageRepo(db)
	m, err := repo.MarkRead(context.Background(), id)

	require.NoError(t, err)
	assert.Nil(t, m)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepoListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	uid := int64(42)
	rows := sqlmock.NewRows(messageCols)
	for i := 0; i < 2; i++ {
		rows.AddRow(uuid.New().String(), uuid.New().String(), uid, "email",
			"ann@example.com", "t", "c", time.Now(), nil, time.Now())
	}
	mock.ExpectQuery(`SELECT .+ FROM notification_messages`).
		WithArgs(uid, 10, 0).
		WillReturnRows(rows)

	repo := NewMessageRepo(db)
	got, err := repo.ListByUser(context.Background(), uid, 10, 0)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uid, *got[0].UserID)
	assert.Nil(t, got[0].ReadAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
