package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies a delivery backend. The set is closed: adding a channel
// means adding a constant here and a handler in the dispatch table.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Known reports whether the channel is part of the closed set.
func (c Channel) Known() bool {
	switch c {
	case ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// Notification is created once and never mutated by delivery. Contacts maps a
// channel to an address; an empty address defers recipient resolution to the
// user-info service, keyed by UserID.
type Notification struct {
	ID           uuid.UUID              `json:"id" db:"id"`
	UserID       *int64                 `json:"user_id,omitempty" db:"user_id"`
	Contacts     map[Channel]string     `json:"contacts" db:"contacts"`
	TemplateData map[string]interface{} `json:"template_data" db:"template_data"`
	TemplateID   int64                  `json:"template_id" db:"template_id"`
	RecurrenceID *int64                 `json:"-" db:"recurrence_id"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`

	// Template is eagerly loaded with the notification; delivery must not
	// issue a second round trip for it.
	Template   *Template               `json:"-" db:"-"`
	Recurrence *NotificationRecurrence `json:"recurrence,omitempty" db:"-"`
}

// NotificationMessage is one row per delivery attempt. Append-only; only
// ReadAt is ever updated.
type NotificationMessage struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	NotificationID uuid.UUID  `json:"notification_id" db:"notification_id"`
	UserID         *int64     `json:"user_id,omitempty" db:"user_id"`
	Channel        Channel    `json:"channel" db:"channel"`
	SendTo         string     `json:"send_to" db:"send_to"`
	Title          string     `json:"title" db:"title"`
	Content        string     `json:"content" db:"content"`
	SentAt         time.Time  `json:"sent_at" db:"sent_at"`
	ReadAt         *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
