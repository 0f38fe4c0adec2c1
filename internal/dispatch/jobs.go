// Package dispatch owns the delivery pipeline: creating notifications,
// fanning occurrences out to channels and handing rendered messages to the
// transports.
package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// JobDispatch is the queue job type for delivering one notification
// occurrence.
const JobDispatch = "dispatch-notification"

// occurrenceFormat is naive, second-granular, and stable: it keys both the
// job payload and the dedup entry.
const occurrenceFormat = "2006-01-02T15:04:05"

// DispatchPayload identifies one (notification, occurrence) pair to deliver.
type DispatchPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
	Occurrence     string    `json:"occurrence"`
}

// DispatchPayloadSchema validates dispatch jobs before handling.
const DispatchPayloadSchema = `{
	"type": "object",
	"required": ["notification_id", "occurrence"],
	"properties": {
		"notification_id": {"type": "string", "format": "uuid"},
		"occurrence": {"type": "string"}
	},
	"additionalProperties": false
}`

// Single-channel delivery job types. Dispatch jobs fan out in-process; these
// exist so one channel of one notification can be retried or driven by an
// external producer without re-fanning out the siblings.
const (
	JobDeliverEmail = "deliver-email"
	JobDeliverSMS   = "deliver-sms"
)

// DeliverPayload addresses one channel delivery with an explicit address.
type DeliverPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
	SendTo         string    `json:"send_to"`
	Occurrence     string    `json:"occurrence,omitempty"`
}

// DeliverPayloadSchema validates single-channel delivery jobs.
const DeliverPayloadSchema = `{
	"type": "object",
	"required": ["notification_id", "send_to"],
	"properties": {
		"notification_id": {"type": "string", "format": "uuid"},
		"send_to": {"type": "string", "minLength": 1},
		"occurrence": {"type": "string"}
	},
	"additionalProperties": false
}`

// JobEnrichContact resolves a user's contact details out of band. The
// dispatch path enriches inline; this job exists for producers that only
// know the user id.
const JobEnrichContact = "enrich-contact"

// EnrichPayload names the user whose contacts should be resolved.
type EnrichPayload struct {
	UserID int64 `json:"user_id"`
}

// EnrichPayloadSchema validates contact enrichment jobs.
const EnrichPayloadSchema = `{
	"type": "object",
	"required": ["user_id"],
	"properties": {
		"user_id": {"type": "integer", "minimum": 1}
	},
	"additionalProperties": false
}`

// NewDispatchPayload builds the payload for one occurrence instant.
func NewDispatchPayload(notificationID uuid.UUID, occurrence time.Time) DispatchPayload {
	return DispatchPayload{
		NotificationID: notificationID,
		Occurrence:     occurrence.Format(occurrenceFormat),
	}
}
