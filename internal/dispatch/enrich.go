package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/httpx"
	"notification-workers/internal/models"
)

// UserInfo is the profile shape returned by the user-info service.
type UserInfo struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// UserLookup resolves a user id to contact details.
type UserLookup interface {
	Lookup(ctx context.Context, userID int64) (*UserInfo, error)
}

// Enricher fetches user profiles over HTTP. Failures are retryable: the
// user-info service being down should not burn the job.
type Enricher struct {
	client *httpx.Client
}

func NewEnricher(client *httpx.Client) *Enricher {
	return &Enricher{client: client}
}

func (e *Enricher) Lookup(ctx context.Context, userID int64) (*UserInfo, error) {
	var info UserInfo
	if err := e.client.GetJSON(ctx, fmt.Sprintf("/user-info/%d", userID), &info); err != nil {
		return nil, errors.NewEnrichmentFailed(userID, err)
	}
	return &info, nil
}

// JobHandler returns the enrich-contact job handler. A failed lookup
// propagates as a retryable enrichment error, so the broker redelivers while
// the user-info service is down.
func (e *Enricher) JobHandler(logger *zap.Logger) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var job EnrichPayload
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("failed to decode enrich payload: %w", err)
		}
		info, err := e.Lookup(ctx, job.UserID)
		if err != nil {
			return err
		}
		logger.Info("contacts resolved",
			zap.Int64("user_id", job.UserID),
			zap.Bool("has_email", info.Email != ""),
			zap.Bool("has_phone", info.Phone != ""))
		return nil
	}
}

// contactFor picks the profile field matching the channel.
func (u *UserInfo) contactFor(ch models.Channel) string {
	switch ch {
	case models.ChannelEmail:
		return u.Email
	case models.ChannelSMS:
		return u.Phone
	}
	return ""
}
