package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"notification-workers/internal/mailer"
	"notification-workers/internal/models"
)

// MessageStore records delivery attempts.
type MessageStore interface {
	Insert(ctx context.Context, m *models.NotificationMessage) (*models.NotificationMessage, error)
}

// EmailDeliverer records a message row and pushes the rendered body over
// SMTP. The row is written first so a transport failure still leaves an
// attempt on record for the retry to supersede.
type EmailDeliverer struct {
	messages MessageStore
	sender   mailer.Sender
	now      func() time.Time
}

func NewEmailDeliverer(messages MessageStore, sender mailer.Sender) *EmailDeliverer {
	return &EmailDeliverer{messages: messages, sender: sender, now: time.Now}
}

func (e *EmailDeliverer) Deliver(ctx context.Context, d Delivery) error {
	_, err := e.messages.Insert(ctx, &models.NotificationMessage{
		NotificationID: d.Notification.ID,
		UserID:         d.Notification.UserID,
		Channel:        d.Channel,
		SendTo:         d.SendTo,
		Title:          d.Title,
		Content:        d.Content,
		SentAt:         e.now().UTC(),
	})
	if err != nil {
		return err
	}

	return e.sender.Send(mailer.Email{
		To:      d.SendTo,
		Subject: d.Title,
		Body:    d.Content,
	})
}

// SMSDeliverer records the message without a transport; the SMS gateway is
// not wired up yet.
type SMSDeliverer struct {
	messages MessageStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewSMSDeliverer(messages MessageStore, logger *zap.Logger) *SMSDeliverer {
	return &SMSDeliverer{messages: messages, logger: logger, now: time.Now}
}

func (s *SMSDeliverer) Deliver(ctx context.Context, d Delivery) error {
	_, err := s.messages.Insert(ctx, &models.NotificationMessage{
		NotificationID: d.Notification.ID,
		UserID:         d.Notification.UserID,
		Channel:        d.Channel,
		SendTo:         d.SendTo,
		Title:          d.Title,
		Content:        d.Content,
		SentAt:         s.now().UTC(),
	})
	if err != nil {
		return err
	}
	s.logger.Info("sms recorded without transport",
		zap.String("notification_id", d.Notification.ID.String()),
		zap.String("send_to", d.SendTo))
	return nil
}
