// Package mailer delivers rendered messages over SMTP through one persistent
// connection. The connection is dialed eagerly at startup so configuration
// problems surface before any job is consumed.
package mailer

import (
	stderrors "errors"
	"net/textproto"
	"sync"
	"time"

	"go.uber.org/zap"
	gomail "gopkg.in/mail.v2"

	"notification-workers/internal/common/config"
	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/metrics"
)

const maxSendAttempts = 5

// Email is a single rendered message ready for transport.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Sender is the transport surface delivery handlers depend on.
type Sender interface {
	Send(email Email) error
	SendAll(emails []Email) error
}

type dialer interface {
	Dial() (gomail.SendCloser, error)
}

// Mailer keeps one SMTP connection open across sends and reconnects when the
// server drops it. Sends are serialized; SMTP does not multiplex.
type Mailer struct {
	dialer dialer
	from   string
	logger *zap.Logger

	sleep func(time.Duration)

	mu   sync.Mutex
	conn gomail.SendCloser
}

// New dials the SMTP server and returns a connected mailer.
func New(cfg config.SMTPConfig, logger *zap.Logger) (*Mailer, error) {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Login, cfg.Password)
	d.SSL = cfg.UseSSL

	m := &Mailer{
		dialer: d,
		from:   cfg.FromEmail,
		logger: logger,
		sleep:  time.Sleep,
	}
	conn, err := d.Dial()
	if err != nil {
		return nil, errors.NewConnectionFailure(err)
	}
	m.conn = conn
	return m, nil
}

// Send delivers one message, reconnecting and retrying on transient failures.
// A permanent rejection (5xx) fails immediately without retry.
func (m *Mailer) Send(email Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(email)
}

// SendAll delivers messages in order and stops at the first terminal failure,
// returning it. Earlier deliveries are not rolled back.
func (m *Mailer) SendAll(emails []Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range emails {
		if err := m.send(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mailer) send(email Email) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/html", email.Body)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if m.conn == nil {
			conn, err := m.dialer.Dial()
			if err != nil {
				lastErr = err
				m.backoff(attempt, err)
				continue
			}
			m.conn = conn
		}

		err := gomail.Send(m.conn, msg)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			m.logger.Error("recipient rejected",
				zap.String("to", email.To),
				zap.Error(err))
			return errors.NewRecipientRefused(email.To, err)
		}

		// Transient: the server likely dropped the connection. Discard it
		// and redial on the next attempt.
		m.conn.Close()
		m.conn = nil
		lastErr = err
		m.backoff(attempt, err)
	}

	return errors.NewConnectionFailure(lastErr)
}

func (m *Mailer) backoff(attempt int, err error) {
	metrics.SMTPRetries.Inc()
	m.logger.Warn("smtp send failed, retrying",
		zap.Int("attempt", attempt),
		zap.Error(err))
	if attempt < maxSendAttempts {
		m.sleep(time.Duration(attempt) * time.Second)
	}
}

// isPermanent reports whether the SMTP reply is a 5xx rejection. Everything
// else (dropped connections, 4xx greylisting) is worth retrying.
// gomail.Send wraps failures in *SendError, which carries Cause without an
// Unwrap method, so it is peeled by hand before the reply-code check.
func isPermanent(err error) bool {
	var sendErr *gomail.SendError
	if stderrors.As(err, &sendErr) && sendErr.Cause != nil {
		err = sendErr.Cause
	}
	var tpErr *textproto.Error
	if stderrors.As(err, &tpErr) {
		return tpErr.Code >= 500 && tpErr.Code < 600
	}
	return false
}

// Close shuts the SMTP connection down.
func (m *Mailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}
