// Package email sends reminder digests over SMTP.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"cassa/internal/log"
	"cassa/internal/notify"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// Sender handles sending emails via SMTP.
type Sender struct {
	cfg    Config
	logger *log.Logger
	send   sendFunc
}

var _ notify.Notifier = (*Sender)(nil)

func NewSender(cfg Config, logger *log.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger.WithComponent(log.ComponentNotifier),
		send:   func(e *email.Email, addr string, auth smtp.Auth) error { return e.Send(addr, auth) },
	}
}

func (s *Sender) Name() string { return "email" }

// Notify sends m to the recipient's email address.
// Recipients without one get notify.ErrNoAddress.
func (s *Sender) Notify(ctx context.Context, m notify.Message) error {
	to := strings.TrimSpace(m.To.Email)
	if to == "" {
		return notify.ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = []string{to}
	e.Subject = m.Subject
	e.Text = []byte(greeting(m.To.Name) + m.Body + "\n\n-- \ncassa\n")

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(e, addr, auth); err != nil {
		s.logger.ErrorContext(ctx, "Failed to send email",
			log.FieldOperation, log.OpNotify,
			"to", to,
			log.FieldError, err)
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.InfoContext(ctx, "Email sent", log.FieldOperation, log.OpNotify, "to", to, "subject", m.Subject)
	return nil
}

func greeting(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return "Hi,\n\n"
	}
	return "Hi " + name + ",\n\n"
}
