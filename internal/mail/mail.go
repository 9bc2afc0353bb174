// Package mail renders transactional templates and hands them to a delivery
// transport.
package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
)

// Message is a request to send one templated e-mail.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]any
}

// Email is a fully rendered message ready for a transport.
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport delivers a rendered e-mail. Implementations do not retry.
type Transport interface {
	Deliver(ctx context.Context, e Email) error
}

// Mailer renders a Message and delivers it through its transport.
type Mailer struct {
	from      string
	templates *Templates
	transport Transport
	logger    *log.Logger
}

func NewMailer(from string, templates *Templates, transport Transport, logger *log.Logger) *Mailer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Mailer{from: from, templates: templates, transport: transport, logger: logger}
}

func (m *Mailer) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("mail: recipient required")
	}
	rendered, err := m.templates.Render(msg.Template, msg.Subject, msg.Data)
	if err != nil {
		return fmt.Errorf("mail: render %s: %w", msg.Template, err)
	}
	if err := m.transport.Deliver(ctx, Email{
		From:    m.from,
		To:      to,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	}); err != nil {
		return err
	}
	m.logger.Printf("mail: sent template=%s to=%s", msg.Template, redactEmail(to))
	return nil
}

func redactEmail(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at <= 1 {
		return "***" + addr[max(at, 0):]
	}
	return addr[:1] + "***" + addr[at:]
}
