// Package mailer — SMTP транспорт для узла sendEmail.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/shaiso/Flowline/internal/nodes"
)

const defaultTimeout = 30 * time.Second

// SMTP — реализация nodes.Mailer на go-mail.
// Параметры сервера приходят из конфигурации узла, клиент создаётся на письмо.
type SMTP struct {
	timeout time.Duration
}

// New создаёт SMTP транспорт.
func New() *SMTP {
	return &SMTP{timeout: defaultTimeout}
}

// Send отправляет письмо.
func (s *SMTP) Send(ctx context.Context, cfg nodes.SMTPConfig, msg nodes.Email) (*nodes.SendResult, error) {
	m, err := BuildMessage(msg)
	if err != nil {
		return nil, err
	}

	client, err := mail.NewClient(cfg.Host, clientOptions(cfg, s.timeout)...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return nil, fmt.Errorf("smtp send: %w", err)
	}

	result := &nodes.SendResult{Accepted: msg.To}
	if ids := m.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		result.MessageID = ids[0]
	}
	return result, nil
}

func clientOptions(cfg nodes.SMTPConfig, timeout time.Duration) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(timeout),
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Pass),
		)
	}
	if cfg.Secure {
		// Неявный TLS (порт 465)
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	return opts
}

// BuildMessage собирает письмо: текст, HTML-альтернатива и Message-ID.
func BuildMessage(msg nodes.Email) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", msg.From, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients %q: %w", strings.Join(msg.To, ", "), err)
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetDate()

	switch {
	case msg.Body != "" && msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextPlain, msg.Body)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.Body)
	}
	return m, nil
}
