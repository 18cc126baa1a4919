package nodes

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Flowline/internal/domain"
)

const defaultSimulatedMessageID = "simulated-email-id-default"

// SendEmailExecutor — узел отправки письма через SMTP.
//
// Конфигурация:
//
//	{
//	    "host": "smtp.example.com", "port": 587, "secure": false,
//	    "user": "{{credential.SMTP_USER}}", "pass": "{{credential.SMTP_PASS}}",
//	    "from": "bot@example.com",
//	    "to": "a@example.com, b@example.com",
//	    "subject": "Report", "body": "...", "htmlBody": "<p>...</p>"
//	}
//
// Выход: {"messageId": "...", "accepted": [...]}.
type SendEmailExecutor struct{}

// NewSendEmailExecutor создаёт SendEmailExecutor.
func NewSendEmailExecutor() *SendEmailExecutor {
	return &SendEmailExecutor{}
}

// Type возвращает тип узла.
func (e *SendEmailExecutor) Type() domain.NodeType {
	return domain.NodeTypeSendEmail
}

// Execute отправляет письмо.
func (e *SendEmailExecutor) Execute(ctx context.Context, req *Request) (Output, error) {
	to := GetConfigStrings(req.Config, "to")
	subject := GetConfigString(req.Config, "subject")

	if req.Simulation() {
		req.Logf("Would send email to %s with subject %q.", strings.Join(to, ", "), subject)
		return Output{
			"messageId": simulatedOr(req.Config, defaultSimulatedMessageID, "simulatedMessageId"),
			"accepted":  to,
		}, nil
	}

	smtp := SMTPConfig{
		Host:   GetConfigString(req.Config, "host"),
		Port:   GetConfigInt(req.Config, "port"),
		Secure: GetConfigBool(req.Config, "secure", false),
		User:   GetConfigString(req.Config, "user"),
		Pass:   GetConfigString(req.Config, "pass"),
	}

	var missing []string
	for name, empty := range map[string]bool{
		"host":    smtp.Host == "",
		"port":    smtp.Port == 0,
		"user":    smtp.User == "",
		"pass":    smtp.Pass == "",
		"to":      len(to) == 0,
		"subject": subject == "",
	} {
		if empty {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, invalidConfig(domain.NodeTypeSendEmail, "missing SMTP configuration: %s", strings.Join(missing, ", "))
	}
	if req.Exec == nil || req.Exec.Mail == nil {
		return nil, fmt.Errorf("%w: mailer for %s", ErrProviderNotConfigured, domain.NodeTypeSendEmail)
	}

	from := GetConfigString(req.Config, "from")
	if from == "" {
		from = smtp.User
	}

	req.Logf("Sending email to %s via %s:%d.", strings.Join(to, ", "), smtp.Host, smtp.Port)
	res, err := req.Exec.Mail.Send(ctx, smtp, Email{
		From:     from,
		To:       to,
		Subject:  subject,
		Body:     GetConfigString(req.Config, "body"),
		HTMLBody: GetConfigString(req.Config, "htmlBody"),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, fmt.Errorf("failed to send email: %w", err)
	}
	return Output{"messageId": res.MessageID, "accepted": res.Accepted}, nil
}
