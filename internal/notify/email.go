package notify

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"

	"github.com/JACKYCCK126/voiceclear-docker/internal/config"
)

// EmailTransport delivers notifications to the operator over an SMTP relay.
type EmailTransport struct {
	dialer *gomail.Dialer
	from   string
	to     []string
}

// NewEmailTransport creates an SMTP transport from config. The caller is
// expected to have checked cfg.Configured() first.
func NewEmailTransport(cfg config.EmailConfig) *EmailTransport {
	return &EmailTransport{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		to:     cfg.To,
	}
}

// Name implements Transport.
func (t *EmailTransport) Name() string {
	return "email"
}

// Deliver sends the notification as a plain-text email.
func (t *EmailTransport) Deliver(n Notification) error {
	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", t.to...)
	m.SetHeader("Subject", fmt.Sprintf("[VoiceClear %s] %s", strings.ToUpper(string(n.Severity)), n.Title))
	m.SetBody("text/plain", formatEmailBody(n))

	if err := t.dialer.DialAndSend(m); err != nil {
		return errors.Wrap(err, "smtp send failed")
	}
	return nil
}

func formatEmailBody(n Notification) string {
	var b strings.Builder
	b.WriteString(n.Body)
	b.WriteString("\n")

	for _, f := range n.Fields {
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value)
	}

	return b.String()
}
