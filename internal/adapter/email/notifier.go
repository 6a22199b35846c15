// Package email delivers review alerts over SMTP.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/Strob0t/MedForge/internal/port/notifier"
)

const providerName = "email"

// SMTPConfig holds the configuration for SMTP connections.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	To       []string
	Password string
}

// Notifier sends plain-text alert mails.
type Notifier struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a new email notifier.
func NewNotifier(cfg SMTPConfig) *Notifier {
	return &Notifier{cfg: cfg, send: smtp.SendMail}
}

func init() {
	notifier.Register(providerName, func(s map[string]string) (notifier.Notifier, error) {
		if s["host"] == "" || s["from"] == "" || s["to"] == "" {
			return nil, notifier.ErrNotConfigured
		}
		port := 587
		if p := s["port"]; p != "" {
			v, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("email: invalid port %q: %w", p, err)
			}
			port = v
		}
		var to []string
		for _, addr := range strings.Split(s["to"], ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				to = append(to, addr)
			}
		}
		return NewNotifier(SMTPConfig{
			Host:     s["host"],
			Port:     port,
			From:     s["from"],
			To:       to,
			Password: s["password"],
		}), nil
	})
}

func (n *Notifier) Name() string { return providerName }

// Send mails the alert to every configured recipient. net/smtp has no context
// support, so ctx is only checked before dialing.
func (n *Notifier) Send(ctx context.Context, a notifier.Notification) error {
	if n.cfg.Host == "" || len(n.cfg.To) == 0 {
		return notifier.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.From, n.cfg.Password, n.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, auth, n.cfg.From, n.cfg.To, n.message(a)); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

func (n *Notifier) message(a notifier.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [MedForge %s] %s\r\n", strings.ToUpper(string(a.Level)), stripNewlines(a.Title))
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(a.Message)
	b.WriteString("\r\n")
	if a.ConsultationID != "" {
		fmt.Fprintf(&b, "\r\nConsultation: %s\r\n", a.ConsultationID)
	}
	if a.Link != "" {
		fmt.Fprintf(&b, "Result: %s\r\n", a.Link)
	}
	return []byte(b.String())
}

// stripNewlines keeps header values on one line.
func stripNewlines(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
