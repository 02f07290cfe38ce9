// Package notify is the best-effort email side channel: the ingestion
// path publishes jobs to a queue and the worker turns them into mail.
// Nothing here may ever fail an attendance write.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Sender delivers one HTML email. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, subject, htmlBody string, recipients []string) error
}

// SMTPSender sends mail through a plain SMTP relay.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender builds a sender. username may be empty for an open relay.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{addr: fmt.Sprintf("%s:%d", host, port), auth: auth, from: from}
}

// Send delivers the message. No recipients is a no-op.
func (s *SMTPSender) Send(_ context.Context, subject, htmlBody string, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(htmlBody)
	return smtp.SendMail(s.addr, s.auth, s.from, recipients, []byte(msg.String()))
}

// LogSender logs instead of sending, for dev environments without a relay.
type LogSender struct{}

// Send logs the message envelope.
func (LogSender) Send(_ context.Context, subject, _ string, recipients []string) error {
	log.Printf("[MAIL] (dev) %q -> %v", subject, recipients)
	return nil
}
