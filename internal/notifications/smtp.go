package notifications

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
)

// SMTPMailer delivers messages through a plain SMTP relay. Each message is
// sent as multipart/alternative with a text and an HTML part, mirroring what
// most transactional mail services expect.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string

	// send allows tests to intercept the wire call.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer constructs a mailer for the given relay. Username may be
// empty for unauthenticated relays (e.g. a local debug server).
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
		send: smtp.SendMail,
	}
}

// Send delivers the message, honoring context cancellation before the dial.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("smtp: recipient is required")
	}

	body := m.encode(msg)
	if err := m.send(m.addr, m.auth, m.from, []string{msg.To}, body); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

const mimeBoundary = "videoflix-alt-boundary"

func (m *SMTPMailer) encode(msg Message) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", mimeBoundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.PlainBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(msg.HTMLBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)

	return []byte(b.String())
}

var _ Mailer = (*SMTPMailer)(nil)
