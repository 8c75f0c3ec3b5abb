// Package mail delivers outbound notification mail over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

// Mailer sends an HTML message. Callers treat delivery as fire-and-forget.
type Mailer interface {
	Send(ctx context.Context, to, subject, bodyHTML string) error
}

// SMTPMailer talks plain SMTP to a relay such as MailHog. No auth is used
// when the relay does not require it.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPMailer(addr, from string, auth smtp.Auth) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from, auth: auth}
}

// Send delivers the message on the calling goroutine. The connection carries
// the ctx deadline and is closed when ctx is cancelled, so a stalled relay
// cannot hold the call past ctx.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, bodyHTML string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: mail: %w", common.ErrorDependency, err)
	}
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("%w: mail: invalid recipient", common.ErrorDependency)
	}

	err := m.send(ctx, to, buildMessage(m.from, to, subject, bodyHTML))
	if err != nil {
		// the socket deadline can fire just ahead of ctx itself
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			err = context.DeadlineExceeded
		} else if cerr := ctx.Err(); cerr != nil {
			err = cerr
		}
		return fmt.Errorf("%w: mail: %w", common.ErrorDependency, err)
	}
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, to string, msg []byte) error {
	host, _, err := net.SplitHostPort(m.addr)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				return err
			}
		}
	}

	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return c.Quit()
}

func buildMessage(from, to, subject, bodyHTML string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(bodyHTML)
	return b.Bytes()
}

// ResetSubject is the subject line of the password reset mail.
const ResetSubject = "Reset your password"

// ResetBody returns the HTML body linking to the frontend reset page.
func ResetBody(frontendURL, token string) string {
	url := strings.TrimRight(frontendURL, "/") + "/reset/" + token
	return fmt.Sprintf(`Click <a href="%s">here</a> to reset password`, url)
}
