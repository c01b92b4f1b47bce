package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

type SMTPConfig struct {
	Addr     string
	From     string
	Username string
	Password string
}

// SMTPNotifier sends the user confirmation as a plain-text email.
type SMTPNotifier struct {
	cfg  SMTPConfig
	host string
	auth smtp.Auth
	log  *zap.Logger
}

func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) (*SMTPNotifier, error) {
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_ADDR %q: %w", cfg.Addr, err)
	}

	n := &SMTPNotifier{cfg: cfg, host: host, log: logger}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return n, nil
}

func (n *SMTPNotifier) NotifyOrderConfirmed(ctx context.Context, msg domain.ConfirmationMessage) error {
	if msg.UserEmail == "" {
		return fmt.Errorf("order %s has no recipient", msg.OrderID)
	}

	rendered := RenderConfirmation(msg)
	body := buildMessage(n.cfg.From, msg.UserEmail, rendered, time.Now())

	if err := n.send(ctx, msg.UserEmail, body); err != nil {
		return domain.Transient("send confirmation email", err)
	}

	n.log.Info("confirmation_email_sent",
		zap.String("order_id", msg.OrderID),
		zap.String("user_email", msg.UserEmail),
	)
	return nil
}

func (n *SMTPNotifier) send(ctx context.Context, to string, body []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", n.cfg.Addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.host}); err != nil {
			return err
		}
	}
	if n.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(n.auth); err != nil {
				return err
			}
		}
	}

	if err := c.Mail(n.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to string, r Rendered, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", r.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(r.Text, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
