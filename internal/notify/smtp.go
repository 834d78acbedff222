package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/forgeworks/campaignforge/internal/config"
	"github.com/forgeworks/campaignforge/pkg/models"
)

// SMTPNotifier sends completion mail over SMTP with STARTTLS.
type SMTPNotifier struct {
	cfg config.SMTPConfig
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) Notify(ctx context.Context, job *models.Job, outcome Outcome) error {
	if n.cfg.Username == "" || n.cfg.Password == "" {
		return ErrNotConfigured
	}
	if job.NotifyEmail == "" {
		return fmt.Errorf("%w: job has no notify address", ErrNotConfigured)
	}

	msg := BuildMessage(n.cfg.From, job, outcome)

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	d := net.Dialer{Timeout: n.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrSendFailed, addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: handshake: %v", ErrSendFailed, err)
	}
	defer c.Close()

	if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
		return fmt.Errorf("%w: starttls: %v", ErrSendFailed, err)
	}
	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("%w: auth: %v", ErrSendFailed, err)
	}
	if err := c.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("%w: mail from: %v", ErrSendFailed, err)
	}
	if err := c.Rcpt(job.NotifyEmail); err != nil {
		return fmt.Errorf("%w: rcpt to: %v", ErrSendFailed, err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("%w: data: %v", ErrSendFailed, err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("%w: write body: %v", ErrSendFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close body: %v", ErrSendFailed, err)
	}
	return c.Quit()
}

// BuildMessage renders the RFC 5322 message for a job outcome.
func BuildMessage(from string, job *models.Job, outcome Outcome) string {
	var b strings.Builder
	if outcome.Succeeded() {
		fmt.Fprintf(&b, "Subject: Your campaign suggestions for %s are ready\r\n", job.Company)
	} else {
		fmt.Fprintf(&b, "Subject: Campaign suggestions for %s could not be generated\r\n", job.Company)
	}
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", job.NotifyEmail)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	if outcome.Succeeded() {
		fmt.Fprintf(&b, "Your campaign suggestions for %s are ready. Please check your dashboard.\r\n", job.Company)
		fmt.Fprintf(&b, "Suggestion set: %s\r\n", outcome.SuggestionSetID)
	} else {
		fmt.Fprintf(&b, "We could not generate campaign suggestions for %s.\r\n", job.Company)
		fmt.Fprintf(&b, "Reason: %s (%s)\r\n", outcome.ErrorMessage, outcome.ErrorClass)
	}
	b.WriteString("Thank you!\r\n")
	return b.String()
}

var _ Notifier = (*SMTPNotifier)(nil)
