package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/candidate"
	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"go.uber.org/zap"
)

// SMTPNotifier sends review requests through an SMTP relay, one connection
// per message.
type SMTPNotifier struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	To            string
	SubjectPrefix string
	StartTLS      bool
	Timeout       time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

func (n *SMTPNotifier) Notify(ctx context.Context, c candidate.Candidate) (Receipt, error) {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	msg := Compose(n.From, n.To, n.SubjectPrefix, c, now().UTC())
	if err := n.send(ctx, msg); err != nil {
		return Receipt{}, failure.Transient("smtp send", err)
	}
	if n.Logger != nil {
		n.Logger.Info("review request sent",
			zap.String("hash", c.ContentHash),
			zap.String("message_id", msg.MessageID),
			zap.String("to", n.To))
	}
	return Receipt{MessageID: msg.MessageID, SentAt: msg.Date}, nil
}

func (n *SMTPNotifier) send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if n.Port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: n.Host})
	}
	client, err := smtp.NewClient(conn, n.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if n.StartTLS && n.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return errors.New("server does not offer STARTTLS")
		}
		if err := client.StartTLS(&tls.Config{ServerName: n.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if n.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", n.Username, n.Password, n.Host)); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}
	if err := client.Mail(envelope(msg.From)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(envelope(msg.To)); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg.Bytes()); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return client.Quit()
}

// envelope strips a display name: "Agent <a@x.org>" -> "a@x.org".
func envelope(addr string) string {
	if a, err := mail.ParseAddress(addr); err == nil {
		return a.Address
	}
	return addr
}
