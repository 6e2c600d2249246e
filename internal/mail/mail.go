package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/term"

	appLog "ical2mail/internal/log"
)

// Mailer delivers one rendered digest.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// SMTPConfig is the transport configuration of SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	StartTLS bool
	From     string
	To       []string
}

// SMTPMailer sends one message per recipient, each over its own connection.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer net.Dialer
	now    func() time.Time
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: 30 * time.Second},
		now:    time.Now,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, subject, body string) error {
	if len(m.cfg.To) == 0 {
		return errors.New("mail: no recipients")
	}
	for _, to := range m.cfg.To {
		msg := BuildMessage(m.cfg.From, to, subject, body, m.now(), messageDomain(m.cfg.From))
		if err := m.deliver(ctx, to, msg); err != nil {
			return fmt.Errorf("mail to %s: %w", to, err)
		}
		appLog.Info("mail sent", "to", to, "bytes", len(msg))
	}
	return nil
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	conn, err := m.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if m.cfg.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("server does not support STARTTLS")
		}
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return err
		}
	}
	if m.cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
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
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// BuildMessage renders an RFC 5322 text/plain message.
func BuildMessage(from, to, subject, body string, date time.Time, domain string) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", from)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", date.Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+domain+">")
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	header("Content-Transfer-Encoding", "quoted-printable")
	b.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&b)
	_, _ = qp.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n")))
	_ = qp.Close()
	return b.Bytes()
}

func messageDomain(from string) string {
	if i := strings.LastIndexByte(from, '@'); i >= 0 {
		return strings.Trim(from[i+1:], "> ")
	}
	return "localhost"
}

// Printer is the dry-run Mailer: it writes subject and body to Out.
type Printer struct {
	Out io.Writer
}

func (p Printer) Send(_ context.Context, subject, body string) error {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}

	title := "TITLE: " + subject
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		title = color.New(color.Bold, color.FgCyan).Sprint(title)
	}
	_, err := fmt.Fprintf(out, "%s\n%s\n%s\n", title, strings.Repeat("-", 40), strings.ReplaceAll(body, "\u00a0", " "))
	return err
}
