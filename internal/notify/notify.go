package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/projectvak/contract-pipeline/internal/common"
)

const defaultSMTPHost = "smtp.gmail.com"

// Notifier delivers one plain-text message per terminal document outcome.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// New returns an SMTP notifier when credentials and recipients are
// configured and a log-only notifier otherwise.
func New(cfg common.NotifyConfig, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Username == "" || len(cfg.To) == 0 {
		logger.Info("notify.disabled", "reason", "no sender or recipients configured")
		return &LogNotifier{logger: logger}
	}
	return NewSMTPNotifier(cfg, logger)
}

// LogNotifier writes the subject to the log and drops the body.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, subject, body string) error {
	n.logger.Info("notify.logged", "subject", subject, "body_chars", common.CharLen(body))
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends through an SMTP relay. smtp.SendMail upgrades with
// STARTTLS whenever the server offers it.
type SMTPNotifier struct {
	addr   string
	host   string
	auth   smtp.Auth
	from   string
	to     []string
	send   sendFunc
	now    func() time.Time
	logger *slog.Logger
}

func NewSMTPNotifier(cfg common.NotifyConfig, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	host := cfg.SMTPHost
	if host == "" {
		host = defaultSMTPHost
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPNotifier{
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		host:   host,
		auth:   smtp.PlainAuth("", cfg.Username, cfg.Password, host),
		from:   from,
		to:     cfg.To,
		send:   smtp.SendMail,
		now:    time.Now,
		logger: logger,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := n.compose(subject, body)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := n.send(n.addr, n.auth, n.from, n.to, msg); err != nil {
		n.logger.Error("notify.smtp.failed", "addr", n.addr, "subject", subject, "error", err)
		return fmt.Errorf("send mail: %w", err)
	}
	n.logger.Info("notify.smtp.sent",
		"subject", subject, "recipients", len(n.to), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (n *SMTPNotifier) compose(subject, body string) ([]byte, error) {
	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	header("From", n.from)
	header("To", strings.Join(n.to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", n.now().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), n.host))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	b.WriteString("\r\n")

	w := quotedprintable.NewWriter(&b)
	if _, err := w.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n"))); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
