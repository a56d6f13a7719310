package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/cenkalti/backoff/v5"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"fastap/internal/core/port"
	"fastap/internal/core/telemetry"
	"fastap/pkg/config"
)

const (
	KindConfirmation = "confirmation"
	KindRecovery     = "recovery"

	defaultMaxTries = 3
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/layout.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/layout.txt"))
)

// Sender delivers built messages. *gomail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

type message struct {
	Subject  string
	Title    string
	Username string
	Intro    string
	Action   string
	Link     string
	Outro    string
}

type SMTPMailer struct {
	sender   Sender
	from     string
	metrics  *telemetry.AppMetrics
	backOff  func() backoff.BackOff
	maxTries uint
}

type Option func(*SMTPMailer)

func WithMetrics(metrics *telemetry.AppMetrics) Option {
	return func(m *SMTPMailer) {
		m.metrics = metrics
	}
}

// WithBackOff replaces the exponential back off between delivery attempts.
func WithBackOff(newBackOff func() backoff.BackOff, maxTries uint) Option {
	return func(m *SMTPMailer) {
		m.backOff = newBackOff
		m.maxTries = maxTries
	}
}

func NewSMTPMailer(sender Sender, from string, opts ...Option) *SMTPMailer {
	m := &SMTPMailer{
		sender: sender,
		from:   from,
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			return b
		},
		maxTries: defaultMaxTries,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// NewClient builds the go-mail client for cfg.
func NewClient(cfg config.SMTPConfig) (*gomail.Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is not set")
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(10 * time.Second),
	}

	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	switch {
	case cfg.TLS && cfg.Port == 465:
		opts = append(opts, gomail.WithSSLPort(false))
	case cfg.TLS:
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	return gomail.NewClient(cfg.Host, opts...)
}

var _ port.Mailer = (*SMTPMailer)(nil)

func (m *SMTPMailer) SendConfirmation(ctx context.Context, email, username, link string) error {
	return m.send(ctx, KindConfirmation, email, message{
		Subject:  "Confirma tu cuenta | FasTap",
		Title:    "Confirma tu cuenta",
		Username: username,
		Intro:    "Gracias por crear una cuenta en FasTap. Por favor, confirma tu dirección de correo electrónico haciendo clic en el enlace siguiente:",
		Action:   "Confirmar Cuenta",
		Link:     link,
		Outro:    "Si no solicitaste esta cuenta, puedes ignorar este correo.",
	})
}

func (m *SMTPMailer) SendRecovery(ctx context.Context, email, username, link string) error {
	return m.send(ctx, KindRecovery, email, message{
		Subject:  "Recuperación de contraseña | FasTap",
		Title:    "Recuperación de contraseña",
		Username: username,
		Intro:    "Hemos recibido una solicitud para restablecer tu contraseña. Usa el siguiente enlace para restablecer tu contraseña:",
		Action:   "Restablecer Contraseña",
		Link:     link,
		Outro:    "Si no solicitaste un restablecimiento de contraseña, por favor ignora este correo. Tu contraseña permanecerá segura.",
	})
}

func (m *SMTPMailer) send(ctx context.Context, kind, to string, content message) error {
	msg, err := m.build(to, content)

	if err != nil {
		m.record(ctx, kind, "invalid")
		return err
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, m.sender.DialAndSendWithContext(ctx, msg)
	}, backoff.WithBackOff(m.backOff()), backoff.WithMaxTries(m.maxTries))

	if err != nil {
		zap.L().Error("mail delivery failed",
			zap.String("kind", kind),
			zap.Error(err))
		m.record(ctx, kind, "failed")
		return fmt.Errorf("send %s mail: %w", kind, err)
	}

	m.record(ctx, kind, "sent")
	return nil
}

func (m *SMTPMailer) build(to string, content message) (*gomail.Msg, error) {
	msg := gomail.NewMsg()

	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}

	msg.Subject(content.Subject)

	var text bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, "layout", content); err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, "layout", content); err != nil {
		return nil, err
	}

	msg.SetBodyString(gomail.TypeTextPlain, text.String())
	msg.AddAlternativeString(gomail.TypeTextHTML, html.String())

	return msg, nil
}

func (m *SMTPMailer) record(ctx context.Context, kind, outcome string) {
	if m.metrics != nil {
		m.metrics.RecordMailDelivery(ctx, kind, outcome)
	}
}

// LogMailer writes links to the log instead of sending them. It is used
// when no SMTP host is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.L()
	}

	return &LogMailer{logger: logger}
}

var _ port.Mailer = (*LogMailer)(nil)

func (l *LogMailer) SendConfirmation(_ context.Context, email, username, link string) error {
	l.logger.Info("confirmation mail", zap.String("email", email), zap.String("username", username), zap.String("link", link))
	return nil
}

func (l *LogMailer) SendRecovery(_ context.Context, email, username, link string) error {
	l.logger.Info("recovery mail", zap.String("email", email), zap.String("username", username), zap.String("link", link))
	return nil
}
