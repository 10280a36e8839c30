// Package mail renders the account emails and delivers them over SMTP.
package mail

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const (
	TemplateVerifyEmail   = "verify_email.html"
	TemplateResetPassword = "reset_password.html"
)

//go:embed templates/*.html
var templateFS embed.FS

var ErrUnknownTemplate = errors.New("unknown mail template")

// Message is one outgoing email. Data is passed to the named template.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]any
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	From          string        `yaml:"from"`
	FromName      string        `yaml:"from_name"`
	StartTLS      bool          `yaml:"starttls"`
	SSL           bool          `yaml:"ssl"`
	ValidateCerts bool          `yaml:"validate_certs"`
	Timeout       time.Duration `yaml:"timeout"`
}

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// SMTPSender opens one SMTP connection per message.
type SMTPSender struct {
	cfg Config
	tpl *template.Template
}

func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail: host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: from address is required")
	}
	tpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &SMTPSender{cfg: cfg, tpl: tpl}, nil
}

func (s *SMTPSender) build(msg Message) (*gomail.Msg, error) {
	t := s.tpl.Lookup(msg.Template)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, msg.Template)
	}
	m := gomail.NewMsg()
	var err error
	if s.cfg.FromName != "" {
		err = m.FromFormat(s.cfg.FromName, s.cfg.From)
	} else {
		err = m.From(s.cfg.From)
	}
	if err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetMessageIDWithValue(uuid.NewString() + "@" + domainOf(s.cfg.From))
	m.SetDate()
	if err := m.SetBodyHTMLTemplate(t, msg.Data); err != nil {
		return nil, fmt.Errorf("render %s: %w", msg.Template, err)
	}
	return m, nil
}

func (s *SMTPSender) client() (*gomail.Client, error) {
	var opts []gomail.Option
	if s.cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(s.cfg.Port))
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(s.cfg.Timeout))
	}
	switch {
	case s.cfg.SSL:
		opts = append(opts, gomail.WithSSL())
	case s.cfg.StartTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	c, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, err
	}
	if !s.cfg.ValidateCerts && (s.cfg.SSL || s.cfg.StartTLS) {
		if err := c.SetTLSConfig(insecureTLS(s.cfg.Host)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Send renders msg and delivers it.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}
	c, err := s.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender only logs messages. Used when no SMTP host is configured.
type LogSender struct {
	logger *zap.SugaredLogger
	tpl    *template.Template
}

func NewLogSender(logger *zap.SugaredLogger) (*LogSender, error) {
	tpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &LogSender{logger: logger, tpl: tpl}, nil
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	t := s.tpl.Lookup(msg.Template)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, msg.Template)
	}
	var body strings.Builder
	if err := t.Execute(&body, msg.Data); err != nil {
		return fmt.Errorf("render %s: %w", msg.Template, err)
	}
	s.logger.Infow("mail not sent, smtp disabled", "to", msg.To, "subject", msg.Subject, "body", body.String())
	return nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
