// Package mailer renders and delivers transactional email. Delivery is
// best-effort: callers log failures and never surface them to end users.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
)

const (
	TemplateVerifyEmail   = "verify_email.html"
	TemplateResetPassword = "reset_password.html"
)

//go:embed templates/*.html
var templateFiles embed.FS

type Message struct {
	Subject   string         `json:"subject"`
	Recipient string         `json:"recipient"`
	Template  string         `json:"template"`
	Vars      map[string]any `json:"vars,omitempty"`
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Renderer executes the embedded HTML templates.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("").Option("missingkey=error").ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

func (r *Renderer) Render(name string, vars map[string]any) (string, error) {
	if r.templates.Lookup(name) == nil {
		return "", fmt.Errorf("unknown mail template %q", name)
	}

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, vars); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func validate(msg Message) error {
	if strings.TrimSpace(msg.Recipient) == "" {
		return fmt.Errorf("mail recipient is required")
	}
	if strings.ContainsAny(msg.Recipient+msg.Subject, "\r\n") {
		return fmt.Errorf("mail headers must not contain line breaks")
	}
	return nil
}

// LogMailer renders messages and logs them instead of delivering. It is used
// when no SMTP server is configured.
type LogMailer struct {
	renderer *Renderer
	logger   *slog.Logger
}

func NewLogMailer(renderer *Renderer, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{renderer: renderer, logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	if _, err := m.renderer.Render(msg.Template, msg.Vars); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "mail not delivered (no SMTP server configured)",
		"recipient", msg.Recipient, "subject", msg.Subject, "template", msg.Template)
	return nil
}
