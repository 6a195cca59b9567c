// Package mail renders and dispatches the transactional emails backing
// account flows and appointment reminders.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Sender
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// LogSender writes emails to the structured log instead of delivering them.
// It is the default sender in development and single-node deployments without
// an SMTP relay.
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender creates a sender backed by the given logger.
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.log.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("email dispatched")
	return nil
}

// ---------------------------------------------------------------------------
// Template engine
// ---------------------------------------------------------------------------

// Template is a reusable email template with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages email templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// Built-in template IDs.
const (
	TemplateVerifyEmail         = "verify-email"
	TemplateResetPassword       = "reset-password"
	TemplateAppointmentReminder = "appointment-reminder"
)

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateVerifyEmail,
			Name:    "Verify Email",
			Subject: "Verify your HolisticConnect email address",
			Body:    "Hi {{name}},\n\nWelcome to HolisticConnect. Please confirm your email address by opening the link below:\n\n{{link}}\n\nThe link expires in one hour. If you did not create an account, you can ignore this email.",
		},
		{
			ID:      TemplateResetPassword,
			Name:    "Reset Password",
			Subject: "Reset your HolisticConnect password",
			Body:    "Hi {{name}},\n\nWe received a request to reset your password. Open the link below to choose a new one:\n\n{{link}}\n\nThe link expires in one hour. If you did not request a reset, your password is unchanged and no action is needed.",
		},
		{
			ID:      TemplateAppointmentReminder,
			Name:    "Appointment Reminder",
			Subject: "Reminder: your appointment on {{date}}",
			Body:    "Hi {{name}},\n\nThis is a reminder of your appointment with {{practitioner}} on {{date}} at {{time}}.\n\nIf you need to reschedule or cancel, please do so from your dashboard.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Mailer
// ---------------------------------------------------------------------------

// Mailer renders the built-in templates and dispatches them through the
// configured sender. Action links are hosted on the auth domain with mode and
// oobCode parameters.
type Mailer struct {
	sender     EmailSender
	templates  *TemplateEngine
	authDomain string
}

// NewMailer creates a Mailer. authDomain is the host that serves action
// links, without scheme.
func NewMailer(sender EmailSender, templates *TemplateEngine, authDomain string) *Mailer {
	return &Mailer{
		sender:     sender,
		templates:  templates,
		authDomain: authDomain,
	}
}

func (m *Mailer) actionLink(mode, token string) string {
	q := url.Values{"mode": {mode}, "oobCode": {token}}
	return "https://" + m.authDomain + "/auth/action?" + q.Encode()
}

func greetingName(displayName, email string) string {
	if displayName != "" {
		return displayName
	}
	return email
}

func (m *Mailer) sendTemplate(ctx context.Context, templateID, to string, data map[string]string) error {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", templateID, err)
	}
	if err := m.sender.SendEmail(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send %s: %w", templateID, err)
	}
	return nil
}

// SendVerificationEmail mails a verify-email action link carrying token.
func (m *Mailer) SendVerificationEmail(ctx context.Context, email, displayName, token string) error {
	return m.sendTemplate(ctx, TemplateVerifyEmail, email, map[string]string{
		"name": greetingName(displayName, email),
		"link": m.actionLink("verifyEmail", token),
	})
}

// SendPasswordResetEmail mails a reset-password action link carrying token.
func (m *Mailer) SendPasswordResetEmail(ctx context.Context, email, displayName, token string) error {
	return m.sendTemplate(ctx, TemplateResetPassword, email, map[string]string{
		"name": greetingName(displayName, email),
		"link": m.actionLink("resetPassword", token),
	})
}

// SendAppointmentReminder mails an upcoming-appointment reminder.
func (m *Mailer) SendAppointmentReminder(ctx context.Context, email, displayName, practitionerName string, startTime time.Time) error {
	start := startTime.UTC()
	return m.sendTemplate(ctx, TemplateAppointmentReminder, email, map[string]string{
		"name":         greetingName(displayName, email),
		"practitioner": practitionerName,
		"date":         start.Format("Monday, January 2, 2006"),
		"time":         start.Format("15:04 UTC"),
	})
}

// ---------------------------------------------------------------------------
// Mock sender (test double)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
