package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"regexp"
	"strconv"
	"strings"
	"time"

	"salesbot/internal/storage"
	"salesbot/pkg"
	"salesbot/src/llm"
	"salesbot/src/logger"
	"salesbot/src/model"

	"github.com/go-playground/validator/v10"
)

const (
	SendEmailNotIdentified = "I couldn't identify which lead you want to send the email to. Please draft an email first or mention the lead's name."
	SendEmailFailed        = "I encountered an error while sending the email. Please try again."
)

var validate = validator.New()

// Mailer delivers one message
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends through an SMTP relay using STARTTLS and plain auth
type SMTPMailer struct {
	cfg model.SMTPConfig
}

// NewSMTPMailer creates a mailer; configuration is checked on each send
func NewSMTPMailer(cfg model.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// From is the sender header value
func (m *SMTPMailer) From() string {
	if m.cfg.FromName == "" {
		return m.cfg.Username
	}
	return fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.Username)
}

// Send implements Mailer
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.cfg.Host == "" || m.cfg.Username == "" || m.cfg.Password == "" {
		return pkg.NewValidationError("SMTP configuration incomplete. Please set SMTP_HOST, SMTP_USERNAME and SMTP_PASSWORD")
	}

	timeout := m.cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return pkg.NewUpstreamError("smtp dial", err)
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return pkg.NewUpstreamError("smtp handshake", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return pkg.NewUpstreamError("smtp starttls", err)
		}
	}
	if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(m.cfg.Username); err != nil {
		return fmt.Errorf("SMTP sender rejected: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP recipient rejected: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP data failed: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(m.From(), to, subject, body))); err != nil {
		w.Close()
		return fmt.Errorf("SMTP write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("SMTP message rejected: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) string {
	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + strings.ReplaceAll(subject, "\n", " "),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"Date: " + time.Now().Format(time.RFC1123Z),
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + strings.ReplaceAll(body, "\n", "\r\n")
}

// SendRequest is what the send branch knows about the email to deliver
type SendRequest struct {
	Message    string
	Draft      *EmailDraft
	Identifier string
}

// SendResult is the outcome of one send attempt
type SendResult struct {
	LeadID   int64
	LeadName string
	To       string
	Subject  string
	Sent     bool
	Reason   string
}

// Payload is the structured document stored on the RetrievalRecord
func (r *SendResult) Payload() map[string]any {
	return map[string]any{
		"type":      "send_email",
		"lead_id":   r.LeadID,
		"lead_name": r.LeadName,
		"to":        r.To,
		"subject":   r.Subject,
		"sent":      r.Sent,
		"reason":    r.Reason,
	}
}

// Response is the reply shown to the admin
func (r *SendResult) Response() string {
	if r.Sent {
		return fmt.Sprintf("Email successfully sent to %s (%s)", r.LeadName, r.To)
	}
	return fmt.Sprintf("Failed to send email to %s. Reason: %s", r.LeadName, r.Reason)
}

// EmailSendService picks the email content, delivers it and records it in the CRM
type EmailSendService struct {
	leads  *LeadResolver
	mailer Mailer
	store  storage.CRMStore
	from   string
	now    func() time.Time
}

// NewEmailSendService creates the service
func NewEmailSendService(leads *LeadResolver, mailer Mailer, store storage.CRMStore, from string) *EmailSendService {
	return &EmailSendService{leads: leads, mailer: mailer, store: store, from: from, now: time.Now}
}

// Send resolves the lead and content, then delivers. Delivery failures are
// returned as an unsent result, lookups that fail return an error.
func (s *EmailSendService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	var (
		lead    pkg.Record
		content *llm.EmailContent
		err     error
	)

	switch {
	case req.Draft != nil && req.Draft.LeadID != 0:
		lead, err = s.leads.Resolve(ctx, strconv.FormatInt(req.Draft.LeadID, 10))
		content = &llm.EmailContent{Subject: req.Draft.Subject, Body: req.Draft.Body}
	case req.Draft != nil && req.Identifier != "":
		lead, err = s.leads.Resolve(ctx, req.Identifier)
		content = &llm.EmailContent{Subject: req.Draft.Subject, Body: req.Draft.Body}
	case req.Identifier != "":
		lead, err = s.leads.Resolve(ctx, req.Identifier)
		if err == nil {
			content = TemplateEmail(SelectSendTemplate(req.Message), defaultText(lead.String("name"), "there"))
		}
	default:
		return nil, pkg.NewNotFoundError("email recipient")
	}
	if err != nil {
		return nil, err
	}

	name := defaultText(lead.String("name"), "Unknown")
	result := &SendResult{LeadID: lead.ID(), LeadName: name, Subject: content.Subject}

	to := strings.TrimSpace(lead.String("email"))
	if reason := validateEmail(name, to, content); reason != "" {
		result.To, result.Reason = to, reason
		return result, nil
	}
	result.To = to

	if err := s.mailer.Send(ctx, to, content.Subject, content.Body); err != nil {
		logger.Error().Err(err).Str("to", to).Msg("❌ Email delivery failed")
		result.Reason = err.Error()
		return result, nil
	}
	result.Sent = true
	logger.Info().Str("to", to).Int64("lead_id", lead.ID()).Msg("📧 Email sent")

	if _, err := s.store.Create(ctx, "emails", pkg.Record{
		"to":         to,
		"from":       s.from,
		"subject":    content.Subject,
		"body":       content.Body,
		"lead_id":    lead.ID(),
		"created_at": s.now().UTC().Format(time.RFC3339),
	}); err != nil {
		logger.Warn().Err(err).Int64("lead_id", lead.ID()).Msg("⚠️ Sent email could not be recorded")
	}
	return result, nil
}

func validateEmail(name, to string, content *llm.EmailContent) string {
	switch {
	case strings.TrimSpace(content.Subject) == "":
		return "Email subject cannot be empty"
	case strings.TrimSpace(content.Body) == "":
		return "Email body cannot be empty"
	case to == "":
		return fmt.Sprintf("Lead %s does not have an email address", name)
	case validate.Var(to, "required,email") != nil:
		return "Invalid email address: " + to
	}
	return ""
}

// Send templates used when no draft exists
const (
	SendTemplateIntroduction = "introduction"
	SendTemplateFollowup     = "followup"
	SendTemplateReminder     = "reminder"
)

var (
	followupWords = regexp.MustCompile(`\b(?:follow|demo|after)\b`)
	reminderWords = regexp.MustCompile(`\b(?:remind|reminder|meeting|schedule)\b`)
)

// SelectSendTemplate picks a template from the message keywords
func SelectSendTemplate(message string) string {
	text := Normalize(message)
	switch {
	case reminderWords.MatchString(text):
		return SendTemplateReminder
	case followupWords.MatchString(text):
		return SendTemplateFollowup
	}
	return SendTemplateIntroduction
}

// TemplateEmail is the fixed email for a send template
func TemplateEmail(kind, leadName string) *llm.EmailContent {
	switch kind {
	case SendTemplateFollowup:
		return &llm.EmailContent{
			Subject: "Follow-up After Demo – " + leadName,
			Body:    fmt.Sprintf("Hi %s,\n\nThank you for attending the demo. I hope it gave you a clear picture of how we can help.\n\nPlease let me know if you have any questions or would like to discuss next steps.\n\nBest regards", leadName),
		}
	case SendTemplateReminder:
		return &llm.EmailContent{
			Subject: "Meeting Reminder – " + leadName,
			Body:    fmt.Sprintf("Hi %s,\n\nThis is a friendly reminder about our upcoming meeting. Please let me know if the time still works for you.\n\nBest regards", leadName),
		}
	}
	return &llm.EmailContent{
		Subject: "Introduction – " + leadName,
		Body:    fmt.Sprintf("Hi %s,\n\nI wanted to introduce myself and our programs. I'd be glad to share more details whenever it suits you.\n\nBest regards", leadName),
	}
}
