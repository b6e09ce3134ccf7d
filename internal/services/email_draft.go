package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salesbot/pkg"
	"salesbot/src/llm"
	"salesbot/src/logger"
	"salesbot/src/model"

	"github.com/cloudwego/eino/components/prompt"
)

const (
	EmailDraftNotIdentified = "I couldn't identify which lead you're asking about. Please specify the lead name or ID, for example: 'Draft follow-up email for lead John Doe' or 'Write email for lead ID 132'."
	EmailDraftFailed        = "I encountered an error while generating the email draft. Please try again."
)

// Template categories for drafted emails
const (
	TemplateFollowUp            = "follow_up"
	TemplateProposal            = "proposal"
	TemplateReEngagement        = "re_engagement"
	TemplateMeetingConfirmation = "meeting_confirmation"
	TemplateObjectionHandling   = "objection_handling"
)

var objectionKeywords = []string{"price", "expensive", "cost", "budget", "cheaper", "objection", "concern"}

// Interaction is the most recent activity linked to a lead
type Interaction struct {
	Type   string
	Date   time.Time
	Record pkg.Record
}

// LatestInteraction picks the newest activity across the linked tables
func LatestInteraction(activities map[string][]pkg.Record) *Interaction {
	var latest *Interaction
	for _, table := range ActivityTables {
		for _, rec := range activities[table] {
			t := recordTime(table, rec)
			if latest == nil || t.After(latest.Date) {
				latest = &Interaction{Type: activityTypes[table], Date: t, Record: rec}
			}
		}
	}
	return latest
}

// SelectTemplate applies the first matching rule: objection keywords, then a
// visiting/proposal opportunity, then a scheduled meeting, then a stale or
// missing interaction, and finally the default follow-up
func SelectTemplate(message string, lead pkg.Record, latest *Interaction, staleAfter time.Duration, now time.Time) string {
	text := Normalize(message + " " + lead.String("description"))
	if HasAnyPhrase(text, objectionKeywords...) {
		return TemplateObjectionHandling
	}

	opportunity := strings.ToLower(lead.String("opportunity_status"))
	if strings.Contains(opportunity, "visiting") || strings.Contains(opportunity, "proposal") {
		return TemplateProposal
	}

	if latest != nil && latest.Type == "meeting" && latest.Record.String("start_time") != "" {
		return TemplateMeetingConfirmation
	}

	if latest == nil || latest.Date.IsZero() || now.Sub(latest.Date) > staleAfter {
		return TemplateReEngagement
	}
	return TemplateFollowUp
}

// FallbackEmail is the fixed template body for a category
func FallbackEmail(category, leadName string) *llm.EmailContent {
	switch category {
	case TemplateProposal:
		return &llm.EmailContent{
			Subject: "Proposal for " + leadName,
			Body:    fmt.Sprintf("Dear %s,\n\nThank you for your interest. I've prepared a proposal tailored to your needs.\n\nPlease let me know if you have any questions.\n\nBest regards", leadName),
		}
	case TemplateReEngagement:
		return &llm.EmailContent{
			Subject: "Reconnecting - " + leadName,
			Body:    fmt.Sprintf("Dear %s,\n\nI wanted to reconnect and see if you're still interested in learning more.\n\nI'm here to help whenever you're ready.\n\nBest regards", leadName),
		}
	case TemplateMeetingConfirmation:
		return &llm.EmailContent{
			Subject: "Meeting Confirmation - " + leadName,
			Body:    fmt.Sprintf("Dear %s,\n\nI'm confirming our upcoming meeting. I'm looking forward to our discussion.\n\nBest regards", leadName),
		}
	case TemplateObjectionHandling:
		return &llm.EmailContent{
			Subject: "Addressing your questions - " + leadName,
			Body:    fmt.Sprintf("Dear %s,\n\nI wanted to address the questions you raised. I believe we can find a solution that works for you.\n\nLet's discuss this further.\n\nBest regards", leadName),
		}
	}
	return &llm.EmailContent{
		Subject: "Following up - " + leadName,
		Body:    fmt.Sprintf("Dear %s,\n\nI wanted to follow up on our recent conversation. I'm here to answer any questions you may have.\n\nLooking forward to hearing from you.\n\nBest regards", leadName),
	}
}

// EmailDraft is a generated email for one lead
type EmailDraft struct {
	Template  string
	Subject   string
	Body      string
	LeadID    int64
	LeadName  string
	LeadEmail string
	Generated bool
}

// Payload is the structured document stored on the RetrievalRecord
func (d *EmailDraft) Payload() map[string]any {
	return map[string]any{
		"type":          "email_draft",
		"template_used": d.Template,
		"subject":       d.Subject,
		"body":          d.Body,
		"lead_name":     d.LeadName,
		"lead_email":    d.LeadEmail,
		"lead_id":       d.LeadID,
	}
}

// DraftFromPayload rebuilds a draft from a stored email_draft payload
func DraftFromPayload(payload map[string]any) (*EmailDraft, bool) {
	if payload == nil || payload["type"] != "email_draft" {
		return nil, false
	}
	str := func(k string) string { s, _ := payload[k].(string); return s }
	d := &EmailDraft{
		Template:  str("template_used"),
		Subject:   str("subject"),
		Body:      str("body"),
		LeadName:  str("lead_name"),
		LeadEmail: str("lead_email"),
		LeadID:    pkg.Record{"id": payload["lead_id"]}.ID(),
	}
	return d, d.Subject != "" && d.Body != ""
}

// FormatDraft renders the draft for the admin
func FormatDraft(d *EmailDraft) string {
	return fmt.Sprintf("Email Draft Generated (%s Template)\n\nTo: %s\nSubject: %s\n\nBody:\n%s\n\nNote: This is a draft. Review and edit before sending.",
		Title(d.Template), d.LeadName, d.Subject, d.Body)
}

// EmailDraftService builds drafts from lead context
type EmailDraftService struct {
	leads      *LeadResolver
	gen        llm.Generator
	tpl        prompt.ChatTemplate
	staleAfter time.Duration
	now        func() time.Time
}

// NewEmailDraftService creates the service; gen may be nil for template-only drafts
func NewEmailDraftService(leads *LeadResolver, gen llm.Generator, tuning model.EmailDraftTuning) *EmailDraftService {
	days := tuning.StaleAfterDays
	if days <= 0 {
		days = 14
	}
	return &EmailDraftService{
		leads:      leads,
		gen:        gen,
		tpl:        llm.NewEmailDraftTemplate(),
		staleAfter: time.Duration(days) * 24 * time.Hour,
		now:        time.Now,
	}
}

// Draft resolves the lead, picks a template and generates the email
func (s *EmailDraftService) Draft(ctx context.Context, identifier, message string) (*EmailDraft, error) {
	lead, err := s.leads.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	activities, err := s.leads.Activities(ctx, lead.ID())
	if err != nil {
		return nil, err
	}
	latest := LatestInteraction(activities)
	category := SelectTemplate(message, lead, latest, s.staleAfter, s.now().UTC())

	name := defaultText(lead.String("name"), "there")
	draft := &EmailDraft{
		Template:  category,
		LeadID:    lead.ID(),
		LeadName:  name,
		LeadEmail: lead.String("email"),
	}

	content, err := s.generate(ctx, category, lead, latest, message)
	if err != nil {
		logger.Warn().Err(err).Int64("lead_id", lead.ID()).Str("template", category).
			Msg("⚠️ Email draft generation failed, using template")
		content = FallbackEmail(category, name)
	} else {
		draft.Generated = true
	}
	draft.Subject, draft.Body = content.Subject, content.Body
	return draft, nil
}

func (s *EmailDraftService) generate(ctx context.Context, category string, lead pkg.Record, latest *Interaction, message string) (*llm.EmailContent, error) {
	if s.gen == nil {
		return nil, fmt.Errorf("no chat model configured")
	}
	interaction := "none"
	if latest != nil {
		interaction = fmt.Sprintf("%s on %s: %s", latest.Type, latest.Date.Format("2006-01-02"), describe(latest.Type+"s", latest.Record))
	}
	msgs, err := llm.Render(ctx, s.tpl, map[string]any{
		"template":           category,
		"lead_name":          defaultText(lead.String("name"), "there"),
		"lead_status":        defaultText(lead.String("lead_status"), "N/A"),
		"opportunity_status": defaultText(lead.String("opportunity_status"), "N/A"),
		"latest_interaction": interaction,
		"question":           message,
	})
	if err != nil {
		return nil, err
	}
	reply, err := s.gen.Generate(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return llm.ParseEmailDraft(reply.Content)
}
