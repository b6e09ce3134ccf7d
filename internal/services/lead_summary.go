package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"salesbot/pkg"
	"salesbot/src/llm"
	"salesbot/src/logger"

	"github.com/cloudwego/eino/components/prompt"
)

const (
	LeadSummaryNotIdentified = "I couldn't identify which lead you're asking about. Please specify the lead name or ID, for example: 'Give me full summary of lead John Doe' or 'Show activity summary for lead ID 132'."
	LeadSummaryFailed        = "I encountered an error while fetching the lead activity summary. Please try again."

	timelineLimit = 10
)

// TimelineEntry is one activity in a lead's merged history
type TimelineEntry struct {
	Type    string    `json:"type"`
	Date    time.Time `json:"date"`
	Summary string    `json:"summary"`
}

// timestampFields lists, per activity table, the field that dates a record
var timestampFields = map[string][]string{
	"calls":    {"time", "created_at"},
	"emails":   {"created_at"},
	"meetings": {"start_time", "created_at"},
	"notes":    {"created_at"},
}

var activityTypes = map[string]string{
	"calls":    "call",
	"emails":   "email",
	"meetings": "meeting",
	"notes":    "note",
}

func recordTime(table string, rec pkg.Record) time.Time {
	for _, field := range timestampFields[table] {
		if t, ok := ParseTime(rec[field]); ok {
			return t
		}
	}
	return time.Time{}
}

func describe(table string, rec pkg.Record) string {
	switch table {
	case "calls":
		return fmt.Sprintf("%s call - %s", Title(defaultText(rec.String("direction"), "unknown")), defaultText(rec.String("status"), "unknown"))
	case "emails":
		return "Email: " + Truncate(defaultText(rec.String("subject"), "No subject"), 50)
	case "meetings":
		name := defaultText(rec.String("meeting_name"), "Meeting")
		if loc := rec.String("location"); loc != "" {
			return name + " - " + loc
		}
		return name
	case "notes":
		if content := rec.String("content"); content != "" {
			return Truncate(content, 60)
		}
		return "Note"
	}
	return table
}

func defaultText(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// BuildTimeline merges activity tables into one list, most recent first
func BuildTimeline(activities map[string][]pkg.Record, limit int) []TimelineEntry {
	var entries []TimelineEntry
	for _, table := range ActivityTables {
		for _, rec := range activities[table] {
			entries = append(entries, TimelineEntry{
				Type:    activityTypes[table],
				Date:    recordTime(table, rec),
				Summary: describe(table, rec),
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// LeadSummary is a lead profile with its activity counts and recent history
type LeadSummary struct {
	Lead           pkg.Record
	ActivityCounts map[string]int
	RecentActivity []TimelineEntry
}

// TotalActivity is the number of linked activity records
func (s *LeadSummary) TotalActivity() int {
	total := 0
	for _, n := range s.ActivityCounts {
		total += n
	}
	return total
}

// Payload is the structured document stored on the RetrievalRecord
func (s *LeadSummary) Payload() map[string]any {
	lead := s.Lead
	return map[string]any{
		"lead": map[string]any{
			"id":         lead.ID(),
			"name":       lead["name"],
			"status":     lead["lead_status"],
			"stage":      lead["lead_stage"],
			"source":     lead["lead_source"],
			"owner":      lead["lead_owner"],
			"email":      lead["email"],
			"phone":      lead["phone"],
			"created_at": lead["created_at"],
			"updated_at": lead["updated_at"],
		},
		"activity_counts": s.ActivityCounts,
		"recent_activity": s.RecentActivity,
	}
}

// LeadSummaryService resolves a lead and writes its activity summary
type LeadSummaryService struct {
	leads *LeadResolver
	gen   llm.Generator
	tpl   prompt.ChatTemplate
}

// NewLeadSummaryService creates the service; gen may be nil for template-only output
func NewLeadSummaryService(leads *LeadResolver, gen llm.Generator) *LeadSummaryService {
	return &LeadSummaryService{leads: leads, gen: gen, tpl: llm.NewLeadSummaryTemplate()}
}

// Summarize loads the lead identified by identifier and merges its activity
func (s *LeadSummaryService) Summarize(ctx context.Context, identifier string) (*LeadSummary, error) {
	lead, err := s.leads.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	activities, err := s.leads.Activities(ctx, lead.ID())
	if err != nil {
		return nil, err
	}
	return &LeadSummary{
		Lead: lead,
		ActivityCounts: map[string]int{
			"calls":    len(activities["calls"]),
			"emails":   len(activities["emails"]),
			"meetings": len(activities["meetings"]),
			"notes":    len(activities["notes"]),
		},
		RecentActivity: BuildTimeline(activities, timelineLimit),
	}, nil
}

// Render asks the model for a narrative summary and falls back to FormatLeadSummary
func (s *LeadSummaryService) Render(ctx context.Context, summary *LeadSummary) (string, *int) {
	if summary.TotalActivity() == 0 || s.gen == nil {
		return FormatLeadSummary(summary), nil
	}

	msgs, err := llm.Render(ctx, s.tpl, map[string]any{
		"lead_info":         leadInfo(summary.Lead),
		"activity_overview": activityOverview(summary.ActivityCounts),
		"timeline":          timelineText(summary.RecentActivity),
	})
	if err == nil {
		reply, genErr := s.gen.Generate(ctx, msgs)
		if genErr == nil && strings.TrimSpace(reply.Content) != "" {
			return strings.TrimSpace(reply.Content), llm.TokensUsed(reply)
		}
		err = genErr
	}
	logger.Warn().Err(err).Int64("lead_id", summary.Lead.ID()).Msg("⚠️ Lead summary model call failed, using template")
	return FormatLeadSummary(summary), nil
}

func leadInfo(lead pkg.Record) string {
	return fmt.Sprintf("Lead: %s\nStatus: %s\nOwner: %s",
		defaultText(lead.String("name"), "Unknown"),
		defaultText(lead.String("lead_status"), "N/A"),
		defaultText(lead.String("lead_owner"), "N/A"))
}

func activityOverview(counts map[string]int) string {
	return fmt.Sprintf("- %d Calls\n- %d Emails\n- %d Meetings\n- %d Notes",
		counts["calls"], counts["emails"], counts["meetings"], counts["notes"])
}

func timelineText(entries []TimelineEntry) string {
	if len(entries) == 0 {
		return "No recorded activity"
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		date := "unknown date"
		if !e.Date.IsZero() {
			date = e.Date.Format("2006-01-02")
		}
		lines = append(lines, fmt.Sprintf("- %s [%s]: %s", date, e.Type, e.Summary))
	}
	return strings.Join(lines, "\n")
}

// FormatLeadSummary is the deterministic summary text
func FormatLeadSummary(summary *LeadSummary) string {
	if summary.TotalActivity() == 0 {
		return "Lead Information:\n" + leadInfo(summary.Lead) +
			"\n\nActivity Overview:\n" + activityOverview(summary.ActivityCounts) +
			"\n\nLead found but no recorded activity (calls, emails, meetings, or notes)."
	}
	text := leadInfo(summary.Lead) + "\n\nActivity Summary:\n" + activityOverview(summary.ActivityCounts)
	if len(summary.RecentActivity) > 0 {
		text += "\n\nRecent Activity:\n" + timelineText(summary.RecentActivity)
	}
	return text
}
