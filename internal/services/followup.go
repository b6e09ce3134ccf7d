package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salesbot/internal/storage"
	"salesbot/pkg"
	"salesbot/src/model"
)

const (
	FollowupHeader = "Here are the leads requiring follow-up today:\n"
	FollowupEmpty  = "No leads require follow-up today."
	FollowupFailed = "I encountered an error while fetching leads requiring follow-up. Please try again."
)

// FollowupService finds leads whose follow-up date has passed
type FollowupService struct {
	store    storage.CRMStore
	excluded []string
	now      func() time.Time
}

// NewFollowupService creates the service
func NewFollowupService(store storage.CRMStore, tuning model.FollowupTuning) *FollowupService {
	excluded := tuning.ExcludedStatuses
	if len(excluded) == 0 {
		excluded = []string{"Closed", "Lost"}
	}
	return &FollowupService{store: store, excluded: excluded, now: time.Now}
}

// Due returns open leads with next_follow_up at or before now, most overdue first
func (s *FollowupService) Due(ctx context.Context) ([]pkg.Record, error) {
	res, err := s.store.Query(ctx, storage.Query{
		Table: "leads",
		Filters: []storage.Filter{
			{Field: "next_follow_up", Op: storage.OpNotNull},
			{Field: "next_follow_up", Op: storage.OpLte, Value: s.now().UTC().Format(time.RFC3339)},
			{Field: "lead_status", Op: storage.OpNotIn, Value: s.excluded},
		},
		SortField: "next_follow_up",
	})
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Fetch is the FetchFunc form of Due
func (s *FollowupService) Fetch(ctx context.Context) (map[string]any, int, error) {
	leads, err := s.Due(ctx)
	if err != nil {
		return nil, 0, err
	}
	return map[string]any{"data": leads, "count": len(leads)}, len(leads), nil
}

// FormatFollowups renders the follow-up list
func FormatFollowups(leads []pkg.Record) string {
	if len(leads) == 0 {
		return FollowupEmpty
	}

	var b strings.Builder
	b.WriteString(FollowupHeader)
	for i, lead := range leads {
		fmt.Fprintf(&b, "%d. %s\n", i+1, lead.String("name"))
		fmt.Fprintf(&b, "   Phone: %s\n", fieldText(lead, "phone"))
		if email := lead.String("email"); email != "" {
			fmt.Fprintf(&b, "   Email: %s\n", email)
		}
		fmt.Fprintf(&b, "   Status: %s\n", fieldText(lead, "lead_status"))
		due := lead.String("next_follow_up")
		if date, _, ok := strings.Cut(due, "T"); ok {
			due = date
		}
		fmt.Fprintf(&b, "   Follow-Up: %s\n", due)
		if owner := lead.String("lead_owner"); owner != "" {
			fmt.Fprintf(&b, "   Owner: %s\n", owner)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func fieldText(rec pkg.Record, field string) string {
	v, ok := rec[field]
	if !ok || v == nil {
		return "N/A"
	}
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	}
	s := fmt.Sprint(v)
	if s == "" {
		return "N/A"
	}
	return s
}
