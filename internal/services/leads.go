package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"salesbot/internal/storage"
	"salesbot/pkg"
)

const LeadNotFound = "Lead not found. Please check the lead name or ID and try again."

var (
	leadIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)lead\s+id\s*:?\s*(\d+)`),
		regexp.MustCompile(`(?i)\bid\s*:?\s*(\d+)`),
		regexp.MustCompile(`(?i)lead\s+(\d+)\b`),
	}
	leadNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)lead\s+name\s+["']([^"']+)["']`),
		regexp.MustCompile(`(?i)lead\s+name\s+(\w+)`),
		regexp.MustCompile(`(?i)(?:summary|activity|full|history|email|mail|draft)\s+(?:of|for|to)\s+(?:lead\s+)?([a-zA-Z][a-zA-Z\s.'-]*)`),
		regexp.MustCompile(`(?i)lead\s+(?:summary|activity|history)\s+(?:of|for)\s+([a-zA-Z][a-zA-Z\s.'-]*)`),
		regexp.MustCompile(`(?i)\blead\s+([a-zA-Z][a-zA-Z\s.'-]*)`),
	}
	bareNumber = regexp.MustCompile(`^\s*(\d+)\s*$`)
	andTail    = regexp.MustCompile(`(?i)\s+and\s+.*$`)
)

var nameStopWords = map[string]bool{
	"summary": true, "activity": true, "full": true, "history": true, "of": true, "for": true,
	"the": true, "a": true, "an": true, "name": true, "lead": true, "email": true, "mail": true,
	"draft": true, "to": true, "please": true, "now": true,
}

var identifierKeywords = []string{"summary", "activity", "history", "email", "mail", "draft", "send", "lead", "follow"}

// ExtractLeadIdentifier pulls a lead id or name out of a message; empty when none is found
func ExtractLeadIdentifier(message string) string {
	for _, re := range leadIDPatterns {
		if m := re.FindStringSubmatch(message); m != nil {
			return m[1]
		}
	}
	for _, re := range leadNamePatterns {
		if m := re.FindStringSubmatch(message); m != nil {
			if name := cleanName(m[1]); len(name) > 1 {
				return name
			}
		}
	}
	if m := bareNumber.FindStringSubmatch(message); m != nil {
		return m[1]
	}

	text := Normalize(message)
	if words := strings.Fields(text); len(words) > 0 && len(words) <= 3 && !HasAnyPhrase(text, identifierKeywords...) {
		return strings.TrimSpace(message)
	}
	return ""
}

func cleanName(raw string) string {
	raw = andTail.ReplaceAllString(raw, "")
	var kept []string
	for _, w := range strings.Fields(raw) {
		w = strings.Trim(w, ".,!?")
		if w == "" || nameStopWords[strings.ToLower(w)] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// LeadResolver looks leads up by id or name
type LeadResolver struct {
	store storage.CRMStore
}

// NewLeadResolver creates a resolver
func NewLeadResolver(store storage.CRMStore) *LeadResolver {
	return &LeadResolver{store: store}
}

// Resolve finds exactly one lead. A numeric identifier is an id. Names are
// compared case-insensitively: exact matches are looked up first, then
// partial ones. More than one match at either step is ambiguous and
// reported as NotFound.
func (r *LeadResolver) Resolve(ctx context.Context, identifier string) (pkg.Record, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, pkg.NewNotFoundError("lead")
	}
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		return r.store.Get(ctx, "leads", id)
	}

	for _, op := range []storage.FilterOp{storage.OpIEq, storage.OpContains} {
		res, err := r.store.Query(ctx, storage.Query{
			Table:   "leads",
			Filters: []storage.Filter{{Field: "name", Op: op, Value: identifier}},
			Limit:   2,
		})
		if err != nil {
			return nil, err
		}
		switch {
		case res.Total == 1:
			return res.Records[0], nil
		case res.Total > 1:
			return nil, pkg.NewNotFoundError(fmt.Sprintf("lead '%s'", identifier)).
				WithDetails(map[string]any{"ambiguous": true, "matches": res.Total})
		}
	}
	return nil, pkg.NewNotFoundError(fmt.Sprintf("lead '%s'", identifier))
}

// ActivityTables are the tables linked to a lead through lead_id
var ActivityTables = []string{"calls", "emails", "meetings", "notes"}

// Activities loads every record linked to the lead, keyed by table
func (r *LeadResolver) Activities(ctx context.Context, leadID int64) (map[string][]pkg.Record, error) {
	out := make(map[string][]pkg.Record, len(ActivityTables))
	for _, table := range ActivityTables {
		res, err := r.store.Query(ctx, storage.Query{
			Table:   table,
			Filters: []storage.Filter{{Field: "lead_id", Op: storage.OpEq, Value: leadID}},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s for lead %d: %w", table, leadID, err)
		}
		out[table] = res.Records
	}
	return out, nil
}
