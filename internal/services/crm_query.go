package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"salesbot/internal/storage"
	"salesbot/pkg"
	"salesbot/src/logger"
	"salesbot/src/model"
)

var fillerWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`today yesterday this week new recent show shows display get give list find
		fetch search see view tell provide return bring me my i want need please can could would crm data details
		information info record records all the a an some any every each s is are was were have has had out of in
		from with for to what which who how many much there their about created added updated named called`) {
		fillerWords[w] = true
	}
	for _, t := range Tables {
		for _, form := range t.aliasForms() {
			for _, w := range strings.Fields(form) {
				fillerWords[w] = true
			}
		}
	}
}

var (
	listVerbs   = regexp.MustCompile(`^(?:list|show|get|give|display|fetch|view|see)(?: me)?(?: all)?(?: the)?(?: my)? (\w+)$`)
	allEntities = regexp.MustCompile(`^all (?:the )?(\w+)$`)
	detailsOf   = regexp.MustCompile(`^(\w+) (?:details|information|info|data|list)$`)
	crmData     = regexp.MustCompile(`^(?:show )?(?:me )?crm (?:data|information|info)$`)
)

// CRMQueryService plans and runs the generic CRM fetch
type CRMQueryService struct {
	store  storage.CRMStore
	tuning model.CRMTuning
	now    func() time.Time
}

// NewCRMQueryService creates the service
func NewCRMQueryService(store storage.CRMStore, tuning model.CRMTuning) *CRMQueryService {
	return &CRMQueryService{store: store, tuning: tuning, now: time.Now}
}

// CRMPlan is a planned query together with the detected table
type CRMPlan struct {
	Table TableConfig
	Query storage.Query
	Page  int
}

// Plan turns a message into a table query with date filters, text search and paging
func (s *CRMQueryService) Plan(message string, page int) CRMPlan {
	table := DetectTable(message)
	text := Normalize(message)

	pageSize := s.tuning.DefaultPageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if s.tuning.MaxPageSize > 0 && pageSize > s.tuning.MaxPageSize {
		pageSize = s.tuning.MaxPageSize
	}
	if page < 1 {
		page = 1
	}

	q := storage.Query{
		Table:     table.Name,
		Filters:   s.dateFilters(text, table.DateField),
		SortField: table.DateField,
		SortDesc:  true,
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
	}
	if !isListQuery(text) {
		if term := searchTerm(text); len(term) > 2 {
			q.Search = term
			q.SearchFields = table.SearchFields
		}
	}
	return CRMPlan{Table: table, Query: q, Page: page}
}

func (s *CRMQueryService) dateFilters(text, field string) []storage.Filter {
	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var start, end time.Time
	switch {
	case HasPhrase(text, "today"):
		start, end = midnight, midnight.Add(24*time.Hour)
	case HasPhrase(text, "yesterday"):
		start, end = midnight.Add(-24*time.Hour), midnight
	case HasPhrase(text, "this week"):
		offset := (int(midnight.Weekday()) + 6) % 7
		start, end = midnight.AddDate(0, 0, -offset), now.Add(time.Second)
	case HasPhrase(text, "new") || HasPhrase(text, "recent"):
		days := s.tuning.NewWindowDays
		if days <= 0 {
			days = 7
		}
		start, end = now.AddDate(0, 0, -days), now.Add(time.Second)
	default:
		return nil
	}
	return []storage.Filter{
		{Field: field, Op: storage.OpGte, Value: start.Format(time.RFC3339)},
		{Field: field, Op: storage.OpLt, Value: end.Format(time.RFC3339)},
	}
}

func isListQuery(text string) bool {
	if _, ok := entityWord(text); ok {
		return true
	}
	if crmData.MatchString(text) {
		return true
	}
	for _, re := range []*regexp.Regexp{listVerbs, allEntities, detailsOf} {
		if m := re.FindStringSubmatch(text); m != nil {
			if _, ok := entityWord(m[1]); ok {
				return true
			}
		}
	}
	return false
}

func entityWord(word string) (TableConfig, bool) {
	for _, t := range Tables {
		for _, form := range t.aliasForms() {
			if word == form {
				return t, true
			}
		}
	}
	return TableConfig{}, false
}

func searchTerm(text string) string {
	var kept []string
	for _, w := range strings.Fields(text) {
		if !fillerWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// Fetch runs the planned query and builds the CRM payload
func (s *CRMQueryService) Fetch(ctx context.Context, message string, page int) (map[string]any, int, error) {
	plan := s.Plan(message, page)
	logger.Debug().Str("table", plan.Table.Name).Str("search", plan.Query.Search).
		Int("filters", len(plan.Query.Filters)).Msg("🔍 Planned CRM query")

	res, err := s.store.Query(ctx, plan.Query)
	if err != nil {
		return nil, 0, err
	}

	payload := map[string]any{
		"table":     plan.Table.Name,
		"data":      res.Records,
		"total":     res.Total,
		"page":      plan.Page,
		"page_size": plan.Query.Limit,
		"has_more":  plan.Query.Offset+len(res.Records) < res.Total,
	}
	return payload, len(res.Records), nil
}

// Records reads the "data" list of a payload whether it holds typed records or decoded JSON
func Records(payload map[string]any) []pkg.Record {
	switch data := payload["data"].(type) {
	case []pkg.Record:
		return data
	case []any:
		out := make([]pkg.Record, 0, len(data))
		for _, item := range data {
			switch rec := item.(type) {
			case map[string]any:
				out = append(out, pkg.Record(rec))
			case pkg.Record:
				out = append(out, rec)
			}
		}
		return out
	}
	return nil
}
