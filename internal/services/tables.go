package services

// TableConfig describes how one CRM table is found and searched
type TableConfig struct {
	Name         string
	Aliases      []string
	SearchFields []string
	DateField    string
}

// Tables is the fixed CRM table set in detection tie-break order
var Tables = []TableConfig{
	{Name: "campaigns", Aliases: []string{"campaign", "marketing"},
		SearchFields: []string{"name", "status", "type", "campaign_owner", "phone"}},
	{Name: "leads", Aliases: []string{"lead", "prospect", "enquiry", "inquiry"},
		SearchFields: []string{"name", "email", "phone", "lead_status", "lead_stage", "opportunity_status", "lead_source", "lead_owner"}},
	{Name: "tasks", Aliases: []string{"task", "todo"},
		SearchFields: []string{"subject", "priority", "status", "task_type"}},
	{Name: "trainers", Aliases: []string{"trainer", "instructor", "teacher"},
		SearchFields: []string{"trainer_name", "trainer_status", "tech_stack", "email", "phone", "location"}},
	{Name: "learners", Aliases: []string{"learner", "student", "trainee"},
		SearchFields: []string{"name", "email", "phone", "status", "course", "location", "source"}},
	{Name: "courses", Aliases: []string{"course", "program", "curriculum"},
		SearchFields: []string{"title", "description", "trainer", "duration"}},
	{Name: "activity", Aliases: []string{"activity", "log", "event"},
		SearchFields: []string{"activity_name"}},
	{Name: "notes", Aliases: []string{"note", "comment", "remark"},
		SearchFields: []string{"content"}},
	{Name: "batches", Aliases: []string{"batch", "cohort"},
		SearchFields: []string{"batch_name", "batch_status", "location", "stack"}},
	{Name: "emails", Aliases: []string{"email", "mail"},
		SearchFields: []string{"subject"}},
	{Name: "calls", Aliases: []string{"call", "phone call"},
		SearchFields: []string{"caller_id", "status", "direction"}},
	{Name: "meetings", Aliases: []string{"meeting", "appointment", "schedule"},
		SearchFields: []string{"meeting_name", "location"}},
	{Name: "messages", Aliases: []string{"message", "chat", "sms"},
		SearchFields: []string{"subject", "content"}},
}

func init() {
	for i := range Tables {
		if Tables[i].DateField == "" {
			Tables[i].DateField = "created_at"
		}
	}
}

// LookupTable finds a table by name
func LookupTable(name string) (TableConfig, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableConfig{}, false
}

// aliasForms returns each alias with its plural, since messages are not stemmed here
func (t TableConfig) aliasForms() []string {
	forms := []string{t.Name}
	for _, a := range t.Aliases {
		forms = append(forms, a, plural(a))
	}
	return forms
}

func plural(word string) string {
	switch {
	case len(word) > 1 && word[len(word)-1] == 'y' && !isVowel(word[len(word)-2]):
		return word[:len(word)-1] + "ies"
	case len(word) > 0 && (word[len(word)-1] == 's' || word[len(word)-1] == 'h' || word[len(word)-1] == 'x'):
		return word + "es"
	}
	return word + "s"
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// DetectTable scores every table by alias hits; the highest wins, ties keep table
// order and no hit at all means leads
func DetectTable(message string) TableConfig {
	text := Normalize(message)
	best, bestScore := -1, 0
	for i, t := range Tables {
		score := 0
		seen := map[string]bool{}
		for _, form := range t.aliasForms() {
			if seen[form] {
				continue
			}
			seen[form] = true
			if HasPhrase(text, form) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		leads, _ := LookupTable("leads")
		return leads
	}
	return Tables[best]
}
