package nodes

import (
	"regexp"
	"strings"

	"salesbot/internal/core"
	"salesbot/internal/services"
	"salesbot/pkg"
)

// normalize lowercases, strips punctuation and a plural "s" from words longer than three letters
func normalize(message string) string {
	words := strings.Fields(services.Normalize(message))
	for i, w := range words {
		if len(w) > 3 && strings.HasSuffix(w, "s") {
			words[i] = w[:len(w)-1]
		}
	}
	return strings.Join(words, " ")
}

func normalizeAll(phrases ...string) []string {
	out := make([]string, len(phrases))
	for i, p := range phrases {
		out[i] = normalize(p)
	}
	return out
}

var (
	greetingKeywords = []string{
		"hi", "hello", "hey", "hii", "hiii", "hiiii",
		"good morning", "good afternoon", "good evening",
		"morning", "afternoon", "evening", "greetings", "greeting",
		"hi there", "hello there", "hey there",
	}

	sendPhrases = normalizeAll(
		"send email", "send mail", "send this email", "send this mail", "email now", "mail now",
		"send it", "dispatch email", "dispatch mail", "send the email", "send the mail",
	)

	followupPhrases = normalizeAll(
		"follow up", "followup", "pending leads", "leads to call", "followup today",
		"requiring follow", "need follow", "due follow", "overdue follow", "reminder",
	)

	draftVerbs    = []string{"draft", "write", "compose"}
	draftPhrases  = normalizeAll("create email", "create an email", "create mail", "email draft", "mail draft", "follow up email", "followup email", "follow up mail", "followup mail")
	draftExcluded = []string{"send", "dispatch", "now"}

	summaryKeywords = normalizeAll(
		"summary", "full summary", "activity summary", "lead summary", "full history", "activity history",
		"lead activity", "lead history", "complete summary", "history of lead", "show activity", "activity of lead",
	)
	leadTerms      = []string{"lead", "prospect", "customer"}
	summaryPattern = regexp.MustCompile(`\b(?:history|summary|activity|full)\s+(?:of|for)\s+lead\b`)

	affirmatives = normalizeAll("yes", "ok", "okay", "sure", "go ahead", "yes send", "send", "yes please", "yep", "do it")
)

// IsGreeting matches a greeting keyword as the whole message or its first words
func IsGreeting(message string) bool {
	text := services.Normalize(message)
	for _, kw := range greetingKeywords {
		if text == kw || strings.HasPrefix(text, kw+" ") {
			return true
		}
	}
	return false
}

func isSend(text string) bool {
	if services.HasAnyPhrase(text, sendPhrases...) {
		return true
	}
	return services.HasPhrase(text, "send") && services.HasAnyPhrase(text, "email", "mail")
}

func isFollowup(text string) bool {
	if services.HasPhrase(text, "send") || services.HasAnyPhrase(text, draftVerbs...) {
		return false
	}
	return services.HasAnyPhrase(text, followupPhrases...)
}

func isEmailDraft(text string) bool {
	if services.HasAnyPhrase(text, draftExcluded...) {
		return false
	}
	if services.HasAnyPhrase(text, draftVerbs...) && services.HasAnyPhrase(text, "email", "mail") {
		return true
	}
	return services.HasAnyPhrase(text, draftPhrases...)
}

func isLeadSummary(text string) bool {
	if services.HasAnyPhrase(text, summaryKeywords...) && services.HasAnyPhrase(text, leadTerms...) {
		return true
	}
	return summaryPattern.MatchString(text)
}

// Classify evaluates the intent rules in strict priority order; the first
// match wins and crm is the default
func Classify(message string, lastSource pkg.SourceType) core.Intent {
	if IsGreeting(message) {
		return core.IntentGreeting
	}

	text := normalize(message)
	if lastSource == pkg.SourceEmailDraft && len(strings.Fields(text)) <= 3 {
		for _, a := range affirmatives {
			if text == a {
				return core.IntentSendEmail
			}
		}
	}

	switch {
	case isSend(text):
		return core.IntentSendEmail
	case isFollowup(text):
		return core.IntentFollowup
	case isEmailDraft(text):
		return core.IntentEmailDraft
	case isLeadSummary(text):
		return core.IntentLeadSummary
	}
	return core.IntentCRM
}
