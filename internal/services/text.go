package services

import (
	"strings"
	"time"
	"unicode"
)

// Normalize lowercases s, turns punctuation into spaces and collapses whitespace
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// HasPhrase reports whether phrase occurs in normalized text on word boundaries
func HasPhrase(normalized, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+normalized+" ", " "+phrase+" ")
}

// HasAnyPhrase reports whether any phrase occurs in normalized text
func HasAnyPhrase(normalized string, phrases ...string) bool {
	for _, p := range phrases {
		if HasPhrase(normalized, p) {
			return true
		}
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime reads the timestamp formats CRM records carry; ok is false otherwise
func ParseTime(v any) (time.Time, bool) {
	s, isString := v.(string)
	if !isString || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Truncate cuts s to max runes and appends "..." when it was longer
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// Title capitalizes each underscore or space separated word
func Title(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
