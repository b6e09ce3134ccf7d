package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "show me today s leads", Normalize("Show me, today's   LEADS!"))
	assert.Equal(t, "follow up", Normalize("follow-up"))
}

func TestHasPhrase(t *testing.T) {
	text := Normalize("Please send the email now")
	assert.True(t, HasPhrase(text, "send the email"))
	assert.False(t, HasPhrase(text, "mail"))
	assert.True(t, HasAnyPhrase(text, "draft", "now"))
}

func TestParseTime(t *testing.T) {
	ts, ok := ParseTime("2026-10-14T12:00:00Z")
	assert.True(t, ok)
	assert.Equal(t, testNow, ts)

	_, ok = ParseTime("2026-10-14")
	assert.True(t, ok)

	_, ok = ParseTime(42)
	assert.False(t, ok)
}

func TestTruncateAndTitle(t *testing.T) {
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "Meeting Confirmation", Title("meeting_confirmation"))
}
