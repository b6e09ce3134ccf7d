package nodes

import (
	"testing"

	"salesbot/internal/core"
	"salesbot/pkg"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		last    pkg.SourceType
		want    core.Intent
	}{
		{"greeting", "Hello", pkg.SourceNone, core.IntentGreeting},
		{"greeting with words", "good morning team", pkg.SourceNone, core.IntentGreeting},
		{"word starting with hi", "hiring plan for leads", pkg.SourceNone, core.IntentCRM},
		{"send beats followup", "send follow up email to Guna", pkg.SourceNone, core.IntentSendEmail},
		{"send mail", "Send the mail to lead 12", pkg.SourceNone, core.IntentSendEmail},
		{"affirmative after draft", "yes", pkg.SourceEmailDraft, core.IntentSendEmail},
		{"affirmative elsewhere", "yes", pkg.SourceCRM, core.IntentCRM},
		{"followup", "show leads requiring follow up today", pkg.SourceNone, core.IntentFollowup},
		{"followup plural", "any reminders?", pkg.SourceNone, core.IntentFollowup},
		{"draft", "Draft a follow-up email for Guna Raj", pkg.SourceNone, core.IntentEmailDraft},
		{"compose mail", "compose mail for lead 4", pkg.SourceNone, core.IntentEmailDraft},
		{"summary", "give me full summary of lead Priya", pkg.SourceNone, core.IntentLeadSummary},
		{"history pattern", "history of lead 132", pkg.SourceNone, core.IntentLeadSummary},
		{"summary without lead", "summary of campaigns", pkg.SourceNone, core.IntentCRM},
		{"crm default", "list all campaigns", pkg.SourceNone, core.IntentCRM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.message, tt.last))
		})
	}
}

func TestIsGreeting(t *testing.T) {
	assert.True(t, IsGreeting("Hi!"))
	assert.True(t, IsGreeting("hey there, how are you"))
	assert.False(t, IsGreeting("high priority tasks"))
	assert.False(t, IsGreeting(""))
}
