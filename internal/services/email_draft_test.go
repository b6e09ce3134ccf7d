package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"salesbot/internal/storage"
	"salesbot/pkg"
	"salesbot/src/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectTemplatePrecedence(t *testing.T) {
	stale := 14 * 24 * time.Hour
	recentCall := &Interaction{Type: "call", Date: testNow.Add(-48 * time.Hour), Record: pkg.Record{}}
	meeting := &Interaction{Type: "meeting", Date: testNow.Add(-time.Hour), Record: pkg.Record{"start_time": day(2)}}
	oldCall := &Interaction{Type: "call", Date: testNow.AddDate(0, 0, -30), Record: pkg.Record{}}

	visiting := pkg.Record{"opportunity_status": "Visiting"}
	plain := pkg.Record{"opportunity_status": "Enrolled"}

	assert.Equal(t, TemplateObjectionHandling, SelectTemplate("they think it's too expensive", visiting, meeting, stale, testNow))
	assert.Equal(t, TemplateObjectionHandling, SelectTemplate("draft email", pkg.Record{"description": "budget concern"}, nil, stale, testNow))
	assert.Equal(t, TemplateProposal, SelectTemplate("draft email", visiting, meeting, stale, testNow))
	assert.Equal(t, TemplateMeetingConfirmation, SelectTemplate("draft email", plain, meeting, stale, testNow))
	assert.Equal(t, TemplateReEngagement, SelectTemplate("draft email", plain, oldCall, stale, testNow))
	assert.Equal(t, TemplateReEngagement, SelectTemplate("draft email", plain, nil, stale, testNow))
	assert.Equal(t, TemplateFollowUp, SelectTemplate("draft email", plain, recentCall, stale, testNow))
}

func draftStore(t *testing.T) *storage.SQLiteCRMStore {
	return newCRM(t, storage.SeedFile{
		"leads": {
			{"id": 1, "name": "Asha Rao", "email": "asha@example.com", "opportunity_status": "Enrolled"},
		},
		"calls": {{"id": 1, "lead_id": 1, "direction": "outbound", "status": "answered", "created_at": day(-2)}},
	})
}

func TestDraftWithModel(t *testing.T) {
	gen := &fakeGenerator{reply: `{"subject": "Quick check-in", "body": "Hi Asha,\n\nHow are you?"}`}
	svc := NewEmailDraftService(NewLeadResolver(draftStore(t)), gen, model.EmailDraftTuning{StaleAfterDays: 14})
	svc.now = func() time.Time { return testNow }

	draft, err := svc.Draft(context.Background(), "Asha Rao", "draft follow-up email for lead Asha Rao")
	require.NoError(t, err)
	assert.True(t, draft.Generated)
	assert.Equal(t, TemplateFollowUp, draft.Template)
	assert.Equal(t, "Quick check-in", draft.Subject)
	assert.Equal(t, "asha@example.com", draft.LeadEmail)

	payload := draft.Payload()
	assert.Equal(t, "email_draft", payload["type"])
	assert.Equal(t, int64(1), payload["lead_id"])

	restored, ok := DraftFromPayload(map[string]any{
		"type": "email_draft", "subject": "S", "body": "B", "lead_id": float64(1), "lead_name": "Asha Rao",
	})
	require.True(t, ok)
	assert.Equal(t, int64(1), restored.LeadID)
}

func TestDraftFallsBackToTemplate(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model down")}
	svc := NewEmailDraftService(NewLeadResolver(draftStore(t)), gen, model.EmailDraftTuning{})
	svc.now = func() time.Time { return testNow }

	draft, err := svc.Draft(context.Background(), "1", "write email for lead id 1")
	require.NoError(t, err)
	assert.False(t, draft.Generated)
	assert.Equal(t, "Following up - Asha Rao", draft.Subject)

	text := FormatDraft(draft)
	assert.Contains(t, text, "Email Draft Generated (Follow Up Template)")
	assert.Contains(t, text, "To: Asha Rao\nSubject: Following up - Asha Rao\n\nBody:\nDear Asha Rao,")
	assert.Contains(t, text, "Note: This is a draft. Review and edit before sending.")

	_, err = svc.Draft(context.Background(), "Nobody", "draft email for Nobody")
	assert.True(t, pkg.IsKind(err, pkg.ErrNotFound))
}

func TestFallbackEmailCategories(t *testing.T) {
	assert.Equal(t, "Proposal for Asha", FallbackEmail(TemplateProposal, "Asha").Subject)
	assert.Equal(t, "Reconnecting - Asha", FallbackEmail(TemplateReEngagement, "Asha").Subject)
	assert.Equal(t, "Meeting Confirmation - Asha", FallbackEmail(TemplateMeetingConfirmation, "Asha").Subject)
	assert.Equal(t, "Addressing your questions - Asha", FallbackEmail(TemplateObjectionHandling, "Asha").Subject)
	assert.Equal(t, "Following up - Asha", FallbackEmail("unknown", "Asha").Subject)
}
