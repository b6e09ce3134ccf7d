package services

import (
	"context"
	"testing"
	"time"

	"salesbot/internal/storage"
	"salesbot/pkg"
	"salesbot/src/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowupDue(t *testing.T) {
	store := newCRM(t, storage.SeedFile{
		"leads": {
			{"id": 1, "name": "Guna Raj", "lead_status": "Open", "next_follow_up": day(-2)},
			{"id": 2, "name": "Priya Shah", "lead_status": "Closed", "next_follow_up": day(-5)},
			{"id": 3, "name": "Arun Kumar", "lead_status": "Open", "next_follow_up": day(-1)},
			{"id": 4, "name": "Meera", "lead_status": "Open", "next_follow_up": day(3)},
			{"id": 5, "name": "No Date", "lead_status": "Open"},
			{"id": 6, "name": "Lost One", "lead_status": "Lost", "next_follow_up": day(-9)},
		},
	})
	svc := NewFollowupService(store, model.FollowupTuning{})
	svc.now = func() time.Time { return testNow }

	leads, err := svc.Due(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids(leads))

	payload, count, err := svc.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, payload["count"])
}

func TestFormatFollowups(t *testing.T) {
	assert.Equal(t, FollowupEmpty, FormatFollowups(nil))

	text := FormatFollowups([]pkg.Record{
		{"id": 1, "name": "Guna Raj", "phone": "98450", "email": "guna@example.com", "lead_status": "Open",
			"next_follow_up": "2026-10-12T12:00:00Z", "lead_owner": "Ravi"},
		{"id": 3, "name": "Arun Kumar", "lead_status": "Open", "next_follow_up": "2026-10-13T09:00:00Z"},
	})

	assert.True(t, len(text) > len(FollowupHeader))
	assert.Contains(t, text, "1. Guna Raj\n   Phone: 98450\n   Email: guna@example.com\n   Status: Open\n   Follow-Up: 2026-10-12\n   Owner: Ravi")
	assert.Contains(t, text, "2. Arun Kumar\n   Phone: N/A\n   Status: Open\n   Follow-Up: 2026-10-13")
	assert.NotContains(t, text, "Owner: \n")
}

func TestFollowupDueAcrossTimestampFormats(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	store := newCRM(t, storage.SeedFile{
		"leads": {
			{"id": 1, "name": "Guna Raj", "lead_status": "Open", "next_follow_up": testNow.Add(-time.Hour).In(ist).Format(time.RFC3339)},
			{"id": 2, "name": "Priya Shah", "lead_status": "Open", "next_follow_up": testNow.Add(-2 * time.Hour).Format(time.RFC3339)},
			{"id": 3, "name": "Arun Kumar", "lead_status": "Open", "next_follow_up": testNow.Add(-3 * time.Hour).Format("2006-01-02 15:04:05")},
			{"id": 4, "name": "Meera", "lead_status": "Open", "next_follow_up": testNow.Add(time.Hour).In(ist).Format(time.RFC3339)},
		},
	})
	svc := NewFollowupService(store, model.FollowupTuning{})
	svc.now = func() time.Time { return testNow }

	leads, err := svc.Due(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, ids(leads))
}
