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

func TestDetectTable(t *testing.T) {
	cases := map[string]string{
		"show all campaigns":              "campaigns",
		"list students in the new cohort": "learners",
		"any meetings this week":          "meetings",
		"what's up":                       "leads",
		"show instructors":                "trainers",
		"show activities":                 "activity",
		"find lead Kumar":                 "leads",
	}
	for msg, want := range cases {
		assert.Equal(t, want, DetectTable(msg).Name, msg)
	}
}

func TestPlan(t *testing.T) {
	svc := NewCRMQueryService(nil, model.CRMTuning{DefaultPageSize: 20, MaxPageSize: 50, NewWindowDays: 7})
	svc.now = func() time.Time { return testNow }

	t.Run("list query has no search", func(t *testing.T) {
		plan := svc.Plan("show me all leads", 1)
		assert.Equal(t, "leads", plan.Query.Table)
		assert.Empty(t, plan.Query.Search)
		assert.Empty(t, plan.Query.Filters)
		assert.Equal(t, 20, plan.Query.Limit)
		assert.True(t, plan.Query.SortDesc)
	})

	t.Run("text search", func(t *testing.T) {
		plan := svc.Plan("find lead Kumar", 1)
		assert.Equal(t, "kumar", plan.Query.Search)
		assert.Contains(t, plan.Query.SearchFields, "lead_owner")
	})

	t.Run("today filter", func(t *testing.T) {
		plan := svc.Plan("tasks created today", 1)
		require.Len(t, plan.Query.Filters, 2)
		assert.Equal(t, storage.OpGte, plan.Query.Filters[0].Op)
		assert.Equal(t, "2026-10-14T00:00:00Z", plan.Query.Filters[0].Value)
		assert.Equal(t, "2026-10-15T00:00:00Z", plan.Query.Filters[1].Value)
	})

	t.Run("this week starts monday", func(t *testing.T) {
		plan := svc.Plan("calls this week", 1)
		require.Len(t, plan.Query.Filters, 2)
		assert.Equal(t, "2026-10-12T00:00:00Z", plan.Query.Filters[0].Value)
	})

	t.Run("page offset", func(t *testing.T) {
		plan := svc.Plan("show leads", 3)
		assert.Equal(t, 40, plan.Query.Offset)
	})
}

func TestFetchPayload(t *testing.T) {
	store := newCRM(t, storage.SeedFile{
		"leads": {
			{"id": 1, "name": "Guna Raj", "created_at": day(-3)},
			{"id": 2, "name": "Arun Kumar", "created_at": day(-1)},
			{"id": 3, "name": "Meera", "created_at": day(-30)},
		},
	})
	svc := NewCRMQueryService(store, model.CRMTuning{DefaultPageSize: 2, MaxPageSize: 50, NewWindowDays: 7})
	svc.now = func() time.Time { return testNow }

	payload, count, err := svc.Fetch(context.Background(), "show all leads", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, "leads", payload["table"])
	assert.Equal(t, 3, payload["total"])
	assert.Equal(t, true, payload["has_more"])
	assert.Equal(t, []int64{2, 1}, ids(Records(payload)))

	payload, count, err = svc.Fetch(context.Background(), "new leads", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, false, payload["has_more"])
}

func TestRecordsFromDecodedPayload(t *testing.T) {
	payload := map[string]any{"data": []any{map[string]any{"id": float64(3), "name": "x"}}}
	recs := Records(payload)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(3), recs[0].ID())

	assert.Nil(t, Records(map[string]any{}))
	assert.Len(t, Records(map[string]any{"data": []pkg.Record{{"id": 1}}}), 1)
}
