package services

import (
	"context"
	"fmt"
	"testing"

	"salesbot/internal/storage"
	"salesbot/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLeadIdentifier(t *testing.T) {
	cases := map[string]string{
		"Give me full summary of lead John Doe":          "John Doe",
		"Show activity summary for lead ID 132":          "132",
		"Draft follow-up email for lead John Doe":        "John Doe",
		"Write email for lead ID 132":                    "132",
		"lead 42 summary":                                "42",
		"lead name 'Asha Rao'":                           "Asha Rao",
		"send email to Priya Sharma":                     "Priya Sharma",
		"history of lead Arun and draft an email please": "Arun",
		"17":                                             "17",
		"Guna Raj":                                       "Guna Raj",
		"show me the summary":                            "",
	}
	for msg, want := range cases {
		assert.Equal(t, want, ExtractLeadIdentifier(msg), msg)
	}
}

func leadStore(t *testing.T) *storage.SQLiteCRMStore {
	return newCRM(t, storage.SeedFile{
		"leads": {
			{"id": 1, "name": "Arun Kumar", "email": "arun@example.com"},
			{"id": 2, "name": "Arun", "email": "arun2@example.com"},
			{"id": 3, "name": "Priya Shah"},
			{"id": 4, "name": "Priya Menon"},
		},
		"calls": {
			{"id": 1, "lead_id": 1, "status": "answered", "direction": "outbound", "created_at": day(-3)},
			{"id": 2, "lead_id": 3, "status": "missed", "direction": "inbound", "created_at": day(-1)},
		},
		"notes": {
			{"id": 1, "lead_id": 1, "content": "Asked about fees", "created_at": day(-1)},
		},
	})
}

func TestResolveLead(t *testing.T) {
	r := NewLeadResolver(leadStore(t))
	ctx := context.Background()

	lead, err := r.Resolve(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "Priya Shah", lead.String("name"))

	lead, err = r.Resolve(ctx, "arun")
	require.NoError(t, err)
	assert.Equal(t, int64(2), lead.ID(), "exact match wins over partial")

	lead, err = r.Resolve(ctx, "priya shah")
	require.NoError(t, err)
	assert.Equal(t, int64(3), lead.ID())

	_, err = r.Resolve(ctx, "Priya")
	assert.True(t, pkg.IsKind(err, pkg.ErrNotFound), "ambiguous")

	_, err = r.Resolve(ctx, "Nobody")
	assert.True(t, pkg.IsKind(err, pkg.ErrNotFound))

	_, err = r.Resolve(ctx, "99")
	assert.True(t, pkg.IsKind(err, pkg.ErrNotFound))
}

func TestResolveLeadFindsExactMatchBehindManyPartials(t *testing.T) {
	var leads []pkg.Record
	for i := 1; i <= 30; i++ {
		leads = append(leads, pkg.Record{"id": i, "name": fmt.Sprintf("Ravi Kumar %02d", i)})
	}
	leads = append(leads, pkg.Record{"id": 31, "name": " ravi kumar "})
	r := NewLeadResolver(newCRM(t, storage.SeedFile{"leads": leads}))

	lead, err := r.Resolve(context.Background(), "Ravi Kumar")
	require.NoError(t, err)
	assert.Equal(t, int64(31), lead.ID())

	_, err = r.Resolve(context.Background(), "Ravi Kumar 0")
	var appErr *pkg.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 9, appErr.Details["matches"])
}

func TestActivities(t *testing.T) {
	r := NewLeadResolver(leadStore(t))
	acts, err := r.Activities(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, acts["calls"], 1)
	assert.Len(t, acts["notes"], 1)
	assert.Empty(t, acts["emails"])
	assert.Empty(t, acts["meetings"])
}
