package llm

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatterTemplate(t *testing.T) {
	history := []*schema.Message{schema.UserMessage("earlier"), schema.AssistantMessage("reply", nil)}
	msgs, err := Render(context.Background(), NewFormatterTemplate(), map[string]any{
		"source":   "crm",
		"payload":  `{"table":"leads","data":[{"id":1}]}`,
		"question": "show leads",
		"history":  history,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `{"table":"leads"`)
	assert.Equal(t, "earlier", msgs[1].Content)
	assert.Equal(t, "show leads", msgs[3].Content)
}

func TestActionTemplateWithoutHistory(t *testing.T) {
	msgs, err := Render(context.Background(), NewActionTemplate(), map[string]any{
		"memory_context": MemoryContext("lead", 7, "Asha"),
		"payload":        "none",
		"question":       "update it",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "Last lead ID: 7")
	assert.Contains(t, msgs[0].Content, "Last lead name: Asha")
}

func TestMemoryContextEmpty(t *testing.T) {
	assert.Empty(t, MemoryContext("", 0, ""))
	assert.NotContains(t, MemoryContext("task", 3, ""), "name:")
}

func TestEmailDraftTemplate(t *testing.T) {
	msgs, err := Render(context.Background(), NewEmailDraftTemplate(), map[string]any{
		"template":           "proposal",
		"lead_name":          "Asha",
		"lead_status":        "Qualified",
		"opportunity_status": "Visiting",
		"latest_interaction": "none",
		"question":           "draft email for lead Asha",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "Template: proposal")
}
