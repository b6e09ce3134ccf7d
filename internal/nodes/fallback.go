package nodes

import (
	"fmt"
	"sort"
	"strings"

	"salesbot/internal/services"
	"salesbot/pkg"
)

const (
	OutOfScopeResponse   = "I can only answer questions related to Edify CRM data."
	ActionErrorResponse  = "I encountered an error processing your request. Please try again."
	ActionCancelledReply = "Action was cancelled."

	fallbackRowLimit = 10
)

// RenderFallback formats a retrieval without the model. The output depends
// only on the record, so repeated calls give the same text.
func RenderFallback(rec *pkg.RetrievalRecord) string {
	if rec == nil {
		return OutOfScopeResponse
	}
	table, _ := rec.Payload["table"].(string)
	if table == "" {
		table = "CRM"
	}
	if rec.Failed() {
		return fmt.Sprintf("I couldn't retrieve %s records right now: %s", table, rec.ErrorMessage)
	}

	records := services.Records(rec.Payload)
	if len(records) == 0 {
		return fmt.Sprintf("No matching %s records found.", table)
	}

	total := len(records)
	if n, ok := toInt64(rec.Payload["total"]); ok && int(n) > total {
		total = int(n)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s record(s)", total, table)
	if total > len(records) {
		fmt.Fprintf(&b, ", showing %d", len(records))
	}
	b.WriteString(":\n")
	for i, r := range records {
		if i == fallbackRowLimit {
			fmt.Fprintf(&b, "...and %d more\n", len(records)-i)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, rowText(r))
	}
	return strings.TrimRight(b.String(), "\n")
}

// rowText lists fields with id first and the rest in key order
func rowText(r pkg.Record) string {
	keys := make([]string, 0, len(r))
	for k, v := range r {
		if k == "id" || v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	if id := r.ID(); id != 0 {
		parts = append(parts, fmt.Sprintf("id: %d", id))
	}
	for _, k := range keys {
		parts = append(parts, k+": "+services.Truncate(valueText(r[k]), 80))
	}
	return strings.Join(parts, ", ")
}

func valueText(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

// RenderActionResults describes executed tool calls without the model
func RenderActionResults(results []*ActionResult) string {
	if len(results) == 0 {
		return "Action completed."
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, actionLine(r))
	}
	return strings.Join(lines, "\n")
}

var pastTense = map[Operation]string{OpCreate: "created", OpUpdate: "updated", OpDelete: "deleted"}

func actionLine(r *ActionResult) string {
	title := r.ToolName
	if op, entity, ok := strings.Cut(r.ToolName, "_"); ok && pastTense[Operation(op)] != "" {
		title = pastTense[Operation(op)] + " " + entity
	}
	switch r.Status {
	case ActionCancelled:
		return ActionCancelledReply
	case ActionConfirmationRequired:
		return ConfirmationPrompt(r.ToolName)
	case ActionError:
		return "Error: " + r.Error
	}

	if r.Operation == OpDelete || len(r.Records) == 0 {
		if len(r.RecordIDs) > 0 {
			return fmt.Sprintf("Successfully %s (ID: %s)", title, joinIDs(r.RecordIDs))
		}
		return "Successfully " + title
	}
	if len(r.Records) == 1 {
		if name := recordName(r.Records[0]); name != "" {
			return fmt.Sprintf("Successfully %s: %s (ID: %d)", title, name, r.Records[0].ID())
		}
	}
	ids := make([]int64, 0, len(r.Records))
	for _, rec := range r.Records {
		ids = append(ids, rec.ID())
	}
	return fmt.Sprintf("Successfully %s (ID: %s)", title, joinIDs(ids))
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
