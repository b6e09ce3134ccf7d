package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Templates use FString substitution, so literal braces must not appear in
// the template text. Values are substituted verbatim.

const assistantPersona = `You are SalesBot, an assistant for the Edify CRM. You answer questions about CRM data such as leads, campaigns, tasks, trainers, learners, courses, batches, calls, emails, meetings, notes and messages.`

func getFormatterSystemTemplate() string {
	return assistantPersona + `

Answer the admin's question using ONLY the retrieved data below.
- Be concise and use short lists when there are several records.
- Never invent records or fields that are not present in the data.
- When the data is empty, say that no matching records were found.

Retrieved data from source "{source}":
{payload}`
}

func getActionSystemTemplate() string {
	return assistantPersona + `

You can create, update and delete CRM records with the provided tools.
- Call a tool only when the admin clearly asks for a change.
- Fill only the parameters the admin gave you; never guess required values.
- If a required value is missing, ask the admin for it instead of calling a tool.
- Use record ids from the retrieved data or the recent context; never invent an id.
{memory_context}

Retrieved data:
{payload}`
}

func getNarrationSystemTemplate() string {
	return assistantPersona + `

Tell the admin, in one or two sentences, what happened with the actions below. Do not add details that are not in the results.

Action results:
{results}`
}

func getLeadSummarySystemTemplate() string {
	return `You are a CRM assistant that writes short lead activity summaries for sales admins.
Use only the information provided. Keep it under 150 words and finish with one suggested next step.`
}

func getLeadSummaryUserTemplate() string {
	return `Lead Information:
{lead_info}

Activity Overview:
{activity_overview}

Recent Timeline:
{timeline}

Write the summary.`
}

func getEmailDraftSystemTemplate() string {
	return `You are a sales assistant writing professional, friendly emails to leads.
Return only a JSON object with exactly two string fields named "subject" and "body". Do not wrap it in markdown.`
}

func getEmailDraftUserTemplate() string {
	return `Template: {template}
Lead name: {lead_name}
Lead status: {lead_status}
Opportunity status: {opportunity_status}
Latest interaction: {latest_interaction}
Admin request: {question}`
}

// NewFormatterTemplate renders retrieved data into an answer, with prior turns as history
func NewFormatterTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(getFormatterSystemTemplate()),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{question}"),
	)
}

// NewActionTemplate lets the model pick a CRM tool for the admin's request
func NewActionTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(getActionSystemTemplate()),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{question}"),
	)
}

// NewNarrationTemplate turns executed action results into a reply
func NewNarrationTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(getNarrationSystemTemplate()),
		schema.UserMessage("{question}"),
	)
}

// NewLeadSummaryTemplate formats a lead and its activity
func NewLeadSummaryTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(getLeadSummarySystemTemplate()),
		schema.UserMessage(getLeadSummaryUserTemplate()),
	)
}

// NewEmailDraftTemplate asks for a subject and body as JSON
func NewEmailDraftTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(getEmailDraftSystemTemplate()),
		schema.UserMessage(getEmailDraftUserTemplate()),
	)
}

// Render formats a template and fails with a wrapped error
func Render(ctx context.Context, tpl prompt.ChatTemplate, vars map[string]any) ([]*schema.Message, error) {
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("error formatting prompt: %w", err)
	}
	return msgs, nil
}

// MemoryContext describes the entity the admin last touched so that "update it" resolves
func MemoryContext(entityType string, entityID int64, entityName string) string {
	if entityType == "" || entityID == 0 {
		return ""
	}
	ctx := fmt.Sprintf("\nRecent context:\nLast %s ID: %d\n", entityType, entityID)
	if entityName != "" {
		ctx += fmt.Sprintf("Last %s name: %s\n", entityType, entityName)
	}
	ctx += fmt.Sprintf("When the admin says 'update it', 'delete it' or 'change that', they mean this %s.", entityType)
	return ctx
}
