package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
)

// EmailContent is a subject and body pair produced by the model or a template
type EmailContent struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

var (
	draftObject  = regexp.MustCompile(`(?s)\{[^{}]*"subject"[^{}]*"body"[^{}]*\}`)
	subjectLine  = regexp.MustCompile(`Subject:\s*(.+?)\n`)
	bodySection  = regexp.MustCompile(`(?s)Body:\s*(.+?)(?:\nNote:|$)`)
	markdownWrap = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
)

// ParseEmailDraft extracts the JSON subject/body object from a model reply
func ParseEmailDraft(content string) (*EmailContent, error) {
	content = strings.TrimSpace(content)
	if m := markdownWrap.FindStringSubmatch(content); m != nil {
		content = m[1]
	}

	candidate := content
	if !strings.HasPrefix(candidate, "{") {
		candidate = draftObject.FindString(content)
	}
	if candidate == "" {
		return nil, fmt.Errorf("no email JSON object in model reply")
	}

	var email EmailContent
	if err := sonic.UnmarshalString(candidate, &email); err != nil {
		return nil, fmt.Errorf("error parsing email JSON: %w", err)
	}
	email.Subject = strings.TrimSpace(email.Subject)
	email.Body = strings.TrimSpace(email.Body)
	if email.Subject == "" || email.Body == "" {
		return nil, fmt.Errorf("email JSON is missing subject or body")
	}
	return &email, nil
}

// ExtractSubjectBody reads "Subject:" and "Body:" sections from a rendered draft
func ExtractSubjectBody(text string) (*EmailContent, bool) {
	subject := subjectLine.FindStringSubmatch(text)
	body := bodySection.FindStringSubmatch(text)
	if subject == nil || body == nil {
		return nil, false
	}
	email := &EmailContent{
		Subject: strings.TrimSpace(subject[1]),
		Body:    strings.TrimSpace(body[1]),
	}
	if email.Subject == "" || email.Body == "" {
		return nil, false
	}
	return email, true
}

// ParseToolArguments decodes a tool call's JSON arguments; empty input is an empty map
func ParseToolArguments(args string) (map[string]any, error) {
	out := map[string]any{}
	if strings.TrimSpace(args) == "" {
		return out, nil
	}
	if err := sonic.UnmarshalString(args, &out); err != nil {
		return nil, fmt.Errorf("error parsing tool arguments: %w", err)
	}
	return out, nil
}
