package core

import (
	"fmt"
	"strings"
	"time"
)

const classifyPromptHeader = `You are an email assistant. For every email listed below, produce exactly one JSON object with these fields:
- id: string (copied verbatim from the email)
- category: one of "Important", "Promotions", "Social", "Spam", "General"
- summary: one sentence summarizing the email
- requiresReply: boolean (true if the email warrants a reply)
- draftReply: two sentences of suggested reply if requiresReply is true, otherwise an empty string
- appliedLabels: array of label names, containing each custom label below whose rule matches the email (empty array if none match)

Respond only with a JSON array of these objects, one per email, and nothing else.`

const extractionPromptHeader = `You are an email assistant. The current date and time is %s. For every email listed below, produce exactly one JSON object with these fields:
- id: string (copied verbatim from the email)
- tasks: array of action items found in the email (empty array if none), each an object with:
  - title: short imperative description of the action
  - date: the due date as written in the email, or the literal string "No due date"
  - isUrgent: boolean
  - isPastDue: boolean (true if the due date is before the current date)
- appliedLabels: array of label names, containing each custom label below whose rule matches the email (empty array if none match)

Respond only with a JSON array of these objects, one per email, and nothing else.`

const noCustomLabels = "No custom labels are defined."

// buildClassifyPrompt enumerates every uncached email by id, sender and
// sanitized content, together with the user's custom-label rules.
func buildClassifyPrompt(emails []EmailMessage, sanitized map[string]string, labels []CustomLabel) string {
	var b strings.Builder
	b.WriteString(classifyPromptHeader)
	writeCustomLabels(&b, labels)
	writeEmails(&b, emails, sanitized)
	return b.String()
}

// buildExtractionPrompt includes the current date/time so the model can
// resolve due dates and compute past-due status.
func buildExtractionPrompt(emails []EmailMessage, sanitized map[string]string, labels []CustomLabel, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, extractionPromptHeader, now.Format(time.RFC1123))
	writeCustomLabels(&b, labels)
	writeEmails(&b, emails, sanitized)
	return b.String()
}

func writeCustomLabels(b *strings.Builder, labels []CustomLabel) {
	b.WriteString("\n\nCustom labels:\n")
	if len(labels) == 0 {
		b.WriteString(noCustomLabels)
		b.WriteString("\n")
		return
	}
	for _, label := range labels {
		fmt.Fprintf(b, "- %q: %s\n", label.Name, label.Prompt)
	}
}

func writeEmails(b *strings.Builder, emails []EmailMessage, sanitized map[string]string) {
	b.WriteString("\nEmails:\n")
	for i, email := range emails {
		fmt.Fprintf(b, "\n--- Email %d ---\nid: %s\nsender: %s\n", i+1, email.ID, email.Sender)
		if email.Subject != "" {
			fmt.Fprintf(b, "subject: %s\n", email.Subject)
		}
		fmt.Fprintf(b, "content: %s\n", sanitized[email.ID])
	}
}
