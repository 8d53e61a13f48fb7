package jobs

import (
	"fmt"
	"html"
	"strings"
)

const (
	reminderSubjectTemplate = "Reminder: {{document_title}} expires in {{hours_remaining}} hours"

	reminderTextTemplate = `Hello {{recipient_name}},

This is a reminder that "{{document_title}}" from {{company_name}} is still waiting for your signature.
It expires in {{hours_remaining}} hours, on {{expires_at}}.

Review and sign: {{sign_url}}
`

	reminderHTMLTemplate = `<p>Hello {{recipient_name}},</p>
<p>This is a reminder that <strong>{{document_title}}</strong> from {{company_name}} is still waiting for your signature.</p>
<p>It expires in <strong>{{hours_remaining}} hours</strong>, on {{expires_at}}.</p>
<p><a href="{{sign_url}}">Review and sign</a></p>
`
)

// applyVariables replaces template variables with actual values
func applyVariables(template string, variables map[string]string) string {
	result := template
	for key, value := range variables {
		placeholder := fmt.Sprintf("{{%s}}", key)
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

// applyHTMLVariables is applyVariables with every value HTML-escaped
func applyHTMLVariables(template string, variables map[string]string) string {
	escaped := make(map[string]string, len(variables))
	for k, v := range variables {
		escaped[k] = html.EscapeString(v)
	}
	return applyVariables(template, escaped)
}
