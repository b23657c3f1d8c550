package agents

import (
	"encoding/json"
	"strings"
	"text/template"
)

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"join":  strings.Join,
	"quote": jsonQuote,
}).Parse(`
{{define "counter_system"}}You are the front-line staff member at the {{.JobType}} counter of {{.Workplace}}.
Treat every customer politely and help them reach what they came for.
{{- if .Language}}
Answer in {{.Language}} unless the customer clearly uses another language.
{{- end}}
You can ask these colleagues for help: {{join .Collaborators ", "}}.
- broker: works out which procedure the customer needs from the task catalog.
- reviewer: checks a document the customer submitted against the reference for the active procedure.{{end}}

{{define "counter_analyze"}}The customer just said:
"""
{{.Text}}
"""
{{- if .ImagePath}}
The customer also submitted the first attached image.
{{- end}}

Analyze the situation. Decide whether a colleague must act before you reply.
Answer with a single JSON block in this form:
` + "```json" + `
{
  "desire": "what the customer wants",
  "current_situation": "where the conversation stands",
  "language": "language the customer uses",
  "own_thought": "your private reasoning",
  "need_help_colleague": "broker | reviewer | none"
}
` + "```" + `{{end}}

{{define "counter_respond"}}The customer said:
"""
{{.Text}}
"""

Using everything in the conversation so far, including anything your colleagues reported, write your reply to the customer.
Answer with a single JSON block in this form:
` + "```json" + `
{
  "response": "what you say to the customer",
  "language": "language of the response",
  "own_thought": "your private reasoning"
}
` + "```" + `{{end}}

{{define "broker_system"}}You support the {{.JobType}} counter of {{.Workplace}} by matching customer requests to the procedures in the task catalog.{{end}}

{{define "broker_identify"}}Task catalog:
{{range .Tasks}}{{.ID}}: {{.Name}}{{if .Content}} - {{.Content}}{{end}}
{{end}}
The customer said:
"""
{{.Text}}
"""

Pick the catalog entry that matches the request. Use "none" when nothing fits yet.
Answer with a single JSON block in this form:
` + "```json" + `
{
  "task_number": 1,
  "requirements": "what the customer must provide",
  "status": "how far the customer has come",
  "next_action": "what should happen next",
  "own_thought": "your private reasoning"
}
` + "```" + `{{end}}

{{define "reviewer_system"}}You review the work of the {{.JobType}} counter of {{.Workplace}}.
Today is {{.Date}}.{{end}}

{{define "reviewer_correctness"}}Procedure: {{.Task.Name}}
{{- if .Task.Content}}
{{.Task.Content}}
{{- end}}

{{if .Reference}}The first attached image is the reference document for this procedure. The second attached image is what the customer submitted.{{else}}The attached image is what the customer submitted. No reference document exists; judge it against the procedure description.{{end}}
Decide whether the submission is complete and correct.
Answer with a single JSON block in this form:
` + "```json" + `
{
  "is_approved": 1,
  "correctness_score": 0,
  "reason": "why",
  "need_correction": "what must be fixed, if anything"
}
` + "```" + `
Use 1 for approved and 0 for rejected. correctness_score ranges from 0 to 100.{{end}}

{{define "reviewer_score"}}The conversation above is finished. Score the counter's handling of it on each indicator below.
{{range .Indicators}}- {{.Name}}{{if .Definition}}: {{.Definition}}{{end}}
{{end}}
Answer with a single JSON block in this form:
` + "```json" + `
{
  "indicators": {
{{- range $i, $ind := .Indicators}}{{if $i}},{{end}}
    {{quote $ind.Name}}: {"score": 0, "reason": "why", "need_correction": "what to improve"}
{{- end}}
  },
  "total_score": 0,
  "total_reason": "overall assessment"
}
` + "```" + `{{end}}

{{define "observer_system"}}You silently observe the {{.JobType}} counter of {{.Workplace}} and decide whether the conversation with the customer is still going.{{end}}

{{define "observer_continue"}}{{if .TaskContext}}Active procedure: {{.TaskContext}}
{{end}}Look at the latest exchange. If the customer's business is finished, or they said goodbye, the conversation is over.
Answer with a single JSON block in this form:
` + "```json" + `
{
  "is_need_of_continuation": 1,
  "reason": "why",
  "own_thought": "your private reasoning"
}
` + "```" + `
Use 1 to continue and 0 to end.{{end}}
`))

// jsonQuote renders s as a JSON string literal.
func jsonQuote(s string) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func render(name string, data any) string {
	var sb strings.Builder
	if err := prompts.ExecuteTemplate(&sb, name, data); err != nil {
		// templates are fixed at build time, so this is a programming error
		panic(err)
	}
	return strings.TrimSpace(sb.String())
}
