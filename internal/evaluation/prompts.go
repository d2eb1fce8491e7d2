package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

const technicalSystem = `You are a senior software engineer grading a live coding interview.
Judge correctness, code quality and problem-solving approach. Be specific and
fair. Scores are 0 (no working solution) to 10 (exceptional).`

const communicationSystem = `You are an experienced interviewer grading how a candidate communicated
during a live coding interview. Judge clarity of explanation, how they reasoned
aloud and how they collaborated with the interviewer. Scores are 0 to 10.`

const decisionSystem = `You are the hiring committee for a software engineering role. Combine
the technical and communication evaluations into one recommendation:
"hire", "no_hire" or "consider". overall_score is 0 to 10.`

const technicalSchema = `{
  "type": "object",
  "required": ["score", "code_quality", "problem_solving", "strengths", "areas_for_improvement"],
  "properties": {
    "score": {"type": "number", "minimum": 0, "maximum": 10},
    "code_quality": {"type": "string"},
    "problem_solving": {"type": "string"},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "areas_for_improvement": {"type": "array", "items": {"type": "string"}}
  }
}`

const communicationSchema = `{
  "type": "object",
  "required": ["score", "clarity", "collaboration", "strengths", "areas_for_improvement"],
  "properties": {
    "score": {"type": "number", "minimum": 0, "maximum": 10},
    "clarity": {"type": "string"},
    "collaboration": {"type": "string"},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "areas_for_improvement": {"type": "array", "items": {"type": "string"}}
  }
}`

const decisionSchema = `{
  "type": "object",
  "required": ["recommendation", "overall_score", "reasoning", "next_steps"],
  "properties": {
    "recommendation": {"type": "string", "enum": ["hire", "no_hire", "consider"]},
    "overall_score": {"type": "number", "minimum": 0, "maximum": 10},
    "reasoning": {"type": "string", "minLength": 1},
    "next_steps": {"type": "array", "items": {"type": "string"}}
  }
}`

const technicalTemplate = `## Problem
{{ .ProblemStatement }}

## Candidate solution{{ if .Language }} ({{ .Language }}){{ end }}
` + "```" + `
{{ .Code }}
` + "```" + `
{{ if .Candidate.Seniority }}
The candidate is interviewing at {{ .Candidate.Seniority }} level{{ if .Candidate.Position }} for {{ .Candidate.Position }}{{ end }}.
{{ end }}`

const communicationTemplate = `## Problem
{{ .ProblemStatement }}

## Transcript
{{ range .Transcript }}[{{ offset .OffsetSeconds }}] {{ .Speaker }}: {{ .Text }}
{{ end }}`

const decisionTemplate = `## Candidate
{{ .Candidate.Name }}{{ if .Candidate.Position }}, applying for {{ .Candidate.Position }}{{ end }}

## Technical evaluation
{{ toJSON .Technical }}

## Communication evaluation
{{ toJSON .Communication }}`

var promptFuncs = template.FuncMap{
	"offset": func(sec float64) string {
		s := int(sec)
		return fmt.Sprintf("%02d:%02d", s/60, s%60)
	},
	"toJSON": func(v interface{}) (string, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		return string(b), err
	},
}

var (
	technicalPrompt     = template.Must(template.New("technical").Funcs(promptFuncs).Parse(technicalTemplate))
	communicationPrompt = template.Must(template.New("communication").Funcs(promptFuncs).Parse(communicationTemplate))
	decisionPrompt      = template.Must(template.New("decision").Funcs(promptFuncs).Parse(decisionTemplate))
)

func render(tmpl *template.Template, ec Context) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ec); err != nil {
		return "", fmt.Errorf("evaluation: render %s prompt: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
