package notify

import (
	"bytes"
	"errors"
	"text/template"
)

// DefaultTemplate renders both single-station and reset events.
const DefaultTemplate = `[ANDON] {{ if eq .Event "stations_reset" -}}
[{{.Time}}] All stations were reset to normal ({{.ResetCount}} changed)
{{- else -}}
[{{.Time}}] Station {{.Station}}[{{.Code}}] changed status from [{{.OldStatus}}] to [{{.NewStatus}}]
{{- end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Event         string
	Station       string
	StationID     string
	Code          string
	OldStatus     string
	OldStatusCode string
	NewStatus     string
	NewStatusCode string
	Source        string
	Time          string
	ResetCount    int
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("andon-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notification template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
