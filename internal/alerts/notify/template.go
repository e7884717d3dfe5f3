package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Pasture Alert: {{.SeverityLabel}}]
Farm: {{.Farm}}
Zone: {{.Zone}}
Sensor: {{.SensorID}}
Type: {{.Type}}
Distance: {{.Distance}}
Threshold: {{.Threshold}}
Time: {{.Time}}
{{.Message}}`

// TemplateData provides fields for rendering alert notification content.
type TemplateData struct {
	Farm          string
	FarmID        string
	Zone          string
	ZoneID        string
	SensorID      string
	Type          string
	Severity      string
	SeverityLabel string
	Distance      string
	Threshold     string
	Time          string
	Message       string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to
// DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
