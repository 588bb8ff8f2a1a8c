package usecase

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/omnific9/SchoolCalEnricher/internal/digest/domain"
	eventdomain "github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// SubjectPrefix starts the subject of every digest email
const SubjectPrefix = "Weekly School Digest — "

var bucketColors = map[eventdomain.Priority]string{
	eventdomain.PriorityMustDo:            "#D32F2F",
	eventdomain.PriorityHighlyRecommended: "#F57C00",
	eventdomain.PriorityOptional:          "#1976D2",
}

// Rendered is a digest ready to be mailed
type Rendered struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Renderer turns a digest into the email sent to parents
type Renderer struct {
	loc  *time.Location
	html *htmltemplate.Template
	text *texttemplate.Template
}

// NewRenderer parses the digest templates. Dates are shown in loc.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{loc: loc}
	funcs := map[string]interface{}{
		"when":  r.when,
		"due":   r.due,
		"color": func(p eventdomain.Priority) string { return bucketColors[p] },
		"upper": strings.ToUpper,
	}

	var err error
	r.html, err = htmltemplate.New("digest.html").Funcs(funcs).Parse(htmlDigest)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html template: %w", err)
	}
	r.text, err = texttemplate.New("digest.txt").Funcs(funcs).Parse(textDigest)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	return r, nil
}

// Subject returns the digest subject for the given day
func (r *Renderer) Subject(day time.Time) string {
	return SubjectPrefix + day.In(r.loc).Format("January 02, 2006")
}

// Render produces the subject and both bodies of d
func (r *Renderer) Render(d *domain.Digest) (Rendered, error) {
	var html, text bytes.Buffer
	if err := r.html.Execute(&html, d); err != nil {
		return Rendered{}, fmt.Errorf("failed to render html digest: %w", err)
	}
	if err := r.text.Execute(&text, d); err != nil {
		return Rendered{}, fmt.Errorf("failed to render text digest: %w", err)
	}
	return Rendered{
		Subject: r.Subject(d.GeneratedAt),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func (r *Renderer) when(item domain.Item) string {
	start := item.EventStart.In(r.loc)
	if item.AllDay {
		return start.Format("Mon, Jan 2")
	}
	return start.Format("Mon, Jan 2 at 3:04 PM")
}

func (r *Renderer) due(t *time.Time) string {
	if t == nil {
		return ""
	}
	local := t.In(r.loc)
	if local.Hour() == 0 && local.Minute() == 0 {
		return local.Format("Mon, Jan 2")
	}
	return local.Format("Mon, Jan 2 at 3:04 PM")
}

const htmlDigest = `<div style="font-family: Arial, Helvetica, sans-serif; max-width: 600px; margin: 0 auto; padding: 16px; color: #212121;">
<p>Hi everyone,</p>
{{- if .Empty}}
<p>{{.Message}} Enjoy the quiet week!</p>
{{- else}}
<p>Here is what is coming up at school this week.</p>
{{- range .Buckets}}
<div style="margin: 20px 0;">
<div style="background: {{color .Priority}}; color: #ffffff; padding: 8px 12px; font-weight: bold; border-radius: 4px;">{{upper .Label}}</div>
<ul style="padding-left: 20px; line-height: 1.5;">
{{- range .Items}}
<li style="margin: 8px 0;">{{if .Link}}<a href="{{.Link}}"><strong>{{.Description}}</strong></a>{{else}}<strong>{{.Description}}</strong>{{end}}
{{- if not .FromEvent}}<br><em>{{.EventTitle}}</em>{{end}}, <strong>{{when .}}</strong>
{{- if .Location}} ({{.Location}}){{end}}
{{- with due .Due}}<br>Due: <strong>{{.}}</strong>{{end}}</li>
{{- end}}
</ul>
</div>
{{- end}}
{{- end}}
<p>Best,<br>A Fellow Parent</p>
</div>
`

const textDigest = `Hi everyone,

{{if .Empty -}}
{{.Message}} Enjoy the quiet week!
{{- else -}}
Here is what is coming up at school this week.
{{- range .Buckets}}

== {{upper .Label}} ==
{{- range .Items}}
- {{.Description}}{{if not .FromEvent}} ({{.EventTitle}}){{end}}, {{when .}}{{if .Location}}, {{.Location}}{{end}}
{{- with due .Due}}
  Due: {{.}}{{end}}
{{- if .Link}}
  {{.Link}}{{end}}
{{- end}}
{{- end}}
{{- end}}

Best,
A Fellow Parent
`
