package app

import (
	"bytes"
	"html/template"

	core "github.com/crmkit/crm_services/internal/core_domain"
)

var bodyTemplate = template.Must(template.New("body").Parse(`<!DOCTYPE html>
<html>
<body>
<h1>{{.Subject}}</h1>
<ul>
{{- range .Contents}}
<li><a href="{{.URL}}">{{.Name}}</a>{{with .Kind}} ({{.}}){{end}}{{with .Description}}<p>{{.}}</p>{{end}}</li>
{{- end}}
</ul>
</body>
</html>
`))

// HTMLRenderer renders contents as an HTML list of links.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(subject string, contents []core.Content) (string, error) {
	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, struct {
		Subject  string
		Contents []core.Content
	}{subject, contents})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
