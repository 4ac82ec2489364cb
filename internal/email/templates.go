package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// layout is the shared chrome every message body is rendered into.
type layout struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type inspectionUpdateEmailData struct {
	layout
	Update InspectionUpdate
}

type disputeUpdateEmailData struct {
	layout
	Update DisputeUpdate
}

const (
	pageInspectionUpdate = "inspection_update.html"
	pageDisputeUpdate    = "dispute_update.html"
)

// pages pairs each body with its own copy of base.html so their block
// definitions never collide.
var pages = map[string]*template.Template{
	pageInspectionUpdate: mustParsePage(pageInspectionUpdate),
	pageDisputeUpdate:    mustParsePage(pageDisputeUpdate),
}

func mustParsePage(name string) *template.Template {
	return template.Must(template.New("base.html").ParseFS(templateFS, "templates/base.html", "templates/"+name))
}

func render(page string, data any) (string, error) {
	tmpl, ok := pages[page]
	if !ok {
		return "", fmt.Errorf("email: unknown template %s", page)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("email: render %s: %w", page, err)
	}
	return buf.String(), nil
}
