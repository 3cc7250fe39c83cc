package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Fields carries the lead attributes templates may reference.
type Fields struct {
	FirstName       string
	PropertyAddress string
	ServiceType     string
	PaymentURL      string
	BaseURL         string
}

type stageTemplateData struct {
	Fields
	Title string
}

type genericTemplateData struct {
	Title string
	Body  string
}

type w9TemplateData struct {
	Title         string
	FirstName     string
	HasAttachment bool
	DocumentURL   string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderGeneric wraps raw automation text in the branded shell. Used for
// email automations on stages without a dedicated template.
func RenderGeneric(body string) (string, error) {
	return renderEmailTemplate("generic.html", genericTemplateData{
		Title: SubjectGeneric,
		Body:  body,
	})
}

// RenderW9 renders the W9 delivery email sent when a contract is signed.
// When the PDF could not be fetched, HasAttachment is false and the email
// links to the hosted document instead.
func RenderW9(firstName, documentURL string, hasAttachment bool) (string, error) {
	return renderEmailTemplate("w9.html", w9TemplateData{
		Title:         subjectW9,
		FirstName:     firstName,
		HasAttachment: hasAttachment,
		DocumentURL:   documentURL,
	})
}

// W9Subject returns the subject line for the W9 delivery email.
func W9Subject() string {
	return subjectW9
}
