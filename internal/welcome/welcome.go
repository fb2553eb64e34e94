// Package welcome renders the signup welcome email.
//
// The subject and plain-text parts go through text/template, the HTML part
// through html/template so merge fields are escaped. The built-in template
// mirrors the hosted marketing template; deployments can override any part
// from files.
package welcome

import (
	"bytes"
	"fmt"
	htmlTemplate "html/template"
	"net/url"
	"os"
	"strings"
	textTemplate "text/template"
)

// Template holds the three renderable parts of the welcome message.
type Template struct {
	Subject string
	HTML    string
	Text    string
}

// Data carries the merge fields available to the template.
type Data struct {
	Email          string
	FirstName      string
	LastName       string
	FullName       string
	Greeting       string // FirstName or "there"
	SiteName       string
	BaseURL        string
	UnsubscribeURL string
}

// RenderResult contains the rendered message parts.
type RenderResult struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer renders welcome emails for one site.
type Renderer struct {
	tmpl     Template
	siteName string
	baseURL  string
}

// NewRenderer creates a renderer with the built-in template.
func NewRenderer(siteName, baseURL string) *Renderer {
	return &Renderer{
		tmpl:     defaultTemplate(),
		siteName: siteName,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// LoadPart replaces one template part ("subject", "html", "text") from a file.
func (r *Renderer) LoadPart(part, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read template part: %w", err)
	}
	switch part {
	case "subject":
		r.tmpl.Subject = strings.TrimSpace(string(data))
	case "html":
		r.tmpl.HTML = string(data)
	case "text":
		r.tmpl.Text = string(data)
	default:
		return fmt.Errorf("unknown template part %q", part)
	}
	return nil
}

// UnsubscribeURL builds the one-click unsubscribe link for a recipient.
func (r *Renderer) UnsubscribeURL(email string) string {
	return r.baseURL + "/unsubscribe?email=" + url.QueryEscape(email)
}

// Render renders the welcome message for one recipient.
func (r *Renderer) Render(email, firstName, lastName string) (*RenderResult, error) {
	greeting := firstName
	if greeting == "" {
		greeting = "there"
	}

	data := Data{
		Email:          email,
		FirstName:      firstName,
		LastName:       lastName,
		FullName:       strings.TrimSpace(firstName + " " + lastName),
		Greeting:       greeting,
		SiteName:       r.siteName,
		BaseURL:        r.baseURL,
		UnsubscribeURL: r.UnsubscribeURL(email),
	}

	result := &RenderResult{}

	subject, err := renderText("subject", r.tmpl.Subject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	result.Subject = subject

	if r.tmpl.HTML != "" {
		html, err := renderHTML("html", r.tmpl.HTML, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render html: %w", err)
		}
		result.HTML = html
	}

	if r.tmpl.Text != "" {
		text, err := renderText("text", r.tmpl.Text, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render text: %w", err)
		}
		result.Text = text
	}

	return result, nil
}

// Validate checks that all template parts parse.
func (r *Renderer) Validate() error {
	if _, err := textTemplate.New("subject").Parse(r.tmpl.Subject); err != nil {
		return fmt.Errorf("invalid subject template: %w", err)
	}
	if r.tmpl.HTML != "" {
		if _, err := htmlTemplate.New("html").Parse(r.tmpl.HTML); err != nil {
			return fmt.Errorf("invalid html template: %w", err)
		}
	}
	if r.tmpl.Text != "" {
		if _, err := textTemplate.New("text").Parse(r.tmpl.Text); err != nil {
			return fmt.Errorf("invalid text template: %w", err)
		}
	}
	return nil
}

func renderText(name, tmplStr string, data Data) (string, error) {
	t, err := textTemplate.New(name).Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderHTML(name, tmplStr string, data Data) (string, error) {
	t, err := htmlTemplate.New(name).Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
