package welcome

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	r := NewRenderer("DripDrop", "https://dripdrop.social/")

	result, err := r.Render("ann@example.com", "Ann", "Smith")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if result.Subject != "Welcome to DripDrop - Get Started Today!" {
		t.Errorf("Subject = %q", result.Subject)
	}
	if !strings.Contains(result.HTML, "Hello Ann!") {
		t.Errorf("HTML missing greeting: %q", result.HTML[:120])
	}
	if !strings.Contains(result.HTML, "https://dripdrop.social/unsubscribe?email=ann%40example.com") {
		t.Error("HTML missing URL-encoded unsubscribe link")
	}
	if !strings.Contains(result.Text, "Welcome to DripDrop, Ann!") {
		t.Errorf("Text missing greeting: %q", result.Text[:80])
	}
	if !strings.Contains(result.Text, "ann@example.com") {
		t.Error("Text missing recipient address")
	}
}

func TestRenderNoFirstName(t *testing.T) {
	r := NewRenderer("DripDrop", "https://dripdrop.social")

	result, err := r.Render("user@example.com", "", "")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if !strings.Contains(result.HTML, "Hello there!") {
		t.Error("HTML should fall back to generic greeting")
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	r := NewRenderer("DripDrop", "https://dripdrop.social")

	// Name validation upstream rejects these, but the renderer must not
	// trust its input either.
	result, err := r.Render("user@example.com", "<b>Ann</b>", "")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if strings.Contains(result.HTML, "<b>Ann</b>") {
		t.Error("HTML part must escape merge fields")
	}
}

func TestUnsubscribeURL(t *testing.T) {
	r := NewRenderer("DripDrop", "https://dripdrop.social")

	got := r.UnsubscribeURL("a+b@example.com")
	want := "https://dripdrop.social/unsubscribe?email=a%2Bb%40example.com"
	if got != want {
		t.Errorf("UnsubscribeURL() = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	r := NewRenderer("DripDrop", "https://dripdrop.social")
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	r.tmpl.Subject = "{{.Broken"
	if err := r.Validate(); err == nil {
		t.Error("Validate() should fail on broken subject template")
	}
}
