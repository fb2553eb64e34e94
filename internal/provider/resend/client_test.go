package resend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dripdrop/launchsite/internal/provider"
	"github.com/dripdrop/launchsite/internal/welcome"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		APIKey:     "re_test",
		FromEmail:  "hello@dripdrop.social",
		FromName:   "DripDrop",
		AudienceID: "aud-1",
		BaseURL:    srv.URL,
	}
	renderer := welcome.NewRenderer("DripDrop", "https://dripdrop.social")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(cfg, renderer, logger)
}

func TestContactExists(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audiences/aud-1/contacts/user@example.com" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"id":"c-1","email":"user@example.com"}`))
	}))

	if !c.ContactExists(context.Background(), "user@example.com") {
		t.Error("ContactExists() = false, want true")
	}
}

func TestContactExistsNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"name":"not_found","message":"Contact not found"}`))
	}))

	if c.ContactExists(context.Background(), "user@example.com") {
		t.Error("ContactExists() = true for 404")
	}
}

func TestContactExistsNoAudience(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without an audience")
	}))
	c.cfg.AudienceID = ""

	if c.ContactExists(context.Background(), "user@example.com") {
		t.Error("ContactExists() = true without audience")
	}
}

func TestUpsertContact(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/audiences/aud-1/contacts" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req createContactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Email != "user@example.com" || req.Unsubscribed {
			t.Errorf("request = %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"c-2"}`))
	}))

	result := c.UpsertContact(context.Background(), provider.Contact{
		Email:     "user@example.com",
		FirstName: "Ann",
	})

	if !result.Success {
		t.Fatalf("Success = false, message = %q", result.Message)
	}
	if result.ContactID != "c-2" {
		t.Errorf("ContactID = %q", result.ContactID)
	}
}

func TestUpsertContactNoAudience(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without an audience")
	}))
	c.cfg.AudienceID = ""

	result := c.UpsertContact(context.Background(), provider.Contact{Email: "user@example.com"})
	if !result.Success {
		t.Errorf("Success = false, message = %q", result.Message)
	}
	if !strings.Contains(result.Message, "skipped") {
		t.Errorf("Message = %q, want skip notice", result.Message)
	}
}

func TestUpsertContactFailure(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	result := c.UpsertContact(context.Background(), provider.Contact{Email: "user@example.com"})
	if result.Success {
		t.Fatal("Success = true for 422 response")
	}
}

func TestSendWelcomeEmail(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req sendEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.From != "DripDrop <hello@dripdrop.social>" {
			t.Errorf("From = %q", req.From)
		}
		if len(req.To) != 1 || req.To[0] != "user@example.com" {
			t.Errorf("To = %v", req.To)
		}
		if !strings.Contains(req.HTML, "Hello Ann!") {
			t.Error("HTML missing greeting")
		}
		if !strings.Contains(req.Headers["List-Unsubscribe"], "email=user%40example.com") {
			t.Errorf("List-Unsubscribe = %q", req.Headers["List-Unsubscribe"])
		}
		w.Write([]byte(`{"id":"email-7"}`))
	}))

	result := c.SendWelcomeEmail(context.Background(), provider.WelcomeEmailData{
		Email:     "user@example.com",
		FirstName: "Ann",
	})

	if !result.Success {
		t.Fatalf("Success = false, message = %q", result.Message)
	}
	if result.MessageID != "email-7" {
		t.Errorf("MessageID = %q", result.MessageID)
	}
}

func TestSendWelcomeEmailFailure(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"name":"validation_error","message":"domain is not verified"}`))
	}))

	result := c.SendWelcomeEmail(context.Background(), provider.WelcomeEmailData{Email: "user@example.com"})
	if result.Success {
		t.Fatal("Success = true for 403 response")
	}
	if result.Message != "Failed to send welcome email. Please try again." {
		t.Errorf("Message = %q, provider detail must not leak", result.Message)
	}
}
