package sendgrid

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
		APIKey:    "test-key",
		FromEmail: "hello@dripdrop.social",
		FromName:  "DripDrop",
		ListID:    "list-123",
		BaseURL:   srv.URL,
	}
	renderer := welcome.NewRenderer("DripDrop", "https://dripdrop.social")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(cfg, renderer, logger)
}

func TestContactExists(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"found", http.StatusOK, `{"result":{"user@example.com":{"contact":{}}}}`, true},
		{"not found", http.StatusOK, `{"result":{}}`, false},
		{"auth error fails open", http.StatusUnauthorized, `{"errors":[{"message":"bad key"}]}`, false},
		{"server error fails open", http.StatusInternalServerError, ``, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v3/marketing/contacts/search/emails" {
					t.Errorf("path = %q", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
					t.Errorf("Authorization = %q", got)
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))

			if got := c.ContactExists(context.Background(), "user@example.com"); got != tc.want {
				t.Errorf("ContactExists() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUpsertContact(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v3/marketing/contacts" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req upsertContactsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contacts) != 1 || req.Contacts[0].Email != "user@example.com" {
			t.Errorf("contacts = %+v", req.Contacts)
		}
		if len(req.ListIDs) != 1 || req.ListIDs[0] != "list-123" {
			t.Errorf("list_ids = %v", req.ListIDs)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"job_id":"job-1"}`))
	}))

	result := c.UpsertContact(context.Background(), provider.Contact{
		Email:     "user@example.com",
		FirstName: "Ann",
	})

	if !result.Success {
		t.Fatalf("Success = false, message = %q", result.Message)
	}
	if result.ContactID != "job-1" {
		t.Errorf("ContactID = %q, want %q", result.ContactID, "job-1")
	}
}

func TestUpsertContactPermissionError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"message":"access forbidden"}]}`))
	}))

	result := c.UpsertContact(context.Background(), provider.Contact{Email: "user@example.com"})

	if result.Success {
		t.Fatal("Success = true for 403 response")
	}
	if !strings.Contains(result.Message, "Marketing Permissions") {
		t.Errorf("Message = %q, want permission guidance", result.Message)
	}
}

func TestUpsertContactServerError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	result := c.UpsertContact(context.Background(), provider.Contact{Email: "user@example.com"})
	if result.Success {
		t.Fatal("Success = true for 500 response")
	}
}

func TestSendWelcomeEmailInline(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req mailSendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.TemplateID != "" {
			t.Errorf("TemplateID = %q, want empty for inline send", req.TemplateID)
		}
		if len(req.Content) != 2 {
			t.Fatalf("Content parts = %d, want 2", len(req.Content))
		}
		if !strings.Contains(req.Content[1].Value, "Hello Ann!") {
			t.Error("HTML content missing greeting")
		}
		if req.Headers["List-Unsubscribe-Post"] != "List-Unsubscribe=One-Click" {
			t.Errorf("headers = %v", req.Headers)
		}
		if !strings.Contains(req.Headers["List-Unsubscribe"], "email=user%40example.com") {
			t.Errorf("List-Unsubscribe = %q", req.Headers["List-Unsubscribe"])
		}
		if !req.TrackingSettings.OpenTracking.Enable || !req.TrackingSettings.ClickTracking.Enable {
			t.Error("tracking settings not enabled")
		}
		w.Header().Set("X-Message-Id", "msg-42")
		w.WriteHeader(http.StatusAccepted)
	}))

	result := c.SendWelcomeEmail(context.Background(), provider.WelcomeEmailData{
		Email:     "user@example.com",
		FirstName: "Ann",
		FullName:  "Ann Smith",
	})

	if !result.Success {
		t.Fatalf("Success = false, message = %q", result.Message)
	}
	if result.MessageID != "msg-42" {
		t.Errorf("MessageID = %q, want %q", result.MessageID, "msg-42")
	}
}

func TestSendWelcomeEmailTemplate(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mailSendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.TemplateID != "d-template" {
			t.Errorf("TemplateID = %q", req.TemplateID)
		}
		data := req.Personalizations[0].DynamicTemplateData
		if data["first_name"] != "Ann" {
			t.Errorf("first_name = %v", data["first_name"])
		}
		if _, ok := data["unsubscribe_url"]; !ok {
			t.Error("dynamic data missing unsubscribe_url")
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	c.cfg.TemplateID = "d-template"

	result := c.SendWelcomeEmail(context.Background(), provider.WelcomeEmailData{
		Email:     "user@example.com",
		FirstName: "Ann",
	})
	if !result.Success {
		t.Fatalf("Success = false, message = %q", result.Message)
	}
}

func TestSendWelcomeEmailFailure(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"bad from address"}]}`))
	}))

	result := c.SendWelcomeEmail(context.Background(), provider.WelcomeEmailData{Email: "user@example.com"})
	if result.Success {
		t.Fatal("Success = true for 400 response")
	}
	if result.Message != "Failed to send welcome email. Please try again." {
		t.Errorf("Message = %q, provider detail must not leak", result.Message)
	}
}
