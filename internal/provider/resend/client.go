// Package resend adapts the Resend audiences and emails APIs to the
// provider contract.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dripdrop/launchsite/internal/provider"
	"github.com/dripdrop/launchsite/internal/welcome"
)

const defaultBaseURL = "https://api.resend.com"

// Config contains Resend settings, normally sourced from environment
// variables (RESEND_API_KEY and friends).
type Config struct {
	APIKey     string
	FromEmail  string
	FromName   string
	AudienceID string // optional audience for contact management
	BaseURL    string // API base, overridable for tests
}

// Client is a Resend API adapter.
type Client struct {
	cfg        Config
	renderer   *welcome.Renderer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Resend adapter.
func NewClient(cfg Config, renderer *welcome.Renderer, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:      cfg,
		renderer: renderer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Name implements provider.Provider.
func (c *Client) Name() string { return "resend" }

type contactResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ContactExists fetches the contact from the configured audience. With no
// audience configured, or on any transport/API error, the contact is treated
// as absent.
func (c *Client) ContactExists(ctx context.Context, email string) bool {
	if c.cfg.AudienceID == "" {
		return false
	}

	path := "/audiences/" + url.PathEscape(c.cfg.AudienceID) + "/contacts/" + url.PathEscape(email)
	var resp contactResponse
	status, err := c.request(ctx, http.MethodGet, path, nil, &resp)
	if err != nil {
		c.logger.Warn("contact existence check failed", "provider", c.Name(), "error", err)
		return false
	}
	return status == http.StatusOK && resp.ID != ""
}

type createContactRequest struct {
	Email        string `json:"email"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Unsubscribed bool   `json:"unsubscribed"`
}

// UpsertContact adds the contact to the configured audience. Without an
// audience the step degrades to a no-op, matching signup being usable as a
// send-only integration.
func (c *Client) UpsertContact(ctx context.Context, contact provider.Contact) provider.ContactResult {
	if c.cfg.AudienceID == "" {
		return provider.ContactResult{
			Success: true,
			Message: "No audience configured - contact management skipped",
		}
	}

	req := createContactRequest{
		Email:        contact.Email,
		FirstName:    contact.FirstName,
		LastName:     contact.LastName,
		Unsubscribed: contact.Unsubscribed,
	}

	var resp contactResponse
	path := "/audiences/" + url.PathEscape(c.cfg.AudienceID) + "/contacts"
	status, err := c.request(ctx, http.MethodPost, path, req, &resp)
	if err != nil {
		c.logger.Error("contact upsert failed", "provider", c.Name(), "error", err)
		return provider.ContactResult{
			Success: false,
			Message: fmt.Sprintf("Failed to add to audience: %v", err),
		}
	}

	if status < 200 || status >= 300 {
		c.logger.Error("contact upsert rejected", "provider", c.Name(), "status", status)
		return provider.ContactResult{
			Success: false,
			Message: fmt.Sprintf("Failed to add to audience: status %d", status),
		}
	}

	return provider.ContactResult{
		Success:   true,
		Message:   "Successfully added to audience!",
		ContactID: resp.ID,
	}
}

type sendEmailRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type sendEmailResponse struct {
	ID string `json:"id"`
}

// SendWelcomeEmail dispatches the inline-rendered welcome message.
func (c *Client) SendWelcomeEmail(ctx context.Context, data provider.WelcomeEmailData) provider.EmailResult {
	rendered, err := c.renderer.Render(data.Email, data.FirstName, data.LastName)
	if err != nil {
		c.logger.Error("welcome email render failed", "provider", c.Name(), "error", err)
		return provider.EmailResult{
			Success: false,
			Message: "Failed to send welcome email. Please try again.",
		}
	}

	unsubscribeURL := c.renderer.UnsubscribeURL(data.Email)
	req := sendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.cfg.FromName, c.cfg.FromEmail),
		To:      []string{data.Email},
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + unsubscribeURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	}

	var resp sendEmailResponse
	status, err := c.request(ctx, http.MethodPost, "/emails", req, &resp)
	if err != nil {
		c.logger.Error("welcome email send failed", "provider", c.Name(), "error", err)
		return provider.EmailResult{
			Success: false,
			Message: "Failed to send welcome email. Please try again.",
		}
	}

	if status < 200 || status >= 300 {
		c.logger.Error("welcome email rejected", "provider", c.Name(), "status", status)
		return provider.EmailResult{
			Success: false,
			Message: "Failed to send welcome email. Please try again.",
		}
	}

	return provider.EmailResult{
		Success:   true,
		Message:   "Welcome email sent successfully!",
		MessageID: resp.ID,
	}
}

// request performs a JSON request against the Resend API.
func (c *Client) request(ctx context.Context, method, path string, body any, result any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if result != nil && resp.StatusCode != http.StatusNoContent {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return resp.StatusCode, fmt.Errorf("read response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, result); err != nil {
				return resp.StatusCode, fmt.Errorf("decode response: %w", err)
			}
		}
	}

	return resp.StatusCode, nil
}
