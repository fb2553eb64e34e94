// Package sendgrid adapts the SendGrid v3 marketing and mail APIs to the
// provider contract.
package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dripdrop/launchsite/internal/provider"
	"github.com/dripdrop/launchsite/internal/welcome"
)

const defaultBaseURL = "https://api.sendgrid.com"

// Config contains SendGrid settings, normally sourced from environment
// variables (SENDGRID_API_KEY and friends).
type Config struct {
	APIKey     string
	FromEmail  string
	FromName   string
	ListID     string // optional contact list
	TemplateID string // optional hosted dynamic template
	BaseURL    string // API base, overridable for tests
}

// Client is a SendGrid API adapter.
type Client struct {
	cfg        Config
	renderer   *welcome.Renderer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new SendGrid adapter.
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
func (c *Client) Name() string { return "sendgrid" }

type searchEmailsRequest struct {
	Emails []string `json:"emails"`
}

type searchEmailsResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

// ContactExists probes the marketing contacts search endpoint. Any transport
// or API failure is reported as "does not exist" so the signup is re-added
// rather than dropped.
func (c *Client) ContactExists(ctx context.Context, email string) bool {
	var resp searchEmailsResponse
	status, err := c.request(ctx, http.MethodPost, "/v3/marketing/contacts/search/emails",
		searchEmailsRequest{Emails: []string{email}}, &resp)
	if err != nil {
		c.logger.Warn("contact existence check failed", "provider", c.Name(), "error", err)
		return false
	}
	if status != http.StatusOK {
		return false
	}
	return len(resp.Result) > 0
}

type upsertContactsRequest struct {
	Contacts []sendgridContact `json:"contacts"`
	ListIDs  []string          `json:"list_ids,omitempty"`
}

type sendgridContact struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type upsertContactsResponse struct {
	JobID  string          `json:"job_id"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

// UpsertContact unconditionally PUTs the contact to the marketing list.
// A 403 is translated into a distinguished permission message so operators
// know to fix API-key scopes.
func (c *Client) UpsertContact(ctx context.Context, contact provider.Contact) provider.ContactResult {
	req := upsertContactsRequest{
		Contacts: []sendgridContact{{
			Email:     contact.Email,
			FirstName: contact.FirstName,
			LastName:  contact.LastName,
		}},
	}
	if c.cfg.ListID != "" {
		req.ListIDs = []string{c.cfg.ListID}
	}

	var resp upsertContactsResponse
	status, err := c.request(ctx, http.MethodPut, "/v3/marketing/contacts", req, &resp)
	if err != nil {
		c.logger.Error("contact upsert failed", "provider", c.Name(), "error", err)
		return provider.ContactResult{
			Success: false,
			Message: fmt.Sprintf("Failed to add to contact list: %v", err),
		}
	}

	if status == http.StatusForbidden {
		msg := "SendGrid API key lacks contact management permissions. " +
			"Please update your API key scopes to include \"Marketing Permissions\" in SendGrid dashboard."
		c.logger.Error("contact upsert rejected", "provider", c.Name(), "status", status, "errors", string(resp.Errors))
		return provider.ContactResult{Success: false, Message: msg}
	}

	if status < 200 || status >= 300 {
		c.logger.Error("contact upsert rejected", "provider", c.Name(), "status", status, "errors", string(resp.Errors))
		return provider.ContactResult{
			Success: false,
			Message: fmt.Sprintf("Failed to add to contact list: status %d", status),
		}
	}

	return provider.ContactResult{
		Success:   true,
		Message:   "Successfully added to contact list!",
		ContactID: resp.JobID,
	}
}

type mailSendRequest struct {
	From             emailAddress      `json:"from"`
	Personalizations []personalization `json:"personalizations"`
	Subject          string            `json:"subject,omitempty"`
	Content          []mailContent     `json:"content,omitempty"`
	TemplateID       string            `json:"template_id,omitempty"`
	Headers          map[string]string `json:"headers"`
	TrackingSettings trackingSettings  `json:"tracking_settings"`
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To                  []emailAddress `json:"to"`
	DynamicTemplateData map[string]any `json:"dynamic_template_data,omitempty"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type trackingSettings struct {
	ClickTracking        trackingFlag `json:"click_tracking"`
	OpenTracking         trackingFlag `json:"open_tracking"`
	SubscriptionTracking trackingFlag `json:"subscription_tracking"`
}

type trackingFlag struct {
	Enable bool `json:"enable"`
}

// SendWelcomeEmail dispatches the welcome message, using the hosted dynamic
// template when one is configured and the inline-rendered document otherwise.
func (c *Client) SendWelcomeEmail(ctx context.Context, data provider.WelcomeEmailData) provider.EmailResult {
	toName := data.FullName
	if toName == "" {
		toName = data.Email
	}
	unsubscribeURL := c.renderer.UnsubscribeURL(data.Email)

	req := mailSendRequest{
		From: emailAddress{Email: c.cfg.FromEmail, Name: c.cfg.FromName},
		Personalizations: []personalization{{
			To: []emailAddress{{Email: data.Email, Name: toName}},
		}},
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + unsubscribeURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
			"X-Priority":            "3",
			"X-MSMail-Priority":     "Normal",
			"Importance":            "Normal",
		},
		TrackingSettings: trackingSettings{
			ClickTracking:        trackingFlag{Enable: true},
			OpenTracking:         trackingFlag{Enable: true},
			SubscriptionTracking: trackingFlag{Enable: true},
		},
	}

	if c.cfg.TemplateID != "" {
		req.TemplateID = c.cfg.TemplateID
		fullName := data.FullName
		if fullName == "" {
			fullName = "there"
		}
		firstName := data.FirstName
		if firstName == "" {
			firstName = "there"
		}
		now := time.Now().UTC()
		req.Personalizations[0].DynamicTemplateData = map[string]any{
			"first_name":       firstName,
			"last_name":        data.LastName,
			"full_name":        fullName,
			"email":            data.Email,
			"signup_date":      now.Format("01/02/2006"),
			"signup_timestamp": now.Format(time.RFC3339),
			"unsubscribe_url":  unsubscribeURL,
		}
	} else {
		rendered, err := c.renderer.Render(data.Email, data.FirstName, data.LastName)
		if err != nil {
			c.logger.Error("welcome email render failed", "provider", c.Name(), "error", err)
			return provider.EmailResult{
				Success: false,
				Message: "Failed to send welcome email. Please try again.",
			}
		}
		req.Subject = rendered.Subject
		req.Content = []mailContent{
			{Type: "text/plain", Value: rendered.Text},
			{Type: "text/html", Value: rendered.HTML},
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return provider.EmailResult{Success: false, Message: "Failed to send welcome email. Please try again."}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return provider.EmailResult{Success: false, Message: "Failed to send welcome email. Please try again."}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("welcome email send failed", "provider", c.Name(), "error", err)
		return provider.EmailResult{Success: false, Message: "Failed to send welcome email. Please try again."}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("welcome email rejected",
			"provider", c.Name(),
			"status", resp.StatusCode,
			"body", string(errBody),
		)
		return provider.EmailResult{Success: false, Message: "Failed to send welcome email. Please try again."}
	}

	return provider.EmailResult{
		Success:   true,
		Message:   "Welcome email sent successfully!",
		MessageID: resp.Header.Get("X-Message-Id"),
	}
}

// request performs a JSON request against the SendGrid API and decodes the
// response body into result when present. The status code is returned so
// callers can translate provider-specific statuses.
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
		// Tolerate empty or non-JSON bodies; the status code is what matters.
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
