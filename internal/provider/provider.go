// Package provider defines the contract between the signup pipeline and the
// email/marketing services it forwards to (SendGrid, Resend, direct SMTP).
package provider

import "context"

// Contact is an audience/list entry keyed by email address.
type Contact struct {
	Email        string
	FirstName    string
	LastName     string
	Unsubscribed bool
}

// WelcomeEmailData carries the merge fields for the welcome message.
type WelcomeEmailData struct {
	Email     string
	FirstName string
	LastName  string
	FullName  string
}

// ContactResult is the outcome of a contact upsert or existence probe.
type ContactResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ContactID string `json:"contactId,omitempty"`
}

// EmailResult is the outcome of a welcome email dispatch.
type EmailResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID string `json:"messageId,omitempty"`
}

// CombinedResult reports both halves of the composite signup operation.
// OverallSuccess tracks the email step alone: the contact upsert is
// best-effort and never gates the signup.
type CombinedResult struct {
	ContactAdded   ContactResult `json:"contactAdded"`
	EmailSent      EmailResult   `json:"emailSent"`
	OverallSuccess bool          `json:"overallSuccess"`
}

// Provider is an adapter over one hosted contact-list/email service.
// Every call makes exactly one attempt; there are no retries at this layer.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// ContactExists probes the provider for a contact. Transport and auth
	// errors are reported as "does not exist" so a failed probe re-adds a
	// contact instead of dropping the signup.
	ContactExists(ctx context.Context, email string) bool

	// UpsertContact unconditionally creates or updates the contact.
	UpsertContact(ctx context.Context, contact Contact) ContactResult

	// SendWelcomeEmail dispatches the one-time welcome message.
	SendWelcomeEmail(ctx context.Context, data WelcomeEmailData) EmailResult
}
