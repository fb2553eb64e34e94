// Package signup orchestrates the composite signup operation: best-effort
// contact upsert followed by the welcome email dispatch.
package signup

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dripdrop/launchsite/internal/metrics"
	"github.com/dripdrop/launchsite/internal/provider"
)

// Service runs the composite signup against one provider. Every external
// call is single-attempt; failures are terminal for the request.
type Service struct {
	provider provider.Provider
	logger   *slog.Logger

	// skipWelcomeForExisting suppresses the welcome email when the address
	// is already on the list, so returning visitors are not re-welcomed.
	skipWelcomeForExisting bool
}

// NewService creates a signup service.
func NewService(p provider.Provider, skipWelcomeForExisting bool, logger *slog.Logger) *Service {
	return &Service{
		provider:               p,
		logger:                 logger,
		skipWelcomeForExisting: skipWelcomeForExisting,
	}
}

// Provider returns the backing provider, for logging and health reporting.
func (s *Service) Provider() provider.Provider {
	return s.provider
}

// SmartUpsertContact probes for the contact first and only upserts when it is
// absent. A second call for the same address is a no-op success, not a
// duplicate-creation error. The boolean reports whether the contact already
// existed.
func (s *Service) SmartUpsertContact(ctx context.Context, contact provider.Contact) (provider.ContactResult, bool) {
	if s.provider.ContactExists(ctx, contact.Email) {
		return provider.ContactResult{
			Success: true,
			Message: "Already in contact list!",
		}, true
	}

	result := s.provider.UpsertContact(ctx, contact)
	s.track("upsert_contact", result.Success)
	return result, false
}

func (s *Service) track(operation string, success bool) {
	if m := metrics.Global(); m != nil {
		m.TrackProviderCall(s.provider.Name(), operation, success)
	}
}

// Signup performs the composite operation. The contact step runs first but
// never gates the email step; OverallSuccess tracks the email step alone.
func (s *Service) Signup(ctx context.Context, email, firstName, lastName string) provider.CombinedResult {
	contact := provider.Contact{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
	}

	contactResult, existed := s.SmartUpsertContact(ctx, contact)
	if !contactResult.Success {
		s.logger.Warn("contact upsert failed",
			"provider", s.provider.Name(),
			"message", contactResult.Message,
		)
	}

	if existed && s.skipWelcomeForExisting {
		return provider.CombinedResult{
			ContactAdded: contactResult,
			EmailSent: provider.EmailResult{
				Success: true,
				Message: "Welcome email skipped - user already welcomed",
			},
			OverallSuccess: true,
		}
	}

	emailResult := s.provider.SendWelcomeEmail(ctx, provider.WelcomeEmailData{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		FullName:  strings.TrimSpace(firstName + " " + lastName),
	})
	s.track("send_welcome", emailResult.Success)

	return provider.CombinedResult{
		ContactAdded:   contactResult,
		EmailSent:      emailResult,
		OverallSuccess: emailResult.Success,
	}
}
