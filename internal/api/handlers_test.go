package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dripdrop/launchsite/internal/config"
	"github.com/dripdrop/launchsite/internal/provider"
	"github.com/dripdrop/launchsite/internal/ratelimit"
	"github.com/dripdrop/launchsite/internal/signup"
)

type mockProvider struct {
	mu         sync.Mutex
	exists     bool
	upsertOK   bool
	sendOK     bool
	sendDelay  time.Duration
	sendCalls  int
	upsertCall int
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) ContactExists(ctx context.Context, email string) bool {
	return p.exists
}

func (p *mockProvider) UpsertContact(ctx context.Context, c provider.Contact) provider.ContactResult {
	p.mu.Lock()
	p.upsertCall++
	p.mu.Unlock()
	if !p.upsertOK {
		return provider.ContactResult{Success: false, Message: "upsert failed"}
	}
	return provider.ContactResult{Success: true, Message: "contact added", ContactID: "c-1"}
}

func (p *mockProvider) SendWelcomeEmail(ctx context.Context, d provider.WelcomeEmailData) provider.EmailResult {
	p.mu.Lock()
	p.sendCalls++
	p.mu.Unlock()
	if p.sendDelay > 0 {
		time.Sleep(p.sendDelay)
	}
	if !p.sendOK {
		return provider.EmailResult{Success: false, Message: "send failed"}
	}
	return provider.EmailResult{Success: true, Message: "sent", MessageID: "m-1"}
}

type mockLimiter struct {
	allowed    bool
	retryAfter time.Duration
	err        error
}

func (l *mockLimiter) Allow(ctx context.Context, key string) (*ratelimit.Result, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &ratelimit.Result{Allowed: l.allowed, RetryAfter: l.retryAfter}, nil
}

func (l *mockLimiter) Stop() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	// Pin the provider env so a developer's real credentials never leak
	// into the assertions.
	for _, key := range []string{
		"SENDGRID_API_KEY", "SENDGRID_FROM_EMAIL", "SENDGRID_FROM_NAME",
		"SENDGRID_CONTACT_LIST_ID", "SENDGRID_WELCOME_TEMPLATE_ID",
		"RESEND_API_KEY", "RESEND_FROM_EMAIL", "RESEND_FROM_NAME", "RESEND_AUDIENCE_ID",
		"BASE_URL", "ENVIRONMENT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Env.SendGridAPIKey = "SG.test"
	cfg.Env.SendGridFromEmail = "hello@dripdrop.social"
	cfg.Signup.DispatchTimeout = 2 * time.Second
	return cfg
}

func newTestServer(p *mockProvider, l ratelimit.Limiter, cfg *config.Config) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var svc *signup.Service
	if p != nil {
		svc = signup.NewService(p, cfg.SkipWelcomeForExisting(), logger)
	}
	return NewServer(svc, l, cfg, logger)
}

func postSignup(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/email-signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:40000"
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

func TestSignupSuccess(t *testing.T) {
	p := &mockProvider{upsertOK: true, sendOK: true}
	s := newTestServer(p, &mockLimiter{allowed: true}, testConfig(t))

	rec := postSignup(t, s, `{"email":"New.User@Example.com","firstName":"Ada","lastName":"Lovelace"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp SignupResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("success = false, want true")
	}
	if resp.Message != "Successfully subscribed!" {
		t.Errorf("message = %q, want %q", resp.Message, "Successfully subscribed!")
	}

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := rec.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	if p.sendCalls != 1 {
		t.Errorf("send calls = %d, want 1", p.sendCalls)
	}
}

func TestSignupUnconfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Env.SendGridAPIKey = ""
	s := newTestServer(nil, &mockLimiter{allowed: true}, cfg)

	rec := postSignup(t, s, `{"email":"user@example.com"}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if got := decodeError(t, rec); got != "Email service not configured" {
		t.Errorf("error = %q, want %q", got, "Email service not configured")
	}
}

func TestSignupRateLimited(t *testing.T) {
	p := &mockProvider{upsertOK: true, sendOK: true}
	s := newTestServer(p, &mockLimiter{allowed: false, retryAfter: 10 * time.Minute}, testConfig(t))

	rec := postSignup(t, s, `{"email":"user@example.com"}`)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := decodeError(t, rec); got != "Too many requests. Please try again later." {
		t.Errorf("error = %q, want %q", got, "Too many requests. Please try again later.")
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
	if p.sendCalls != 0 {
		t.Errorf("send calls = %d, want 0", p.sendCalls)
	}
}

func TestSignupLimiterFailureDoesNotBlock(t *testing.T) {
	p := &mockProvider{upsertOK: true, sendOK: true}
	s := newTestServer(p, &mockLimiter{err: context.DeadlineExceeded}, testConfig(t))

	rec := postSignup(t, s, `{"email":"user@example.com"}`)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestSignupValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "malformed JSON",
			body:    `{not json`,
			wantErr: "Invalid request format",
		},
		{
			name:    "missing email",
			body:    `{"firstName":"Ada"}`,
			wantErr: "Valid email is required",
		},
		{
			name:    "whitespace email",
			body:    `{"email":"   "}`,
			wantErr: "Valid email is required",
		},
		{
			name:    "invalid email",
			body:    `{"email":"not-an-email"}`,
			wantErr: "Invalid email format",
		},
		{
			name:    "invalid first name",
			body:    `{"email":"user@example.com","firstName":"Ada<script>"}`,
			wantErr: "Invalid first name format",
		},
		{
			name:    "invalid last name",
			body:    `{"email":"user@example.com","lastName":"Love;lace"}`,
			wantErr: "Invalid last name format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{upsertOK: true, sendOK: true}
			s := newTestServer(p, &mockLimiter{allowed: true}, testConfig(t))

			rec := postSignup(t, s, tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if got := decodeError(t, rec); got != tt.wantErr {
				t.Errorf("error = %q, want %q", got, tt.wantErr)
			}
			if p.sendCalls != 0 {
				t.Errorf("send calls = %d, want 0", p.sendCalls)
			}
		})
	}
}

func TestSignupUpstreamFailure(t *testing.T) {
	p := &mockProvider{upsertOK: true, sendOK: false}
	s := newTestServer(p, &mockLimiter{allowed: true}, testConfig(t))

	rec := postSignup(t, s, `{"email":"user@example.com"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if got := decodeError(t, rec); got != "Unable to complete signup. Please try again." {
		t.Errorf("error = %q, want %q", got, "Unable to complete signup. Please try again.")
	}
}

func TestSignupContactFailureDoesNotGateEmail(t *testing.T) {
	p := &mockProvider{upsertOK: false, sendOK: true}
	s := newTestServer(p, &mockLimiter{allowed: true}, testConfig(t))

	rec := postSignup(t, s, `{"email":"user@example.com"}`)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if p.sendCalls != 1 {
		t.Errorf("send calls = %d, want 1", p.sendCalls)
	}
}

func TestSignupDispatchTimeout(t *testing.T) {
	p := &mockProvider{upsertOK: true, sendOK: true, sendDelay: 200 * time.Millisecond}
	cfg := testConfig(t)
	cfg.Signup.DispatchTimeout = 20 * time.Millisecond
	s := newTestServer(p, &mockLimiter{allowed: true}, cfg)

	rec := postSignup(t, s, `{"email":"user@example.com"}`)

	if rec.Code != http.StatusRequestTimeout {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestTimeout)
	}
	if got := decodeError(t, rec); got != "Request timeout. Please try again." {
		t.Errorf("error = %q, want %q", got, "Request timeout. Please try again.")
	}

	// The dispatch is not aborted; the provider call finishes on its own.
	time.Sleep(300 * time.Millisecond)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendCalls != 1 {
		t.Errorf("send calls after timeout = %d, want 1", p.sendCalls)
	}
}

func TestHealthEndpoint(t *testing.T) {
	cfg := testConfig(t)
	s := newTestServer(&mockProvider{}, &mockLimiter{allowed: true}, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Environment != cfg.Server.Environment {
		t.Errorf("environment = %q, want %q", resp.Environment, cfg.Server.Environment)
	}
	if resp.Timestamp == "" {
		t.Error("timestamp is empty")
	}

	for _, key := range []string{"sendgridApiKey", "sendgridFromEmail", "sendgridFromName", "sendgridContactListId", "baseUrl"} {
		if _, ok := resp.EnvConfigStatus[key]; !ok {
			t.Errorf("envConfigStatus missing key %q", key)
		}
	}
	if !resp.EnvConfigStatus["sendgridApiKey"] {
		t.Error("envConfigStatus[sendgridApiKey] = false, want true")
	}
	if resp.AllEnvConfigured {
		t.Error("allEnvConfigured = true, want false with partial env")
	}
}
