package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dripdrop/launchsite/internal/metrics"
	"github.com/dripdrop/launchsite/internal/provider"
	"github.com/dripdrop/launchsite/internal/validate"
)

// SignupRequest is the request body for POST /api/email-signup
type SignupRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// SignupResponse is the success response for POST /api/email-signup
type SignupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is the response for GET /api/health
type HealthResponse struct {
	Status           string          `json:"status"`
	Timestamp        string          `json:"timestamp"`
	Environment      string          `json:"environment"`
	EnvConfigStatus  map[string]bool `json:"envConfigStatus"`
	AllEnvConfigured bool            `json:"allEnvConfigured"`
	Message          string          `json:"message"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleSignup handles POST /api/email-signup. The pipeline is strictly
// ordered: configuration check, rate limit, parse, validation, dispatch.
// Failure responses are opaque; details stay in the logs.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.service == nil || !s.config.SignupConfigured() {
		s.trackSignup("unconfigured", start)
		s.sendError(w, http.StatusServiceUnavailable, "Email service not configured")
		return
	}

	clientIP := clientIP(r)
	res, err := s.limiter.Allow(r.Context(), clientIP)
	if err != nil {
		// A broken limiter store must not take signups down with it
		s.logger.Error("rate limiter failure", "error", err, "ip", clientIP)
	} else if !res.Allowed {
		if m := metrics.Global(); m != nil {
			m.RateLimitExceededTotal.Inc()
		}
		s.trackSignup("rate_limited", start)
		w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
		s.sendError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return
	}

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.trackSignup("malformed", start)
		s.sendError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	email := validate.NormalizeEmail(req.Email)
	if email == "" {
		s.trackSignup("invalid", start)
		s.sendError(w, http.StatusBadRequest, "Valid email is required")
		return
	}
	if !validate.Email(email) {
		s.trackSignup("invalid", start)
		s.sendError(w, http.StatusBadRequest, "Invalid email format")
		return
	}

	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	if !validate.Name(firstName) {
		s.trackSignup("invalid", start)
		s.sendError(w, http.StatusBadRequest, "Invalid first name format")
		return
	}
	if !validate.Name(lastName) {
		s.trackSignup("invalid", start)
		s.sendError(w, http.StatusBadRequest, "Invalid last name format")
		return
	}

	// Bounded wait: after the timeout the response goes out, but the
	// provider call keeps running to completion. WithoutCancel keeps a
	// client disconnect from aborting an in-flight upstream request.
	dispatchCtx := context.WithoutCancel(r.Context())
	resultCh := make(chan provider.CombinedResult, 1)
	go func() {
		resultCh <- s.service.Signup(dispatchCtx, email, firstName, lastName)
	}()

	timer := time.NewTimer(s.config.Signup.DispatchTimeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		if !result.OverallSuccess {
			s.logger.Warn("signup failed upstream",
				"provider", s.service.Provider().Name(),
				"contact_message", result.ContactAdded.Message,
				"email_message", result.EmailSent.Message,
			)
			s.trackSignup("upstream_error", start)
			s.sendError(w, http.StatusInternalServerError, "Unable to complete signup. Please try again.")
			return
		}

		s.logger.Info("signup subscribed",
			"provider", s.service.Provider().Name(),
			"domain", validate.ExtractDomainOrDefault(email, "unknown"),
			"contact_added", result.ContactAdded.Success,
		)
		s.trackSignup("subscribed", start)
		setSecurityHeaders(w)
		s.sendJSON(w, http.StatusOK, SignupResponse{
			Success: true,
			Message: "Successfully subscribed!",
		})

	case <-timer.C:
		s.logger.Warn("signup dispatch timed out",
			"provider", s.service.Provider().Name(),
			"timeout", s.config.Signup.DispatchTimeout,
		)
		s.trackSignup("timeout", start)
		s.sendError(w, http.StatusRequestTimeout, "Request timeout. Please try again.")
	}
}

// handleHealth handles GET /api/health. It reports which required
// environment variables are present, never their values.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.config.EnvStatus()

	allConfigured := true
	for _, ok := range status {
		if !ok {
			allConfigured = false
			break
		}
	}

	message := "All required environment variables are configured"
	if !allConfigured {
		message = "Some required environment variables are missing"
	}

	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		Environment:      s.config.Server.Environment,
		EnvConfigStatus:  status,
		AllEnvConfigured: allConfigured,
		Message:          message,
	})
}

func (s *Server) trackSignup(outcome string, start time.Time) {
	if m := metrics.Global(); m != nil {
		m.TrackSignup(outcome, time.Since(start))
	}
}

// clientIP returns the rate-limit key. RealIP middleware has already
// resolved X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
