// Package config loads the launch site configuration.
//
// Server, site and tuning settings come from an optional YAML file; provider
// credentials come strictly from environment variables so secrets never live
// in checked-in files. Missing credentials degrade the signup endpoint to a
// 503 and are surfaced through /api/health.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in signup.provider.
const (
	ProviderSendGrid = "sendgrid"
	ProviderResend   = "resend"
	ProviderSMTP     = "smtp"
)

// Config is the main configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Site      SiteConfig      `yaml:"site"`
	Signup    SignupConfig    `yaml:"signup"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	SMTP      SMTPRelayConfig `yaml:"smtp"`
	ACME      ACMEConfig      `yaml:"acme"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// Env carries provider credentials; populated from the process
	// environment, never from YAML.
	Env EnvConfig `yaml:"-"`

	// rawBaseURL is BASE_URL exactly as read from the environment, before
	// setDefaults fills Env.BaseURL. EnvStatus reports presence from it.
	rawBaseURL string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	Environment  string        `yaml:"environment"` // development, production
	StaticDir    string        `yaml:"static_dir"`  // coming-soon page assets; empty disables
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// SiteConfig describes the public site.
type SiteConfig struct {
	Name           string   `yaml:"name"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Optional overrides for the built-in welcome email template.
	WelcomeSubjectFile string `yaml:"welcome_subject_file"`
	WelcomeHTMLFile    string `yaml:"welcome_html_file"`
	WelcomeTextFile    string `yaml:"welcome_text_file"`
}

// SignupConfig tunes the signup pipeline.
type SignupConfig struct {
	Provider string `yaml:"provider"` // sendgrid, resend, smtp

	// DispatchTimeout bounds the wait on the provider composite call. The
	// upstream call is not aborted when it fires; only the wait ends.
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`

	// SkipWelcomeForExisting suppresses the welcome email for addresses
	// already on the list.
	SkipWelcomeForExisting *bool `yaml:"skip_welcome_for_existing"`
}

// RateLimitConfig contains signup rate limiting settings.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`  // requests per window per client IP
	Window time.Duration `yaml:"window"` // fixed window length

	// PersistPath enables the bbolt-backed limiter so counters survive
	// restarts. Empty keeps counters in memory only.
	PersistPath   string        `yaml:"persist_path"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// SMTPRelayConfig configures the direct SMTP provider.
type SMTPRelayConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	FromEmail string        `yaml:"from_email"`
	FromName  string        `yaml:"from_name"`
	StartTLS  bool          `yaml:"starttls"`
	Timeout   time.Duration `yaml:"timeout"`
	DKIM      DKIMConfig    `yaml:"dkim"`
}

// DKIMConfig contains signing settings for relay-submitted mail.
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// ACMEConfig enables automatic TLS for the public site.
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IPs/CIDRs allowed to scrape
}

// EnvConfig holds the provider credentials read from the environment.
type EnvConfig struct {
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SendGridListID     string
	SendGridTemplateID string

	ResendAPIKey     string
	ResendFromEmail  string
	ResendFromName   string
	ResendAudienceID string

	BaseURL string
}

// Load loads configuration from a YAML file and the environment. An empty
// path loads defaults plus the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.loadEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadEnv reads provider credentials and deploy settings from the process
// environment.
func (c *Config) loadEnv() {
	c.Env = EnvConfig{
		SendGridAPIKey:     os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail:  os.Getenv("SENDGRID_FROM_EMAIL"),
		SendGridFromName:   os.Getenv("SENDGRID_FROM_NAME"),
		SendGridListID:     os.Getenv("SENDGRID_CONTACT_LIST_ID"),
		SendGridTemplateID: os.Getenv("SENDGRID_WELCOME_TEMPLATE_ID"),

		ResendAPIKey:     os.Getenv("RESEND_API_KEY"),
		ResendFromEmail:  os.Getenv("RESEND_FROM_EMAIL"),
		ResendFromName:   os.Getenv("RESEND_FROM_NAME"),
		ResendAudienceID: os.Getenv("RESEND_AUDIENCE_ID"),

		BaseURL: os.Getenv("BASE_URL"),
	}
	c.rawBaseURL = c.Env.BaseURL

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		c.Server.Environment = env
	}
}

// setDefaults sets default values for configuration.
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "production"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// The signup handler can wait out the full dispatch timeout.
		c.Server.WriteTimeout = 35 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Site.Name == "" {
		c.Site.Name = "DripDrop"
	}
	if len(c.Site.AllowedOrigins) == 0 {
		c.Site.AllowedOrigins = []string{
			"https://dripdrop.social",
			"https://www.dripdrop.social",
			"http://localhost:3000",
			"http://localhost:3001",
			"http://localhost:3002",
		}
	}

	if c.Signup.Provider == "" {
		c.Signup.Provider = ProviderSendGrid
	}
	if c.Signup.DispatchTimeout == 0 {
		c.Signup.DispatchTimeout = 30 * time.Second
	}
	if c.Signup.SkipWelcomeForExisting == nil {
		skip := true
		c.Signup.SkipWelcomeForExisting = &skip
	}

	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = 5
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = 15 * time.Minute
	}
	if c.RateLimit.FlushInterval == 0 {
		c.RateLimit.FlushInterval = 10 * time.Second
	}

	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.Timeout == 0 {
		c.SMTP.Timeout = 30 * time.Second
	}
	if c.SMTP.DKIM.Selector == "" {
		c.SMTP.DKIM.Selector = "launch"
	}

	if c.ACME.CacheDir == "" {
		c.ACME.CacheDir = "/var/lib/launchsite/certs"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Env.BaseURL == "" {
		c.Env.BaseURL = "https://dripdrop.social"
	}
}

// Validate checks the configuration for structural errors. Missing provider
// credentials are not errors here; they degrade the endpoint at runtime.
func (c *Config) Validate() error {
	switch c.Signup.Provider {
	case ProviderSendGrid, ProviderResend, ProviderSMTP:
	default:
		return fmt.Errorf("unknown signup provider %q", c.Signup.Provider)
	}

	if c.RateLimit.Limit < 0 {
		return fmt.Errorf("rate_limit.limit must not be negative")
	}
	if c.RateLimit.Window < 0 {
		return fmt.Errorf("rate_limit.window must not be negative")
	}

	if c.ACME.Enabled {
		if len(c.ACME.Domains) == 0 {
			return fmt.Errorf("acme.domains is required when acme is enabled")
		}
		if c.ACME.Email == "" {
			return fmt.Errorf("acme.email is required when acme is enabled")
		}
	}

	if c.SMTP.DKIM.Enabled {
		if c.SMTP.DKIM.Domain == "" || c.SMTP.DKIM.KeyFile == "" {
			return fmt.Errorf("smtp.dkim requires domain and key_file")
		}
	}

	if c.Signup.Provider == ProviderSMTP {
		if c.SMTP.Host == "" {
			return fmt.Errorf("smtp.host is required for the smtp provider")
		}
		if c.SMTP.FromEmail == "" {
			return fmt.Errorf("smtp.from_email is required for the smtp provider")
		}
	}

	return nil
}

// IsDevelopment reports whether the server runs in development mode, which
// relaxes the CORS origin check for localhost.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// EnvStatus reports which required environment variables are present for the
// active provider. Feeds /api/health and the `config env` command.
func (c *Config) EnvStatus() map[string]bool {
	switch c.Signup.Provider {
	case ProviderResend:
		return map[string]bool{
			"resendApiKey":     c.Env.ResendAPIKey != "",
			"resendFromEmail":  c.Env.ResendFromEmail != "",
			"resendFromName":   c.Env.ResendFromName != "",
			"resendAudienceId": c.Env.ResendAudienceID != "",
			"baseUrl":          c.rawBaseURL != "",
		}
	case ProviderSMTP:
		return map[string]bool{
			"smtpHost":      c.SMTP.Host != "",
			"smtpUsername":  c.SMTP.Username != "",
			"smtpPassword":  c.SMTP.Password != "",
			"smtpFromEmail": c.SMTP.FromEmail != "",
			"baseUrl":       c.rawBaseURL != "",
		}
	default:
		return map[string]bool{
			"sendgridApiKey":        c.Env.SendGridAPIKey != "",
			"sendgridFromEmail":     c.Env.SendGridFromEmail != "",
			"sendgridFromName":      c.Env.SendGridFromName != "",
			"sendgridContactListId": c.Env.SendGridListID != "",
			"baseUrl":               c.rawBaseURL != "",
		}
	}
}

// SignupConfigured reports whether the active provider has the credentials
// it needs to accept signups. When false the endpoint answers 503.
func (c *Config) SignupConfigured() bool {
	switch c.Signup.Provider {
	case ProviderResend:
		return c.Env.ResendAPIKey != "" && c.Env.ResendFromEmail != ""
	case ProviderSMTP:
		return c.SMTP.Host != "" && c.SMTP.FromEmail != ""
	default:
		return c.Env.SendGridAPIKey != "" && c.Env.SendGridFromEmail != ""
	}
}

// SkipWelcomeForExisting resolves the pointer knob.
func (c *Config) SkipWelcomeForExisting() bool {
	return c.Signup.SkipWelcomeForExisting == nil || *c.Signup.SkipWelcomeForExisting
}
