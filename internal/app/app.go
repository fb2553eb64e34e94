// Package app wires configuration, providers, limiters and servers into a
// running launch site.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dripdrop/launchsite/internal/api"
	"github.com/dripdrop/launchsite/internal/config"
	"github.com/dripdrop/launchsite/internal/dkim"
	"github.com/dripdrop/launchsite/internal/metrics"
	"github.com/dripdrop/launchsite/internal/provider"
	"github.com/dripdrop/launchsite/internal/provider/resend"
	"github.com/dripdrop/launchsite/internal/provider/sendgrid"
	"github.com/dripdrop/launchsite/internal/provider/smtprelay"
	"github.com/dripdrop/launchsite/internal/ratelimit"
	"github.com/dripdrop/launchsite/internal/signup"
	launchTLS "github.com/dripdrop/launchsite/internal/tls"
	"github.com/dripdrop/launchsite/internal/welcome"
)

// App is the assembled application.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	limiter       ratelimit.Limiter
	limiterDB     *bolt.DB
	service       *signup.Service
	apiServer     *api.Server
	metricsServer *metrics.Server
	acmeManager   *launchTLS.ACMEManager
	acmeServer    *http.Server
	httpsServer   *http.Server
}

// New assembles the application from configuration.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	a := &App{
		config: cfg,
		logger: logger,
	}

	if err := a.setupLimiter(); err != nil {
		return nil, err
	}

	renderer := welcome.NewRenderer(cfg.Site.Name, cfg.Env.BaseURL)
	for part, path := range map[string]string{
		"subject": cfg.Site.WelcomeSubjectFile,
		"html":    cfg.Site.WelcomeHTMLFile,
		"text":    cfg.Site.WelcomeTextFile,
	} {
		if path == "" {
			continue
		}
		if err := renderer.LoadPart(part, path); err != nil {
			return nil, fmt.Errorf("welcome template: %w", err)
		}
	}
	if err := renderer.Validate(); err != nil {
		return nil, fmt.Errorf("welcome template: %w", err)
	}

	if cfg.SignupConfigured() {
		p, err := buildProvider(cfg, renderer, logger)
		if err != nil {
			return nil, err
		}
		a.service = signup.NewService(p, cfg.SkipWelcomeForExisting(), logger.With("component", "signup"))
		logger.Info("signup provider configured", "provider", p.Name())
	} else {
		logger.Warn("no signup provider configured, endpoint will answer 503",
			"provider", cfg.Signup.Provider)
	}

	a.apiServer = api.NewServer(a.service, a.limiter, cfg, logger.With("component", "api"))

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
	}

	if cfg.ACME.Enabled {
		a.acmeManager = launchTLS.NewACMEManager(cfg.ACME)
		logger.Info("ACME enabled", "domains", cfg.ACME.Domains)
	}

	return a, nil
}

func (a *App) setupLimiter() error {
	rlCfg := ratelimit.Config{
		Limit:         a.config.RateLimit.Limit,
		Window:        a.config.RateLimit.Window,
		FlushInterval: a.config.RateLimit.FlushInterval,
	}

	if a.config.RateLimit.PersistPath == "" {
		a.limiter = ratelimit.NewMemoryLimiter(rlCfg)
		return nil
	}

	db, err := bolt.Open(a.config.RateLimit.PersistPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("open rate limit store: %w", err)
	}

	limiter, err := ratelimit.NewBoltLimiter(db, rlCfg)
	if err != nil {
		db.Close()
		return fmt.Errorf("create rate limiter: %w", err)
	}

	a.limiterDB = db
	a.limiter = limiter
	a.logger.Info("rate limit counters persisted", "path", a.config.RateLimit.PersistPath)
	return nil
}

func buildProvider(cfg *config.Config, renderer *welcome.Renderer, logger *slog.Logger) (provider.Provider, error) {
	switch cfg.Signup.Provider {
	case config.ProviderResend:
		return resend.NewClient(resend.Config{
			APIKey:     cfg.Env.ResendAPIKey,
			FromEmail:  cfg.Env.ResendFromEmail,
			FromName:   cfg.Env.ResendFromName,
			AudienceID: cfg.Env.ResendAudienceID,
		}, renderer, logger.With("provider", "resend")), nil

	case config.ProviderSMTP:
		var signer *dkim.Signer
		if cfg.SMTP.DKIM.Enabled {
			var err error
			signer, err = dkim.NewSignerFromFile(cfg.SMTP.DKIM.KeyFile, cfg.SMTP.DKIM.Domain, cfg.SMTP.DKIM.Selector)
			if err != nil {
				return nil, fmt.Errorf("load DKIM key: %w", err)
			}
			logger.Info("DKIM signing enabled", "domain", cfg.SMTP.DKIM.Domain, "selector", cfg.SMTP.DKIM.Selector)
		}
		return smtprelay.NewClient(smtprelay.Config{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  cfg.SMTP.FromName,
			StartTLS:  cfg.SMTP.StartTLS,
			Timeout:   cfg.SMTP.Timeout,
		}, renderer, signer, logger.With("provider", "smtp")), nil

	default:
		return sendgrid.NewClient(sendgrid.Config{
			APIKey:     cfg.Env.SendGridAPIKey,
			FromEmail:  cfg.Env.SendGridFromEmail,
			FromName:   cfg.Env.SendGridFromName,
			ListID:     cfg.Env.SendGridListID,
			TemplateID: cfg.Env.SendGridTemplateID,
		}, renderer, logger.With("provider", "sendgrid")), nil
	}
}

// Run starts all listeners and blocks until a signal or a fatal error.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting launchsite",
		"addr", a.config.Server.ListenAddr,
		"environment", a.config.Server.Environment,
		"provider", a.config.Signup.Provider,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 3)

	if a.acmeManager != nil {
		if err := a.startHTTPS(ctx, errCh); err != nil {
			return err
		}
	} else {
		go func() {
			if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// startHTTPS brings up the challenge listener on :80, obtains certificates,
// then serves the site over TLS on the configured address.
func (a *App) startHTTPS(ctx context.Context, errCh chan<- error) error {
	a.acmeServer = &http.Server{
		Addr: ":80",
		Handler: a.acmeManager.HTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + r.Host + r.URL.Path
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})),
	}
	go func() {
		a.logger.Info("starting ACME challenge listener", "addr", ":80")
		if err := a.acmeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Warn("ACME challenge listener error", "error", err)
		}
	}()

	certCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	certs, err := a.acmeManager.EnsureCertificates(certCtx)
	if err != nil {
		return fmt.Errorf("obtain certificates: %w", err)
	}
	for _, cert := range certs {
		a.logger.Info("certificate ready", "domain", cert.Domain, "days_left", cert.DaysLeft)
	}

	a.httpsServer = &http.Server{
		Addr:         a.config.Server.ListenAddr,
		Handler:      a.apiServer.Handler(),
		TLSConfig:    a.acmeManager.TLSConfig(),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}
	go func() {
		a.logger.Info("starting HTTPS server", "addr", a.config.Server.ListenAddr)
		if err := a.httpsServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("https server: %w", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if a.httpsServer != nil {
		if err := a.httpsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("https server shutdown error", "error", err)
		}
	} else if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}

	if a.acmeServer != nil {
		if err := a.acmeServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("acme listener shutdown error", "error", err)
		}
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Stop flushes persisted counters
	if err := a.limiter.Stop(); err != nil {
		a.logger.Error("rate limiter stop error", "error", err)
	}
	if a.limiterDB != nil {
		if err := a.limiterDB.Close(); err != nil {
			a.logger.Error("rate limit store close error", "error", err)
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}

// Service exposes the signup service for the test-send command.
func (a *App) Service() *signup.Service {
	return a.service
}

// Logger returns the configured logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
