// Package smtprelay submits the welcome email directly to an SMTP relay,
// giving the site an ESP-free deployment mode. There is no contact store
// behind it, so the contact half of the composite signup degrades to a no-op.
package smtprelay

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/textproto"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/dripdrop/launchsite/internal/dkim"
	"github.com/dripdrop/launchsite/internal/provider"
	"github.com/dripdrop/launchsite/internal/validate"
	"github.com/dripdrop/launchsite/internal/welcome"
)

// Config contains SMTP relay settings.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	StartTLS  bool
	Timeout   time.Duration
}

// Client is a direct SMTP submission adapter.
type Client struct {
	cfg      Config
	renderer *welcome.Renderer
	signer   *dkim.Signer
	logger   *slog.Logger

	// submit delivers the built message; replaced in tests.
	submit func(ctx context.Context, from string, to []string, msg []byte) error
}

// NewClient creates a new SMTP relay adapter.
func NewClient(cfg Config, renderer *welcome.Renderer, signer *dkim.Signer, logger *slog.Logger) *Client {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		cfg:      cfg,
		renderer: renderer,
		signer:   signer,
		logger:   logger,
	}
	c.submit = c.submitSMTP
	return c
}

// Name implements provider.Provider.
func (c *Client) Name() string { return "smtp" }

// ContactExists always reports false: the relay keeps no audience.
func (c *Client) ContactExists(ctx context.Context, email string) bool {
	return false
}

// UpsertContact is a successful no-op; the relay has no contact list.
func (c *Client) UpsertContact(ctx context.Context, contact provider.Contact) provider.ContactResult {
	return provider.ContactResult{
		Success: true,
		Message: "No audience configured - contact management skipped",
	}
}

// SendWelcomeEmail renders the welcome message, builds an RFC 5322 document,
// DKIM-signs it when a signer is configured, and submits it in one attempt.
func (c *Client) SendWelcomeEmail(ctx context.Context, data provider.WelcomeEmailData) provider.EmailResult {
	rendered, err := c.renderer.Render(data.Email, data.FirstName, data.LastName)
	if err != nil {
		c.logger.Error("welcome email render failed", "provider", c.Name(), "error", err)
		return provider.EmailResult{
			Success: false,
			Message: "Failed to send welcome email. Please try again.",
		}
	}

	messageID := fmt.Sprintf("<%s@%s>",
		uuid.New().String(),
		validate.ExtractDomainOrDefault(c.cfg.FromEmail, "localhost"),
	)

	msg, err := c.buildMessage(messageID, data, rendered)
	if err != nil {
		c.logger.Error("welcome email build failed", "provider", c.Name(), "error", err)
		return provider.EmailResult{
			Success: false,
			Message: "Failed to send welcome email. Please try again.",
		}
	}

	if c.signer != nil {
		signed, err := c.signer.Sign(msg)
		if err != nil {
			c.logger.Warn("DKIM signing failed, sending unsigned", "provider", c.Name(), "error", err)
		} else {
			msg = signed
		}
	}

	if err := c.submit(ctx, c.cfg.FromEmail, []string{data.Email}, msg); err != nil {
		c.logger.Error("welcome email send failed", "provider", c.Name(), "error", err)
		return provider.EmailResult{
			Success: false,
			Message: "Failed to send welcome email. Please try again.",
		}
	}

	return provider.EmailResult{
		Success:   true,
		Message:   "Welcome email sent successfully!",
		MessageID: messageID,
	}
}

// buildMessage assembles a multipart/alternative message with the anti-spam
// headers the hosted providers set.
func (c *Client) buildMessage(messageID string, data provider.WelcomeEmailData, rendered *welcome.RenderResult) ([]byte, error) {
	var buf bytes.Buffer

	toName := data.FullName
	if toName == "" {
		toName = data.Email
	}
	unsubscribeURL := c.renderer.UnsubscribeURL(data.Email)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	writeHeader := func(key, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
	}
	writeHeader("From", fmt.Sprintf("%s <%s>", c.cfg.FromName, c.cfg.FromEmail))
	writeHeader("To", fmt.Sprintf("%s <%s>", toName, data.Email))
	writeHeader("Subject", rendered.Subject)
	writeHeader("Date", time.Now().Format(time.RFC1123Z))
	writeHeader("Message-ID", messageID)
	writeHeader("List-Unsubscribe", "<"+unsubscribeURL+">")
	writeHeader("List-Unsubscribe-Post", "List-Unsubscribe=One-Click")
	writeHeader("X-Priority", "3")
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `multipart/alternative; boundary="`+writer.Boundary()+`"`)
	buf.WriteString("\r\n")

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", rendered.Text},
		{"text/html; charset=utf-8", rendered.HTML},
	} {
		if part.content == "" {
			continue
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", part.contentType)
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("create MIME part: %w", err)
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("encode MIME part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("close MIME part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

// submitSMTP performs the single-attempt relay submission; there are no
// retries. The whole exchange runs under one connection deadline: the
// context deadline when it is sooner, cfg.Timeout otherwise.
func (c *Client) submitSMTP(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	dialer := &net.Dialer{
		Timeout: c.cfg.Timeout,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("set relay deadline: %w", err)
	}

	client := smtp.NewClient(conn)
	defer client.Close()

	if c.cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
			return fmt.Errorf("relay starttls: %w", err)
		}
	}

	if c.cfg.Username != "" {
		auth := sasl.NewPlainClient("", c.cfg.Username, c.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("relay auth: %w", err)
		}
	}

	if err := client.SendMail(from, to, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("relay submission: %w", err)
	}

	return client.Quit()
}
