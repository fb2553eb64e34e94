// Package tls provides automatic certificates for the public site via ACME.
package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/dripdrop/launchsite/internal/config"
)

// ACMEManager obtains and renews Let's Encrypt certificates for the site
// domains. The HTTP-01 challenge is answered by the plain HTTP listener.
type ACMEManager struct {
	manager *autocert.Manager
	domains []string
}

// NewACMEManager creates an ACME manager from the site configuration.
func NewACMEManager(cfg config.ACMEConfig) *ACMEManager {
	return &ACMEManager{
		manager: &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      cfg.Email,
			HostPolicy: autocert.HostWhitelist(cfg.Domains...),
			Cache:      autocert.DirCache(cfg.CacheDir),
		},
		domains: cfg.Domains,
	}
}

// Domains returns the certificate domains.
func (a *ACMEManager) Domains() []string {
	return a.domains
}

// TLSConfig returns the TLS configuration for the HTTPS listener.
func (a *ACMEManager) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: a.manager.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// HTTPHandler wraps fallback so the HTTP listener answers HTTP-01
// challenges and redirects everything else to HTTPS.
func (a *ACMEManager) HTTPHandler(fallback http.Handler) http.Handler {
	return a.manager.HTTPHandler(fallback)
}

// CertificateInfo describes one issued certificate.
type CertificateInfo struct {
	Domain   string
	NotAfter time.Time
	DaysLeft int
}

// EnsureCertificates obtains or renews certificates for every domain. The
// challenge listener must already be serving before this is called.
func (a *ACMEManager) EnsureCertificates(ctx context.Context) ([]CertificateInfo, error) {
	var results []CertificateInfo

	for _, domain := range a.domains {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		// GetCertificate fetches from cache or orders a new certificate,
		// renewing automatically when close to expiry.
		cert, err := a.manager.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
		if err != nil {
			return results, fmt.Errorf("obtain certificate for %s: %w", domain, err)
		}

		leaf := cert.Leaf
		if leaf == nil && len(cert.Certificate) > 0 {
			leaf, err = x509.ParseCertificate(cert.Certificate[0])
			if err != nil {
				return results, fmt.Errorf("parse certificate for %s: %w", domain, err)
			}
		}
		if leaf == nil {
			continue
		}

		results = append(results, CertificateInfo{
			Domain:   domain,
			NotAfter: leaf.NotAfter,
			DaysLeft: int(time.Until(leaf.NotAfter).Hours() / 24),
		})
	}

	return results, nil
}
