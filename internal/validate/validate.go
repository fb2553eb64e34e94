// Package validate provides input normalization and validation for signup data.
package validate

import (
	"net/mail"
	"regexp"
	"strings"
)

const (
	// MaxEmailLength is the RFC 5321 limit for an address.
	MaxEmailLength = 254

	// MaxNameLength is the limit for first/last name fields.
	MaxNameLength = 50
)

var (
	emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	nameRegexp  = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
)

// NormalizeEmail trims surrounding whitespace and lowercases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Email reports whether the address matches the permitted grammar.
// The address should be normalized first.
func Email(email string) bool {
	if email == "" || len(email) > MaxEmailLength {
		return false
	}
	return emailRegexp.MatchString(email)
}

// Name reports whether a first/last name is acceptable:
// letters, spaces, hyphens and apostrophes, at most MaxNameLength bytes.
// Empty names are valid (the fields are optional).
func Name(name string) bool {
	if name == "" {
		return true
	}
	if len(name) > MaxNameLength {
		return false
	}
	return nameRegexp.MatchString(name)
}

// ExtractDomain extracts the domain part from an email address.
// Returns empty string if the email is invalid.
func ExtractDomain(email string) string {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		// Try simple extraction for malformed addresses
		at := strings.LastIndex(email, "@")
		if at <= 0 || at == len(email)-1 {
			return ""
		}
		return strings.ToLower(email[at+1:])
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || at == len(addr.Address)-1 {
		return ""
	}
	return strings.ToLower(addr.Address[at+1:])
}

// ExtractDomainOrDefault extracts the domain part from an email address.
// Returns the provided default value if the email is invalid or domain is empty.
func ExtractDomainOrDefault(email, defaultDomain string) string {
	domain := ExtractDomain(email)
	if domain == "" {
		return defaultDomain
	}
	return domain
}
