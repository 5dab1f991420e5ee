// Package domaincheck validates the email domains of registrants before
// a canonical ID is derived from them.
package domaincheck

import (
	"context"
	"net"
	"net/mail"
	"strings"

	dErrors "dataregistry/pkg/domain-errors"
)

// freeProviders are consumer mailbox domains that are rejected for
// organization registrations, which must use a corporate domain.
var freeProviders = map[string]bool{
	"gmail.com":      true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"aol.com":        true,
	"icloud.com":     true,
	"protonmail.com": true,
	"mail.com":       true,
	"gmx.com":        true,
	"zoho.com":       true,
}

// disposableMarkers flag throwaway mailbox services regardless of TLD.
var disposableMarkers = []string{
	"tempmail",
	"temp-mail",
	"10minutemail",
	"guerrillamail",
	"mailinator",
	"throwaway",
	"trashmail",
	"yopmail",
}

// Resolver is the DNS surface the validator needs. *net.Resolver
// satisfies it; tests inject a fake.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Validator checks email syntax, disposable-domain markers, and MX
// records. MX verification can be disabled for offline environments.
type Validator struct {
	resolver Resolver
	checkMX  bool
}

type Option func(*Validator)

// WithResolver overrides the DNS resolver.
func WithResolver(r Resolver) Option {
	return func(v *Validator) { v.resolver = r }
}

// WithoutMXCheck disables DNS verification.
func WithoutMXCheck() Option {
	return func(v *Validator) { v.checkMX = false }
}

func New(opts ...Option) *Validator {
	v := &Validator{resolver: net.DefaultResolver, checkMX: true}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks an individual registrant's email. Free providers are
// allowed; disposable domains are not.
func (v *Validator) Validate(ctx context.Context, email string) error {
	domain, err := v.domainOf(email)
	if err != nil {
		return err
	}
	if isDisposable(domain) {
		return dErrors.New(dErrors.CodeValidation, "disposable email domains are not accepted")
	}
	return v.verifyMX(ctx, domain)
}

// ValidateCorporate checks an organization's email and additionally
// rejects free consumer providers.
func (v *Validator) ValidateCorporate(ctx context.Context, email string) error {
	domain, err := v.domainOf(email)
	if err != nil {
		return err
	}
	if freeProviders[domain] {
		return dErrors.New(dErrors.CodeValidation, "organizations must register with a corporate email domain")
	}
	if isDisposable(domain) {
		return dErrors.New(dErrors.CodeValidation, "disposable email domains are not accepted")
	}
	return v.verifyMX(ctx, domain)
}

func (v *Validator) domainOf(email string) (string, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "invalid email address")
	}
	at := strings.LastIndexByte(addr.Address, '@')
	domain := strings.ToLower(addr.Address[at+1:])
	if !strings.Contains(domain, ".") {
		return "", dErrors.New(dErrors.CodeValidation, "email domain must be fully qualified")
	}
	return domain, nil
}

func (v *Validator) verifyMX(ctx context.Context, domain string) error {
	if !v.checkMX {
		return nil
	}
	records, err := v.resolver.LookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		return dErrors.New(dErrors.CodeValidation, "email domain has no mail exchanger")
	}
	return nil
}

func isDisposable(domain string) bool {
	for _, marker := range disposableMarkers {
		if strings.Contains(domain, marker) {
			return true
		}
	}
	return false
}
