package models

import (
	"time"

	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
)

const DefaultRateLimit = 1000

// APIKey is a lookup API credential. Only the SHA-256 digest of the
// key is stored; the plaintext is shown once at creation.
type APIKey struct {
	ID          domain.APIKeyID `json:"id"`
	KeyHash     string          `json:"-"`
	ClientName  string          `json:"client_name"`
	ClientEmail string          `json:"client_email"`
	IsActive    bool            `json:"is_active"`
	RateLimit   int             `json:"rate_limit"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUsed    *time.Time      `json:"last_used,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// Expired reports whether the key is past its expiry.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// CreateRequest is the payload for issuing a new API key.
type CreateRequest struct {
	ClientName  string     `json:"client_name"`
	ClientEmail string     `json:"client_email"`
	RateLimit   int        `json:"rate_limit,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (r *CreateRequest) Validate() error {
	if r.ClientName == "" {
		return dErrors.New(dErrors.CodeValidation, "client_name is required")
	}
	if r.ClientEmail == "" {
		return dErrors.New(dErrors.CodeValidation, "client_email is required")
	}
	if r.RateLimit < 0 {
		return dErrors.New(dErrors.CodeValidation, "rate_limit cannot be negative")
	}
	return nil
}
