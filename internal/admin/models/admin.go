package models

import (
	"time"

	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
)

// AdminType scopes an admin to one registrant queue.
type AdminType string

const (
	AdminIndividual   AdminType = "individual"
	AdminOrganization AdminType = "organization"
)

func (t AdminType) Valid() bool {
	return t == AdminIndividual || t == AdminOrganization
}

// Admin is a reviewer account. Passwords are stored as encoded
// PBKDF2 hashes, never in plaintext.
type Admin struct {
	ID           domain.AdminID `json:"id"`
	Username     string         `json:"username"`
	PasswordHash string         `json:"-"`
	Type         AdminType      `json:"admin_type"`
	Email        string         `json:"email"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	LastLogin    *time.Time     `json:"last_login,omitempty"`
}

// LoginRequest is the credential payload for the admin login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	if r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	return nil
}

// ReviewRequest carries the optional rejection reason for review
// decisions.
type ReviewRequest struct {
	Reason string `json:"reason,omitempty"`
}
