// Package domain holds identifier primitives shared across the registry.
//
// IDs are distinct types over uuid.UUID so the compiler rejects cross-entity
// assignment. Parse helpers enforce the invariant that IDs arriving at trust
// boundaries are valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "dataregistry/pkg/domain-errors"
)

// Typed entity identifiers.
type (
	UserID   uuid.UUID
	OrgID    uuid.UUID
	AdminID  uuid.UUID
	APIKeyID uuid.UUID
)

// maxIDLength bounds parser input; a canonical UUID string is 36 bytes and
// anything much longer is an attack, not a typo.
const maxIDLength = 64

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id exceeds maximum length")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return parsed, nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

// ParseOrgID validates and returns an OrgID.
func ParseOrgID(s string) (OrgID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return OrgID{}, err
	}
	return OrgID(parsed), nil
}

// ParseAdminID validates and returns an AdminID.
func ParseAdminID(s string) (AdminID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return AdminID{}, err
	}
	return AdminID(parsed), nil
}

// ParseAPIKeyID validates and returns an APIKeyID.
func ParseAPIKeyID(s string) (APIKeyID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return APIKeyID{}, err
	}
	return APIKeyID(parsed), nil
}

func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id OrgID) String() string    { return uuid.UUID(id).String() }
func (id AdminID) String() string  { return uuid.UUID(id).String() }
func (id APIKeyID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id OrgID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AdminID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id APIKeyID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewUserID allocates a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewOrgID allocates a fresh random OrgID.
func NewOrgID() OrgID { return OrgID(uuid.New()) }

// NewAdminID allocates a fresh random AdminID.
func NewAdminID() AdminID { return AdminID(uuid.New()) }

// NewAPIKeyID allocates a fresh random APIKeyID.
func NewAPIKeyID() APIKeyID { return APIKeyID(uuid.New()) }
