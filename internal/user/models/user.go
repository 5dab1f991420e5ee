package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
)

// Status is the review lifecycle of a registrant.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// CanTransitionTo limits status changes to the review flow:
// pending → approved and pending → rejected only. Decisions are final.
func (s Status) CanTransitionTo(target Status) bool {
	return s == StatusPending && (target == StatusApproved || target == StatusRejected)
}

// User is the aggregate root for an individual registrant.
//
// Invariants:
//   - CanonicalID is unique across the whole registry, organizations included
//   - Status moves pending → approved or pending → rejected, never back
//   - ApprovedAt and ApprovedBy are set together, only on approval
//   - The canonical ID never changes after the row is claimed
type User struct {
	ID                domain.UserID      `json:"id"`
	CanonicalID       domain.CanonicalID `json:"canonical_id"`
	FirstName         string             `json:"first_name"`
	LastName          string             `json:"last_name"`
	Status            Status             `json:"status"`
	RequestDate       time.Time          `json:"request_date"`
	ApprovedAt        *time.Time         `json:"approved_at,omitempty"`
	ApprovedBy        *domain.AdminID    `json:"approved_by,omitempty"`
	RejectionReason   string             `json:"rejection_reason,omitempty"`
	VerificationToken string             `json:"-"`
	IsVerified        bool               `json:"is_verified"`
	Metadata          json.RawMessage    `json:"metadata,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func (u *User) IsPending() bool { return u.Status == StatusPending }

// CanApprove checks the review transition without applying it.
func (u *User) CanApprove() error {
	if !u.Status.CanTransitionTo(StatusApproved) {
		return dErrors.New(dErrors.CodeInvariantViolation, "user is not pending review")
	}
	return nil
}

// ApplyApproval transitions the user to approved. Call CanApprove first.
func (u *User) ApplyApproval(adminID domain.AdminID, now time.Time) {
	u.Status = StatusApproved
	u.ApprovedAt = &now
	u.ApprovedBy = &adminID
	u.UpdatedAt = now
}

// CanReject checks the review transition without applying it.
func (u *User) CanReject() error {
	if !u.Status.CanTransitionTo(StatusRejected) {
		return dErrors.New(dErrors.CodeInvariantViolation, "user is not pending review")
	}
	return nil
}

// ApplyRejection transitions the user to rejected with the given reason.
func (u *User) ApplyRejection(adminID domain.AdminID, reason string, now time.Time) {
	u.Status = StatusRejected
	u.RejectionReason = reason
	u.ApprovedBy = &adminID
	u.UpdatedAt = now
}

// Email is one email address attached to a user. At most one per user
// carries IsPrimary; the database enforces that with an exclusion
// constraint rather than application logic.
type Email struct {
	ID         uuid.UUID     `json:"id"`
	UserID     domain.UserID `json:"user_id"`
	Address    string        `json:"email"`
	Domain     string        `json:"domain"`
	IsPrimary  bool          `json:"is_primary"`
	IsVerified bool          `json:"is_verified"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Phone is one phone number attached to a user.
type Phone struct {
	ID         uuid.UUID     `json:"id"`
	UserID     domain.UserID `json:"user_id"`
	Number     string        `json:"phone"`
	IsPrimary  bool          `json:"is_primary"`
	IsVerified bool          `json:"is_verified"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Address is one postal address attached to a user.
type Address struct {
	ID         uuid.UUID     `json:"id"`
	UserID     domain.UserID `json:"user_id"`
	Line1      string        `json:"line1"`
	Line2      string        `json:"line2,omitempty"`
	City       string        `json:"city"`
	Region     string        `json:"region,omitempty"`
	PostalCode string        `json:"postal_code,omitempty"`
	Country    string        `json:"country"`
	IsPrimary  bool          `json:"is_primary"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RegisterRequest is the payload accepted by the registration endpoint.
type RegisterRequest struct {
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Address   *AddressInput   `json:"address,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// AddressInput is the postal address portion of a registration.
type AddressInput struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// Validate checks the request fields that do not need a database.
func (r *RegisterRequest) Validate() error {
	if r.FirstName == "" {
		return dErrors.New(dErrors.CodeValidation, "first_name is required")
	}
	if r.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "last_name is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if r.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "phone is required")
	}
	if r.Address != nil {
		if r.Address.Line1 == "" || r.Address.City == "" || r.Address.Country == "" {
			return dErrors.New(dErrors.CodeValidation, "address requires line1, city, and country")
		}
		if len(r.Address.Country) != 2 {
			return dErrors.New(dErrors.CodeValidation, "address country must be a two-letter code")
		}
	}
	return nil
}
