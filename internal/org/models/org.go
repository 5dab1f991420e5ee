package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	usermodels "dataregistry/internal/user/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
)

// Organization is the aggregate root for an organization registrant. It
// shares the review lifecycle with individual users; canonical IDs from
// both namespaces draw on the same uniqueness pool.
type Organization struct {
	ID                domain.OrgID       `json:"id"`
	CanonicalID       domain.CanonicalID `json:"canonical_id"`
	Name              string             `json:"organization_name"`
	Type              string             `json:"organization_type"`
	Address           string             `json:"address,omitempty"`
	Website           string             `json:"website,omitempty"`
	Status            usermodels.Status  `json:"status"`
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

func (o *Organization) IsPending() bool { return o.Status == usermodels.StatusPending }

func (o *Organization) CanApprove() error {
	if !o.Status.CanTransitionTo(usermodels.StatusApproved) {
		return dErrors.New(dErrors.CodeInvariantViolation, "organization is not pending review")
	}
	return nil
}

func (o *Organization) ApplyApproval(adminID domain.AdminID, now time.Time) {
	o.Status = usermodels.StatusApproved
	o.ApprovedAt = &now
	o.ApprovedBy = &adminID
	o.UpdatedAt = now
}

func (o *Organization) CanReject() error {
	if !o.Status.CanTransitionTo(usermodels.StatusRejected) {
		return dErrors.New(dErrors.CodeInvariantViolation, "organization is not pending review")
	}
	return nil
}

func (o *Organization) ApplyRejection(adminID domain.AdminID, reason string, now time.Time) {
	o.Status = usermodels.StatusRejected
	o.RejectionReason = reason
	o.ApprovedBy = &adminID
	o.UpdatedAt = now
}

// Email is one email address attached to an organization.
type Email struct {
	ID        uuid.UUID    `json:"id"`
	OrgID     domain.OrgID `json:"organization_id"`
	Address   string       `json:"email"`
	Domain    string       `json:"domain"`
	IsPrimary bool         `json:"is_primary"`
	CreatedAt time.Time    `json:"created_at"`
}

// Phone is one phone number attached to an organization.
type Phone struct {
	ID        uuid.UUID    `json:"id"`
	OrgID     domain.OrgID `json:"organization_id"`
	Number    string       `json:"phone"`
	IsPrimary bool         `json:"is_primary"`
	CreatedAt time.Time    `json:"created_at"`
}

// Member links an approved user to an organization. At most one member
// per organization is the primary contact, enforced by an exclusion
// constraint like the contact tables.
type Member struct {
	OrgID     domain.OrgID  `json:"organization_id"`
	UserID    domain.UserID `json:"user_id"`
	Role      string        `json:"role"`
	IsPrimary bool          `json:"is_primary"`
	AddedAt   time.Time     `json:"added_at"`
}

// RegisterRequest is the payload accepted by the organization
// registration endpoint.
type RegisterRequest struct {
	Name     string          `json:"organization_name"`
	Type     string          `json:"organization_type"`
	Email    string          `json:"email"`
	Phone    string          `json:"phone"`
	Address  string          `json:"address,omitempty"`
	Website  string          `json:"website,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (r *RegisterRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "organization_name is required")
	}
	if r.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "organization_type is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if r.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "phone is required")
	}
	return nil
}
