// Package service orchestrates organization registration and
// membership.
package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dataregistry/internal/canonical"
	"dataregistry/internal/notify"
	"dataregistry/internal/org/models"
	"dataregistry/internal/platform/metrics"
	usermodels "dataregistry/internal/user/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/audit"
	"dataregistry/pkg/platform/sentinel"
	txhelper "dataregistry/pkg/platform/tx"
	"dataregistry/pkg/requestcontext"
)

const claimAttempts = 3

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, o *models.Organization) error
	FindByID(ctx context.Context, orgID domain.OrgID) (*models.Organization, error)
	FindByCanonicalID(ctx context.Context, canonicalID domain.CanonicalID) (*models.Organization, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.Organization, error)
	Update(ctx context.Context, o *models.Organization) error
	ListByStatus(ctx context.Context, status usermodels.Status, limit, offset int) ([]*models.Organization, error)
	AddEmail(ctx context.Context, e *models.Email) error
	AddPhone(ctx context.Context, p *models.Phone) error
	ListEmails(ctx context.Context, orgID domain.OrgID) ([]models.Email, error)
	ListPhones(ctx context.Context, orgID domain.OrgID) ([]models.Phone, error)
	AddMember(ctx context.Context, m *models.Member) error
	ListMembers(ctx context.Context, orgID domain.OrgID) ([]models.Member, error)
	SetPrimaryContact(ctx context.Context, orgID domain.OrgID, userID domain.UserID) error
}

// UserDirectory resolves users for membership checks.
type UserDirectory interface {
	Get(ctx context.Context, userID domain.UserID) (*usermodels.User, error)
}

// Allocator turns a derived base ID into a free candidate.
type Allocator interface {
	Allocate(ctx context.Context, base domain.CanonicalID) (domain.CanonicalID, error)
}

// EmailValidator vets organization email domains; corporate domains
// only.
type EmailValidator interface {
	ValidateCorporate(ctx context.Context, email string) error
}

// Auditor records audit events.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Profile bundles the organization with contacts and members.
type Profile struct {
	Organization *models.Organization `json:"organization"`
	Emails       []models.Email       `json:"emails"`
	Phones       []models.Phone       `json:"phones"`
	Members      []models.Member      `json:"members"`
}

type Service struct {
	db        *sql.DB
	store     Store
	users     UserDirectory
	allocator Allocator
	validator EmailValidator
	auditor   Auditor
	sender    notify.Sender
	metrics    *metrics.Metrics
	logger     *slog.Logger
	baseURL    string
	adminEmail string
	now        func() time.Time
}

func New(
	db *sql.DB,
	store Store,
	users UserDirectory,
	allocator Allocator,
	validator EmailValidator,
	auditor Auditor,
	sender notify.Sender,
	m *metrics.Metrics,
	logger *slog.Logger,
	baseURL string,
	adminEmail string,
) *Service {
	return &Service{
		db:         db,
		store:      store,
		users:      users,
		allocator:  allocator,
		validator:  validator,
		auditor:    auditor,
		sender:     sender,
		metrics:    m,
		logger:     logger,
		baseURL:    baseURL,
		adminEmail: adminEmail,
		now:        time.Now,
	}
}

// Register derives an ORG-prefixed canonical ID and claims it by
// inserting, storing the primary contacts in the same transaction.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.Organization, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateCorporate(ctx, req.Email); err != nil {
		return nil, err
	}

	base, err := canonical.DeriveOrganization(req.Name, req.Phone, req.Email)
	if err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate verification token")
	}

	var created *models.Organization
	for attempt := 0; attempt < claimAttempts; attempt++ {
		candidate, err := s.allocator.Allocate(ctx, base)
		if err != nil {
			return nil, err
		}

		created, err = s.insertRegistration(ctx, req, candidate, token)
		if err == nil {
			break
		}
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			created = nil
			continue
		}
		return nil, err
	}
	if created == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "could not allocate a unique registry id")
	}

	s.metrics.RecordRegistration("organization")

	msg := notify.Verification(req.Email, req.Name, token, s.baseURL)
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "verification email failed",
			"organization_id", created.ID.String(),
			"error", err,
		)
		s.emitNotificationFailure(ctx, created, err)
	}

	if s.adminEmail != "" {
		notice := notify.PendingReview(s.adminEmail, req.Name, "organization")
		if err := s.sender.Send(ctx, notice); err != nil {
			s.logger.WarnContext(ctx, "admin notice email failed",
				"organization_id", created.ID.String(),
				"error", err,
			)
		}
	}

	return created, nil
}

func (s *Service) emitNotificationFailure(ctx context.Context, o *models.Organization, sendErr error) {
	event := audit.Event{
		EntityType: "organization",
		EntityID:   o.ID.String(),
		Action:     string(audit.EventNotificationFailed),
		ActorType:  audit.ActorSystem,
		After:      mustJSON(map[string]string{"error": sendErr.Error()}),
		RequestID:  requestcontext.RequestID(ctx),
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

func (s *Service) insertRegistration(
	ctx context.Context,
	req models.RegisterRequest,
	candidate domain.CanonicalID,
	token string,
) (*models.Organization, error) {
	now := s.now()
	o := &models.Organization{
		ID:                domain.NewOrgID(),
		CanonicalID:       candidate,
		Name:              req.Name,
		Type:              req.Type,
		Address:           req.Address,
		Website:           req.Website,
		Status:            usermodels.StatusPending,
		RequestDate:       now,
		VerificationToken: token,
		Metadata:          req.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, o); err != nil {
			return err
		}
		email := &models.Email{
			ID:        uuid.New(),
			OrgID:     o.ID,
			Address:   req.Email,
			Domain:    emailDomain(req.Email),
			IsPrimary: true,
			CreatedAt: now,
		}
		if err := s.store.AddEmail(txCtx, email); err != nil {
			return err
		}
		phone := &models.Phone{
			ID:        uuid.New(),
			OrgID:     o.ID,
			Number:    req.Phone,
			IsPrimary: true,
			CreatedAt: now,
		}
		if err := s.store.AddPhone(txCtx, phone); err != nil {
			return err
		}

		after, _ := json.Marshal(o)
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "organization",
			EntityID:   o.ID.String(),
			Action:     string(audit.EventOrgRegistered),
			ActorType:  audit.ActorRegistrant,
			ActorID:    o.ID.String(),
			After:      after,
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// VerifyEmail marks the organization verified and burns the token.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*models.Organization, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "verification token is required")
	}
	o, err := s.store.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification token is invalid or already used")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verify email")
	}

	o.IsVerified = true
	o.VerificationToken = ""
	o.UpdatedAt = s.now()

	err = txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.store.Update(txCtx, o); err != nil {
			return err
		}
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "organization",
			EntityID:   o.ID.String(),
			Action:     string(audit.EventEmailVerified),
			ActorType:  audit.ActorRegistrant,
			ActorID:    o.ID.String(),
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verify email")
	}
	return o, nil
}

// Get returns one organization by ID.
func (s *Service) Get(ctx context.Context, orgID domain.OrgID) (*models.Organization, error) {
	o, err := s.store.FindByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get organization")
	}
	return o, nil
}

// GetProfile returns the organization with contacts and members.
func (s *Service) GetProfile(ctx context.Context, orgID domain.OrgID) (*Profile, error) {
	o, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	emails, err := s.store.ListEmails(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get organization profile")
	}
	phones, err := s.store.ListPhones(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get organization profile")
	}
	members, err := s.store.ListMembers(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get organization profile")
	}
	return &Profile{Organization: o, Emails: emails, Phones: phones, Members: members}, nil
}

// AddMember links an approved user to the organization. Only approved
// users can represent an organization.
func (s *Service) AddMember(ctx context.Context, orgID domain.OrgID, userID domain.UserID, role string, makePrimary bool) (*models.Member, error) {
	if role == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "role is required")
	}
	if _, err := s.Get(ctx, orgID); err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Status != usermodels.StatusApproved {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "only approved users can join an organization")
	}

	member := &models.Member{
		OrgID:   orgID,
		UserID:  userID,
		Role:    role,
		AddedAt: s.now(),
	}
	err = txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.store.AddMember(txCtx, member); err != nil {
			return err
		}
		if makePrimary {
			if err := s.store.SetPrimaryContact(txCtx, orgID, userID); err != nil {
				return err
			}
			member.IsPrimary = true
		}
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "organization",
			EntityID:   orgID.String(),
			Action:     string(audit.EventMemberAdded),
			ActorType:  audit.ActorRegistrant,
			ActorID:    userID.String(),
			After:      mustJSON(member),
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, mapMemberError(err)
	}
	return member, nil
}

// SetPrimaryContact promotes an existing member to primary contact.
func (s *Service) SetPrimaryContact(ctx context.Context, orgID domain.OrgID, userID domain.UserID) error {
	if _, err := s.Get(ctx, orgID); err != nil {
		return err
	}
	err := txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.store.SetPrimaryContact(txCtx, orgID, userID); err != nil {
			return err
		}
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "organization",
			EntityID:   orgID.String(),
			Action:     string(audit.EventPrimaryContactChanged),
			ActorType:  audit.ActorRegistrant,
			ActorID:    userID.String(),
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return mapMemberError(err)
	}
	return nil
}

func mapMemberError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "user is already a member of this organization")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "another member is already the primary contact")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "member not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "update membership")
	}
}

func emailDomain(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
