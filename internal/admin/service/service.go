// Package service implements admin authentication and the review
// workflow for pending registrations.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dataregistry/internal/admin/models"
	"dataregistry/internal/notify"
	orgmodels "dataregistry/internal/org/models"
	"dataregistry/internal/platform/metrics"
	usermodels "dataregistry/internal/user/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/email"
	"dataregistry/pkg/platform/audit"
	"dataregistry/pkg/platform/sentinel"
	txhelper "dataregistry/pkg/platform/tx"
	"dataregistry/pkg/requestcontext"
)

// AdminStore holds reviewer accounts.
type AdminStore interface {
	FindByID(ctx context.Context, adminID domain.AdminID) (*models.Admin, error)
	FindByUsername(ctx context.Context, username string) (*models.Admin, error)
	RecordLogin(ctx context.Context, adminID domain.AdminID, at time.Time) error
}

// UserReviewStore is the slice of the user store the review queue
// needs.
type UserReviewStore interface {
	FindByID(ctx context.Context, userID domain.UserID) (*usermodels.User, error)
	Update(ctx context.Context, u *usermodels.User) error
	ListByStatus(ctx context.Context, status usermodels.Status, limit, offset int) ([]*usermodels.User, error)
	CountByStatus(ctx context.Context, status usermodels.Status) (int, error)
	ListEmails(ctx context.Context, userID domain.UserID) ([]usermodels.Email, error)
}

// OrgReviewStore is the slice of the organization store the review
// queue needs.
type OrgReviewStore interface {
	FindByID(ctx context.Context, orgID domain.OrgID) (*orgmodels.Organization, error)
	Update(ctx context.Context, o *orgmodels.Organization) error
	ListByStatus(ctx context.Context, status usermodels.Status, limit, offset int) ([]*orgmodels.Organization, error)
	CountByStatus(ctx context.Context, status usermodels.Status) (int, error)
	ListEmails(ctx context.Context, orgID domain.OrgID) ([]orgmodels.Email, error)
}

// TokenIssuer signs session tokens for authenticated admins.
type TokenIssuer interface {
	Issue(adminID domain.AdminID, adminType string) (string, error)
}

// Auditor records audit events.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, entityType, entityID string) ([]audit.Event, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Service struct {
	db      *sql.DB
	admins  AdminStore
	users   UserReviewStore
	orgs    OrgReviewStore
	tokens  TokenIssuer
	auditor Auditor
	sender  notify.Sender
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	verify  func(plaintext, encoded string) error
}

func New(
	db *sql.DB,
	admins AdminStore,
	users UserReviewStore,
	orgs OrgReviewStore,
	tokens TokenIssuer,
	auditor Auditor,
	sender notify.Sender,
	m *metrics.Metrics,
	logger *slog.Logger,
	verify func(plaintext, encoded string) error,
) *Service {
	return &Service{
		db:      db,
		admins:  admins,
		users:   users,
		orgs:    orgs,
		tokens:  tokens,
		auditor: auditor,
		sender:  sender,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		verify:  verify,
	}
}

// LoginResult carries the signed token plus the authenticated account.
type LoginResult struct {
	Token string        `json:"token"`
	Admin *models.Admin `json:"admin"`
}

// Login authenticates an admin. Unknown usernames, wrong passwords and
// deactivated accounts all fail with the same opaque message; only the
// audit trail distinguishes them.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	a, err := s.admins.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.emitLoginFailure(ctx, req.Username, "unknown username")
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "login")
	}
	if !a.IsActive {
		s.emitLoginFailure(ctx, req.Username, "account deactivated")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	if err := s.verify(req.Password, a.PasswordHash); err != nil {
		s.emitLoginFailure(ctx, req.Username, "wrong password")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	now := s.now()
	if err := s.admins.RecordLogin(ctx, a.ID, now); err != nil {
		s.logger.WarnContext(ctx, "could not record admin login", "admin_id", a.ID.String(), "error", err)
	}
	a.LastLogin = &now

	tok, err := s.tokens.Issue(a.ID, string(a.Type))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "login")
	}

	s.emitAdminEvent(ctx, audit.Event{
		EntityType: "admin",
		EntityID:   a.ID.String(),
		Action:     string(audit.EventAdminLogin),
		ActorType:  audit.ActorAdmin,
		ActorID:    a.ID.String(),
	})

	return &LoginResult{Token: tok, Admin: a}, nil
}

// PendingUsers is one page of the individual review queue.
type PendingUsers struct {
	Users []*usermodels.User `json:"users"`
	Total int                `json:"total"`
}

func (s *Service) ListPendingUsers(ctx context.Context, limit, offset int) (*PendingUsers, error) {
	users, err := s.users.ListByStatus(ctx, usermodels.StatusPending, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list pending users")
	}
	total, err := s.users.CountByStatus(ctx, usermodels.StatusPending)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list pending users")
	}
	return &PendingUsers{Users: users, Total: total}, nil
}

// PendingOrganizations is one page of the organization review queue.
type PendingOrganizations struct {
	Organizations []*orgmodels.Organization `json:"organizations"`
	Total         int                       `json:"total"`
}

func (s *Service) ListPendingOrganizations(ctx context.Context, limit, offset int) (*PendingOrganizations, error) {
	orgs, err := s.orgs.ListByStatus(ctx, usermodels.StatusPending, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list pending organizations")
	}
	total, err := s.orgs.CountByStatus(ctx, usermodels.StatusPending)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list pending organizations")
	}
	return &PendingOrganizations{Organizations: orgs, Total: total}, nil
}

// ApproveUser transitions a pending user to approved and reveals the
// canonical ID to the registrant by email.
func (s *Service) ApproveUser(ctx context.Context, adminID domain.AdminID, userID domain.UserID) (*usermodels.User, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := u.CanApprove(); err != nil {
		return nil, err
	}

	before := mustJSON(u)
	u.ApplyApproval(adminID, s.now())

	if err := s.persistUserReview(ctx, u, adminID, audit.EventUserApproved, before); err != nil {
		return nil, err
	}
	s.metrics.RecordReview("user", "approved")

	if addr, ok := s.primaryUserEmail(ctx, userID); ok {
		s.send(ctx, notify.Approved(addr, displayName(u.FirstName, u.LastName, addr), u.CanonicalID), "user", u.ID.String())
	}
	return u, nil
}

// RejectUser transitions a pending user to rejected. The reason is
// mandatory; it is stored on the record and sent to the registrant.
func (s *Service) RejectUser(ctx context.Context, adminID domain.AdminID, userID domain.UserID, reason string) (*usermodels.User, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a rejection reason is required")
	}
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := u.CanReject(); err != nil {
		return nil, err
	}

	before := mustJSON(u)
	u.ApplyRejection(adminID, reason, s.now())

	if err := s.persistUserReview(ctx, u, adminID, audit.EventUserRejected, before); err != nil {
		return nil, err
	}
	s.metrics.RecordReview("user", "rejected")

	if addr, ok := s.primaryUserEmail(ctx, userID); ok {
		s.send(ctx, notify.Rejected(addr, displayName(u.FirstName, u.LastName, addr), reason), "user", u.ID.String())
	}
	return u, nil
}

// ApproveOrganization transitions a pending organization to approved.
func (s *Service) ApproveOrganization(ctx context.Context, adminID domain.AdminID, orgID domain.OrgID) (*orgmodels.Organization, error) {
	o, err := s.loadOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := o.CanApprove(); err != nil {
		return nil, err
	}

	before := mustJSON(o)
	o.ApplyApproval(adminID, s.now())

	if err := s.persistOrgReview(ctx, o, adminID, audit.EventOrgApproved, before); err != nil {
		return nil, err
	}
	s.metrics.RecordReview("organization", "approved")

	if addr, ok := s.primaryOrgEmail(ctx, orgID); ok {
		s.send(ctx, notify.Approved(addr, o.Name, o.CanonicalID), "organization", o.ID.String())
	}
	return o, nil
}

// RejectOrganization transitions a pending organization to rejected.
// As with users, a blank reason is refused.
func (s *Service) RejectOrganization(ctx context.Context, adminID domain.AdminID, orgID domain.OrgID, reason string) (*orgmodels.Organization, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a rejection reason is required")
	}
	o, err := s.loadOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := o.CanReject(); err != nil {
		return nil, err
	}

	before := mustJSON(o)
	o.ApplyRejection(adminID, reason, s.now())

	if err := s.persistOrgReview(ctx, o, adminID, audit.EventOrgRejected, before); err != nil {
		return nil, err
	}
	s.metrics.RecordReview("organization", "rejected")

	if addr, ok := s.primaryOrgEmail(ctx, orgID); ok {
		s.send(ctx, notify.Rejected(addr, o.Name, reason), "organization", o.ID.String())
	}
	return o, nil
}

// EntityAuditTrail returns the audit history for one entity.
func (s *Service) EntityAuditTrail(ctx context.Context, entityType, entityID string) ([]audit.Event, error) {
	events, err := s.auditor.List(ctx, entityType, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit trail")
	}
	return events, nil
}

// RecentAuditTrail returns the newest audit events across all
// entities.
func (s *Service) RecentAuditTrail(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := s.auditor.ListRecent(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit trail")
	}
	return events, nil
}

func (s *Service) loadUser(ctx context.Context, userID domain.UserID) (*usermodels.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load user")
	}
	return u, nil
}

func (s *Service) loadOrg(ctx context.Context, orgID domain.OrgID) (*orgmodels.Organization, error) {
	o, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load organization")
	}
	return o, nil
}

func (s *Service) persistUserReview(ctx context.Context, u *usermodels.User, adminID domain.AdminID, action audit.AuditEvent, before json.RawMessage) error {
	err := txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.users.Update(txCtx, u); err != nil {
			return err
		}
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "user",
			EntityID:   u.ID.String(),
			Action:     string(action),
			ActorType:  audit.ActorAdmin,
			ActorID:    adminID.String(),
			Before:     before,
			After:      mustJSON(u),
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist review")
	}
	return nil
}

func (s *Service) persistOrgReview(ctx context.Context, o *orgmodels.Organization, adminID domain.AdminID, action audit.AuditEvent, before json.RawMessage) error {
	err := txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.orgs.Update(txCtx, o); err != nil {
			return err
		}
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "organization",
			EntityID:   o.ID.String(),
			Action:     string(action),
			ActorType:  audit.ActorAdmin,
			ActorID:    adminID.String(),
			Before:     before,
			After:      mustJSON(o),
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist review")
	}
	return nil
}

func (s *Service) primaryUserEmail(ctx context.Context, userID domain.UserID) (string, bool) {
	emails, err := s.users.ListEmails(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "could not load emails for notification", "user_id", userID.String(), "error", err)
		return "", false
	}
	for _, e := range emails {
		if e.IsPrimary {
			return e.Address, true
		}
	}
	return "", false
}

func (s *Service) primaryOrgEmail(ctx context.Context, orgID domain.OrgID) (string, bool) {
	emails, err := s.orgs.ListEmails(ctx, orgID)
	if err != nil {
		s.logger.WarnContext(ctx, "could not load emails for notification", "organization_id", orgID.String(), "error", err)
		return "", false
	}
	for _, e := range emails {
		if e.IsPrimary {
			return e.Address, true
		}
	}
	return "", false
}

// send delivers a review notification. Failures never fail the review,
// they are logged and audited.
func (s *Service) send(ctx context.Context, msg notify.Message, entityType, entityID string) {
	action := audit.EventNotificationSent
	after := map[string]string{"subject": msg.Subject, "to": msg.ToEmail}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed", "to", msg.ToEmail, "error", err)
		action = audit.EventNotificationFailed
		after["error"] = err.Error()
	}
	s.emitAdminEvent(ctx, audit.Event{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     string(action),
		ActorType:  audit.ActorSystem,
		After:      mustJSON(after),
	})
}

func (s *Service) emitLoginFailure(ctx context.Context, username, detail string) {
	s.emitAdminEvent(ctx, audit.Event{
		EntityType: "admin",
		EntityID:   username,
		Action:     string(audit.EventAdminLoginFailed),
		ActorType:  audit.ActorSystem,
		After:      mustJSON(map[string]string{"detail": detail}),
	})
}

func (s *Service) emitAdminEvent(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

func displayName(first, last, fallbackEmail string) string {
	name := strings.TrimSpace(first + " " + last)
	if name != "" {
		return name
	}
	f, l := email.DeriveNameFromEmail(fallbackEmail)
	return f + " " + l
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
