// Package service orchestrates individual registration: canonical ID
// allocation, contact persistence, audit, and notification.
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
	"dataregistry/internal/platform/metrics"
	"dataregistry/internal/user/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/audit"
	"dataregistry/pkg/platform/sentinel"
	txhelper "dataregistry/pkg/platform/tx"
	"dataregistry/pkg/requestcontext"
)

// claimAttempts bounds the allocate-then-insert retry loop. Each retry
// re-probes, so losing more than this many races in a row means
// something other than contention is wrong.
const claimAttempts = 3

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, userID domain.UserID) (*models.User, error)
	FindByCanonicalID(ctx context.Context, canonicalID domain.CanonicalID) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	ListByStatus(ctx context.Context, status models.Status, limit, offset int) ([]*models.User, error)
	AddEmail(ctx context.Context, e *models.Email) error
	AddPhone(ctx context.Context, p *models.Phone) error
	AddAddress(ctx context.Context, a *models.Address) error
	ListEmails(ctx context.Context, userID domain.UserID) ([]models.Email, error)
	ListPhones(ctx context.Context, userID domain.UserID) ([]models.Phone, error)
	ListAddresses(ctx context.Context, userID domain.UserID) ([]models.Address, error)
	SetPrimaryEmail(ctx context.Context, userID domain.UserID, emailID uuid.UUID) error
	SetPrimaryPhone(ctx context.Context, userID domain.UserID, phoneID uuid.UUID) error
	SetPrimaryAddress(ctx context.Context, userID domain.UserID, addressID uuid.UUID) error
}

// Allocator turns a derived base ID into a free candidate.
type Allocator interface {
	Allocate(ctx context.Context, base domain.CanonicalID) (domain.CanonicalID, error)
}

// EmailValidator vets registrant email domains.
type EmailValidator interface {
	Validate(ctx context.Context, email string) error
}

// Auditor records audit events.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Profile bundles a user with their contact records for read endpoints.
type Profile struct {
	User      *models.User     `json:"user"`
	Emails    []models.Email   `json:"emails"`
	Phones    []models.Phone   `json:"phones"`
	Addresses []models.Address `json:"addresses"`
}

type Service struct {
	db        *sql.DB
	store     Store
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

// Register derives a canonical ID from the registrant's attributes,
// claims it by inserting, and stores the primary contacts in the same
// transaction. The new user starts pending and unverified.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(ctx, req.Email); err != nil {
		return nil, err
	}

	base, err := canonical.DeriveIndividual(req.FirstName, req.LastName, req.Phone, req.Email)
	if err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate verification token")
	}

	var created *models.User
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
			// Lost the claim race; re-probe and try the next candidate.
			created = nil
			continue
		}
		return nil, err
	}
	if created == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "could not allocate a unique registry id")
	}

	s.metrics.RecordRegistration("user")

	msg := notify.Verification(req.Email, req.FirstName, token, s.baseURL)
	if err := s.sender.Send(ctx, msg); err != nil {
		// Registration stands; the registrant can request a resend.
		s.logger.WarnContext(ctx, "verification email failed",
			"user_id", created.ID.String(),
			"error", err,
		)
		s.emitNotificationFailure(ctx, created, err)
	}

	if s.adminEmail != "" {
		notice := notify.PendingReview(s.adminEmail, req.FirstName+" "+req.LastName, "individual")
		if err := s.sender.Send(ctx, notice); err != nil {
			s.logger.WarnContext(ctx, "admin notice email failed",
				"user_id", created.ID.String(),
				"error", err,
			)
		}
	}

	return created, nil
}

func (s *Service) insertRegistration(
	ctx context.Context,
	req models.RegisterRequest,
	candidate domain.CanonicalID,
	token string,
) (*models.User, error) {
	now := s.now()
	u := &models.User{
		ID:                domain.NewUserID(),
		CanonicalID:       candidate,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Status:            models.StatusPending,
		RequestDate:       now,
		VerificationToken: token,
		Metadata:          req.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, u); err != nil {
			return err
		}
		email := &models.Email{
			ID:        uuid.New(),
			UserID:    u.ID,
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
			UserID:    u.ID,
			Number:    req.Phone,
			IsPrimary: true,
			CreatedAt: now,
		}
		if err := s.store.AddPhone(txCtx, phone); err != nil {
			return err
		}
		if req.Address != nil {
			address := &models.Address{
				ID:         uuid.New(),
				UserID:     u.ID,
				Line1:      req.Address.Line1,
				Line2:      req.Address.Line2,
				City:       req.Address.City,
				Region:     req.Address.Region,
				PostalCode: req.Address.PostalCode,
				Country:    strings.ToUpper(req.Address.Country),
				IsPrimary:  true,
				CreatedAt:  now,
			}
			if err := s.store.AddAddress(txCtx, address); err != nil {
				return err
			}
		}

		after, _ := json.Marshal(u)
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "user",
			EntityID:   u.ID.String(),
			Action:     string(audit.EventUserRegistered),
			ActorType:  audit.ActorRegistrant,
			ActorID:    u.ID.String(),
			After:      after,
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// VerifyEmail marks the user verified and burns the token.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "verification token is required")
	}
	u, err := s.store.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification token is invalid or already used")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verify email")
	}

	u.IsVerified = true
	u.VerificationToken = ""
	u.UpdatedAt = s.now()

	err = txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.store.Update(txCtx, u); err != nil {
			return err
		}
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "user",
			EntityID:   u.ID.String(),
			Action:     string(audit.EventEmailVerified),
			ActorType:  audit.ActorRegistrant,
			ActorID:    u.ID.String(),
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verify email")
	}
	return u, nil
}

// Get returns one user by ID.
func (s *Service) Get(ctx context.Context, userID domain.UserID) (*models.User, error) {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get user")
	}
	return u, nil
}

// GetProfile returns the user with all contact records.
func (s *Service) GetProfile(ctx context.Context, userID domain.UserID) (*Profile, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	emails, err := s.store.ListEmails(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get profile")
	}
	phones, err := s.store.ListPhones(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get profile")
	}
	addresses, err := s.store.ListAddresses(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get profile")
	}
	return &Profile{User: u, Emails: emails, Phones: phones, Addresses: addresses}, nil
}

// AddEmail attaches another email to the user, optionally promoting it
// to primary in the same transaction.
func (s *Service) AddEmail(ctx context.Context, userID domain.UserID, address string, makePrimary bool) (*models.Email, error) {
	if err := s.validator.Validate(ctx, address); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}

	email := &models.Email{
		ID:        uuid.New(),
		UserID:    userID,
		Address:   address,
		Domain:    emailDomain(address),
		CreatedAt: s.now(),
	}
	err := txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.store.AddEmail(txCtx, email); err != nil {
			return err
		}
		if makePrimary {
			if err := s.store.SetPrimaryEmail(txCtx, userID, email.ID); err != nil {
				return err
			}
			email.IsPrimary = true
		}
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "user",
			EntityID:   userID.String(),
			Action:     string(audit.EventContactAdded),
			ActorType:  audit.ActorRegistrant,
			ActorID:    userID.String(),
			After:      mustJSON(email),
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, mapContactError(err, "email")
	}
	return email, nil
}

// AddPhone attaches another phone number to the user.
func (s *Service) AddPhone(ctx context.Context, userID domain.UserID, number string, makePrimary bool) (*models.Phone, error) {
	if number == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "phone is required")
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}

	phone := &models.Phone{
		ID:        uuid.New(),
		UserID:    userID,
		Number:    number,
		CreatedAt: s.now(),
	}
	err := txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.store.AddPhone(txCtx, phone); err != nil {
			return err
		}
		if makePrimary {
			if err := s.store.SetPrimaryPhone(txCtx, userID, phone.ID); err != nil {
				return err
			}
			phone.IsPrimary = true
		}
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "user",
			EntityID:   userID.String(),
			Action:     string(audit.EventContactAdded),
			ActorType:  audit.ActorRegistrant,
			ActorID:    userID.String(),
			After:      mustJSON(phone),
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, mapContactError(err, "phone")
	}
	return phone, nil
}

// AddAddress attaches another postal address to the user.
func (s *Service) AddAddress(ctx context.Context, userID domain.UserID, input models.AddressInput, makePrimary bool) (*models.Address, error) {
	if input.Line1 == "" || input.City == "" || len(input.Country) != 2 {
		return nil, dErrors.New(dErrors.CodeValidation, "address requires line1, city, and a two-letter country")
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}

	address := &models.Address{
		ID:         uuid.New(),
		UserID:     userID,
		Line1:      input.Line1,
		Line2:      input.Line2,
		City:       input.City,
		Region:     input.Region,
		PostalCode: input.PostalCode,
		Country:    strings.ToUpper(input.Country),
		CreatedAt:  s.now(),
	}
	err := txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := s.store.AddAddress(txCtx, address); err != nil {
			return err
		}
		if makePrimary {
			if err := s.store.SetPrimaryAddress(txCtx, userID, address.ID); err != nil {
				return err
			}
			address.IsPrimary = true
		}
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "user",
			EntityID:   userID.String(),
			Action:     string(audit.EventContactAdded),
			ActorType:  audit.ActorRegistrant,
			ActorID:    userID.String(),
			After:      mustJSON(address),
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, mapContactError(err, "address")
	}
	return address, nil
}

// SetPrimaryEmail promotes an existing email to primary.
func (s *Service) SetPrimaryEmail(ctx context.Context, userID domain.UserID, emailID uuid.UUID) error {
	return s.setPrimary(ctx, userID, "email", func(txCtx context.Context) error {
		return s.store.SetPrimaryEmail(txCtx, userID, emailID)
	})
}

// SetPrimaryPhone promotes an existing phone to primary.
func (s *Service) SetPrimaryPhone(ctx context.Context, userID domain.UserID, phoneID uuid.UUID) error {
	return s.setPrimary(ctx, userID, "phone", func(txCtx context.Context) error {
		return s.store.SetPrimaryPhone(txCtx, userID, phoneID)
	})
}

// SetPrimaryAddress promotes an existing address to primary.
func (s *Service) SetPrimaryAddress(ctx context.Context, userID domain.UserID, addressID uuid.UUID) error {
	return s.setPrimary(ctx, userID, "address", func(txCtx context.Context) error {
		return s.store.SetPrimaryAddress(txCtx, userID, addressID)
	})
}

func (s *Service) setPrimary(ctx context.Context, userID domain.UserID, kind string, swap func(context.Context) error) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	err := txhelper.Run(ctx, s.db, func(txCtx context.Context) error {
		if err := swap(txCtx); err != nil {
			return err
		}
		return s.auditor.Emit(txCtx, audit.Event{
			EntityType: "user",
			EntityID:   userID.String(),
			Action:     string(audit.EventPrimaryContactChanged),
			ActorType:  audit.ActorRegistrant,
			ActorID:    userID.String(),
			After:      mustJSON(map[string]string{"kind": kind}),
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return mapContactError(err, kind)
	}
	return nil
}

func (s *Service) emitNotificationFailure(ctx context.Context, u *models.User, sendErr error) {
	event := audit.Event{
		EntityType: "user",
		EntityID:   u.ID.String(),
		Action:     string(audit.EventNotificationFailed),
		ActorType:  audit.ActorSystem,
		After:      mustJSON(map[string]string{"error": sendErr.Error()}),
		RequestID:  requestcontext.RequestID(ctx),
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

func mapContactError(err error, kind string) error {
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, kind+" already registered for this user")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "another "+kind+" is already primary")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, kind+" not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "update "+kind)
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
