// Package service issues, validates and revokes lookup API keys.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"dataregistry/internal/apikey/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/audit"
	"dataregistry/pkg/platform/sentinel"
	"dataregistry/pkg/requestcontext"
)

// keyPrefix makes leaked credentials greppable.
const keyPrefix = "reg_"

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, k *models.APIKey) error
	FindByID(ctx context.Context, keyID domain.APIKeyID) (*models.APIKey, error)
	FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	List(ctx context.Context) ([]*models.APIKey, error)
	TouchLastUsed(ctx context.Context, keyID domain.APIKeyID, at time.Time) error
	Revoke(ctx context.Context, keyID domain.APIKeyID) error
}

// Auditor records audit events.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store   Store
	auditor Auditor
	logger  *slog.Logger
	now     func() time.Time
}

func New(store Store, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{store: store, auditor: auditor, logger: logger, now: time.Now}
}

// Created carries the one-time plaintext key alongside the stored
// record.
type Created struct {
	Key    string         `json:"key"`
	APIKey *models.APIKey `json:"api_key"`
}

// Create issues a new key. The plaintext is returned exactly once;
// only its digest is persisted.
func (s *Service) Create(ctx context.Context, adminID domain.AdminID, req models.CreateRequest) (*Created, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rateLimit := req.RateLimit
	if rateLimit == 0 {
		rateLimit = models.DefaultRateLimit
	}

	plaintext, err := newKey()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate api key")
	}

	k := &models.APIKey{
		ID:          domain.NewAPIKeyID(),
		KeyHash:     hashKey(plaintext),
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		IsActive:    true,
		RateLimit:   rateLimit,
		CreatedAt:   s.now(),
		ExpiresAt:   req.ExpiresAt,
	}
	if err := s.store.Create(ctx, k); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create api key")
	}

	s.emit(ctx, audit.Event{
		EntityType: "api_key",
		EntityID:   k.ID.String(),
		Action:     string(audit.EventAPIKeyCreated),
		ActorType:  audit.ActorAdmin,
		ActorID:    adminID.String(),
	})

	return &Created{Key: plaintext, APIKey: k}, nil
}

// Validate authenticates a presented key and stamps last_used. Missing,
// revoked and expired keys all fail with the same opaque error.
func (s *Service) Validate(ctx context.Context, plaintext string) (*models.APIKey, error) {
	if plaintext == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}

	k, err := s.store.FindByHash(ctx, hashKey(plaintext))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "validate api key")
	}
	if !k.IsActive {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}
	if k.Expired(s.now()) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}

	if err := s.store.TouchLastUsed(ctx, k.ID, s.now()); err != nil {
		s.logger.WarnContext(ctx, "could not stamp api key usage", "key_id", k.ID.String(), "error", err)
	}
	return k, nil
}

// Revoke deactivates a key. Revocation is permanent.
func (s *Service) Revoke(ctx context.Context, adminID domain.AdminID, keyID domain.APIKeyID) error {
	if err := s.store.Revoke(ctx, keyID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "api key not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke api key")
	}

	s.emit(ctx, audit.Event{
		EntityType: "api_key",
		EntityID:   keyID.String(),
		Action:     string(audit.EventAPIKeyRevoked),
		ActorType:  audit.ActorAdmin,
		ActorID:    adminID.String(),
	})
	return nil
}

// List returns all issued keys, digests omitted.
func (s *Service) List(ctx context.Context) ([]*models.APIKey, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list api keys")
	}
	return keys, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

func newKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
