// Package admin lets operators clear a client's rate limit bucket,
// typically after raising the key's limit or resolving an incident.
package admin

//go:generate mockgen -source=admin.go -destination=mocks/mocks.go -package=mocks BucketStore,AuditPublisher

import (
	"context"
	"io"
	"log/slog"

	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/audit"
	"dataregistry/pkg/requestcontext"
)

// BucketStore is the slice of the limiter store the admin surface uses.
type BucketStore interface {
	Reset(ctx context.Context, key string) error
}

// AuditPublisher records reset events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	buckets BucketStore
	auditor AuditPublisher
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(auditor AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func New(buckets BucketStore, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "bucket store is required")
	}
	s := &Service{
		buckets: buckets,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Reset clears the bucket for one API key so a client can resume
// immediately instead of waiting out the window.
func (s *Service) Reset(ctx context.Context, adminID domain.AdminID, keyID domain.APIKeyID) error {
	if keyID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "api key id is required")
	}

	if err := s.buckets.Reset(ctx, keyID.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "reset rate limit bucket")
	}

	if s.auditor != nil {
		err := s.auditor.Emit(ctx, audit.Event{
			EntityType: "api_key",
			EntityID:   keyID.String(),
			Action:     string(audit.EventRateLimitReset),
			ActorType:  audit.ActorAdmin,
			ActorID:    adminID.String(),
			RequestID:  requestcontext.RequestID(ctx),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "audit emit failed", "action", string(audit.EventRateLimitReset), "error", err)
		}
	}
	return nil
}
