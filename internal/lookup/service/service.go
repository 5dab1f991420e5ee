// Package service resolves canonical IDs for authenticated API
// clients. Only approved entities are visible here; pending and
// rejected registrations do not exist as far as the lookup API is
// concerned.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	orgmodels "dataregistry/internal/org/models"
	"dataregistry/internal/platform/metrics"
	usermodels "dataregistry/internal/user/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/audit"
	"dataregistry/pkg/platform/sentinel"
	"dataregistry/pkg/requestcontext"
)

// searchCap bounds results per entity type.
const searchCap = 50

// SearchType selects which namespaces a search covers.
type SearchType string

const (
	SearchIndividuals   SearchType = "individual"
	SearchOrganizations SearchType = "organization"
	SearchBoth          SearchType = "both"
)

// UserFinder is the slice of the user store the lookup API reads.
type UserFinder interface {
	FindByCanonicalID(ctx context.Context, canonicalID domain.CanonicalID) (*usermodels.User, error)
	Search(ctx context.Context, q string, limit int) ([]*usermodels.User, error)
}

// OrgFinder is the slice of the organization store the lookup API
// reads.
type OrgFinder interface {
	FindByCanonicalID(ctx context.Context, canonicalID domain.CanonicalID) (*orgmodels.Organization, error)
	Search(ctx context.Context, q string, limit int) ([]*orgmodels.Organization, error)
}

// Auditor records audit events.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	users   UserFinder
	orgs    OrgFinder
	auditor Auditor
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

func New(users UserFinder, orgs OrgFinder, auditor Auditor, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		users:   users,
		orgs:    orgs,
		auditor: auditor,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("dataregistry/internal/lookup"),
	}
}

// Individual resolves an approved user by canonical ID.
func (s *Service) Individual(ctx context.Context, canonicalID domain.CanonicalID) (*usermodels.User, error) {
	ctx, span := s.tracer.Start(ctx, "lookup.Individual",
		trace.WithAttributes(attribute.String("canonical_id", string(canonicalID))))
	defer span.End()

	u, err := s.users.FindByCanonicalID(ctx, canonicalID)
	if err != nil || u.Status != usermodels.StatusApproved {
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			span.RecordError(err)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lookup individual")
		}
		s.record(ctx, "individual", string(canonicalID), false)
		return nil, dErrors.New(dErrors.CodeNotFound, "individual not found")
	}

	s.record(ctx, "individual", string(canonicalID), true)
	return u, nil
}

// Organization resolves an approved organization by canonical ID.
func (s *Service) Organization(ctx context.Context, canonicalID domain.CanonicalID) (*orgmodels.Organization, error) {
	ctx, span := s.tracer.Start(ctx, "lookup.Organization",
		trace.WithAttributes(attribute.String("canonical_id", string(canonicalID))))
	defer span.End()

	o, err := s.orgs.FindByCanonicalID(ctx, canonicalID)
	if err != nil || o.Status != usermodels.StatusApproved {
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			span.RecordError(err)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lookup organization")
		}
		s.record(ctx, "organization", string(canonicalID), false)
		return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
	}

	s.record(ctx, "organization", string(canonicalID), true)
	return o, nil
}

// SearchResult carries matches per namespace.
type SearchResult struct {
	Individuals   []*usermodels.User        `json:"individuals,omitempty"`
	Organizations []*orgmodels.Organization `json:"organizations,omitempty"`
}

// Search runs a substring search over approved entities.
func (s *Service) Search(ctx context.Context, q string, searchType SearchType) (*SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "query parameter q is required")
	}
	if searchType == "" {
		searchType = SearchBoth
	}
	if searchType != SearchIndividuals && searchType != SearchOrganizations && searchType != SearchBoth {
		return nil, dErrors.New(dErrors.CodeValidation, "type must be individual, organization or both")
	}

	ctx, span := s.tracer.Start(ctx, "lookup.Search",
		trace.WithAttributes(attribute.String("search_type", string(searchType))))
	defer span.End()

	result := &SearchResult{}
	if searchType == SearchIndividuals || searchType == SearchBoth {
		users, err := s.users.Search(ctx, q, searchCap)
		if err != nil {
			span.RecordError(err)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "search")
		}
		result.Individuals = users
	}
	if searchType == SearchOrganizations || searchType == SearchBoth {
		orgs, err := s.orgs.Search(ctx, q, searchCap)
		if err != nil {
			span.RecordError(err)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "search")
		}
		result.Organizations = orgs
	}

	s.record(ctx, "search", q, len(result.Individuals)+len(result.Organizations) > 0)
	return result, nil
}

// record counts the lookup and appends a usage event. The audit write
// is best-effort; lookups never fail because the trail is behind.
func (s *Service) record(ctx context.Context, kind, subject string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	s.metrics.RecordLookup(kind, outcome)

	err := s.auditor.Emit(ctx, audit.Event{
		EntityType: "lookup",
		EntityID:   subject,
		Action:     string(audit.EventLookupPerformed),
		ActorType:  audit.ActorAPIClient,
		ActorID:    requestcontext.APIKeyID(ctx).String(),
		RequestID:  requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(audit.EventLookupPerformed), "error", err)
	}
}
