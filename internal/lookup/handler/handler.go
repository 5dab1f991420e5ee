// Package handler exposes the public lookup API.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dataregistry/internal/lookup/service"
	orgmodels "dataregistry/internal/org/models"
	"dataregistry/internal/platform/middleware"
	usermodels "dataregistry/internal/user/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/httputil"
)

// Service is the interface the handler drives.
type Service interface {
	Individual(ctx context.Context, canonicalID domain.CanonicalID) (*usermodels.User, error)
	Organization(ctx context.Context, canonicalID domain.CanonicalID) (*orgmodels.Organization, error)
	Search(ctx context.Context, q string, searchType service.SearchType) (*service.SearchResult, error)
}

type Handler struct {
	logger *slog.Logger
	lookup Service
}

func New(lookup Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, lookup: lookup}
}

// Register mounts the lookup routes. API key auth and rate limiting
// are applied by the router, not here.
func (h *Handler) Register(r chi.Router) {
	r.Get("/individuals/{canonicalID}", h.handleIndividual)
	r.Get("/organizations/{canonicalID}", h.handleOrganization)
	r.Get("/search", h.handleSearch)
}

func (h *Handler) handleIndividual(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	canonicalID, err := domain.ParseCanonicalID(chi.URLParam(r, "canonicalID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "individual not found"))
		return
	}

	u, err := h.lookup.Individual(ctx, canonicalID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "lookup individual")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) handleOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	canonicalID, err := domain.ParseCanonicalID(chi.URLParam(r, "canonicalID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "organization not found"))
		return
	}

	o, err := h.lookup.Organization(ctx, canonicalID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "lookup organization")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := r.URL.Query().Get("q")
	searchType := service.SearchType(r.URL.Query().Get("type"))

	result, err := h.lookup.Search(ctx, q, searchType)
	if err != nil {
		h.writeServiceError(ctx, w, err, "search")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	if code := dErrors.CodeOf(err); code != dErrors.CodeInternal {
		httputil.WriteError(w, err)
		return
	}
	h.logger.ErrorContext(ctx, op+" failed",
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, op+" failed"))
}
