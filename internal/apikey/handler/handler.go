// Package handler exposes admin endpoints for issuing and revoking
// API keys.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dataregistry/internal/apikey/models"
	"dataregistry/internal/apikey/service"
	"dataregistry/internal/platform/middleware"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/httputil"
	"dataregistry/pkg/requestcontext"
)

// Service is the interface the handler drives.
type Service interface {
	Create(ctx context.Context, adminID domain.AdminID, req models.CreateRequest) (*service.Created, error)
	Revoke(ctx context.Context, adminID domain.AdminID, keyID domain.APIKeyID) error
	List(ctx context.Context) ([]*models.APIKey, error)
}

// RateLimits clears a client's rate limit bucket.
type RateLimits interface {
	Reset(ctx context.Context, adminID domain.AdminID, keyID domain.APIKeyID) error
}

type Handler struct {
	logger    *slog.Logger
	keys      Service
	limits    RateLimits
	validator middleware.TokenValidator
}

func New(keys Service, limits RateLimits, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{logger: logger, keys: keys, limits: limits, validator: validator}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/apikeys", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.validator))
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Delete("/{keyID}", h.handleRevoke)
		r.Post("/{keyID}/ratelimit/reset", h.handleResetRateLimit)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID := requestcontext.AdminID(ctx)

	var req models.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	created, err := h.keys.Create(ctx, adminID, req)
	if err != nil {
		h.writeServiceError(ctx, w, err, "create api key")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	keys, err := h.keys.List(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, err, "list api keys")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID := requestcontext.AdminID(ctx)

	keyID, err := domain.ParseAPIKeyID(chi.URLParam(r, "keyID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid key id"))
		return
	}

	if err := h.keys.Revoke(ctx, adminID, keyID); err != nil {
		h.writeServiceError(ctx, w, err, "revoke api key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID := requestcontext.AdminID(ctx)

	keyID, err := domain.ParseAPIKeyID(chi.URLParam(r, "keyID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid key id"))
		return
	}

	if err := h.limits.Reset(ctx, adminID, keyID); err != nil {
		h.writeServiceError(ctx, w, err, "reset rate limit")
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
