// Package handler exposes organization registration over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dataregistry/internal/org/models"
	"dataregistry/internal/org/service"
	"dataregistry/internal/platform/middleware"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/httputil"
)

// Service is the interface the handler drives.
type Service interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.Organization, error)
	VerifyEmail(ctx context.Context, token string) (*models.Organization, error)
	GetProfile(ctx context.Context, orgID domain.OrgID) (*service.Profile, error)
	AddMember(ctx context.Context, orgID domain.OrgID, userID domain.UserID, role string, makePrimary bool) (*models.Member, error)
	SetPrimaryContact(ctx context.Context, orgID domain.OrgID, userID domain.UserID) error
}

type Handler struct {
	logger    *slog.Logger
	orgs      Service
	validator middleware.TokenValidator
}

func New(orgs Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{logger: logger, orgs: orgs, validator: validator}
}

// Register mounts the organization routes. Membership management is
// guarded by the admin token; registration and verification are public.
func (h *Handler) Register(r chi.Router) {
	r.Post("/register/organization", h.handleRegister)
	r.Get("/register/organization/verify", h.handleVerify)

	r.Route("/admin/organizations/{orgID}", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.validator))
		r.Get("/", h.handleGetProfile)
		r.Post("/members", h.handleAddMember)
		r.Put("/members/{userID}/primary", h.handleSetPrimaryContact)
	})
}

// registerResponse deliberately omits the canonical ID: the registrant
// first sees it in the approval email.
type registerResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	o, err := h.orgs.Register(ctx, req)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) || dErrors.Is(err, dErrors.CodeInvalidInput) || dErrors.Is(err, dErrors.CodeConflict) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "organization registration failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "registration failed"))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, registerResponse{
		ID:      o.ID.String(),
		Status:  string(o.Status),
		Message: "registration received; check your email to verify your address",
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	o, err := h.orgs.VerifyEmail(ctx, r.URL.Query().Get("token"))
	if err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) || dErrors.Is(err, dErrors.CodeNotFound) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "email verification failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "verification failed"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"id":     o.ID.String(),
		"status": "verified",
	})
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := domain.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid organization id"))
		return
	}

	profile, err := h.orgs.GetProfile(ctx, orgID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "get organization profile")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

type addMemberRequest struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	IsPrimary bool   `json:"is_primary"`
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := domain.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid organization id"))
		return
	}
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	userID, err := domain.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return
	}

	member, err := h.orgs.AddMember(ctx, orgID, userID, req.Role, req.IsPrimary)
	if err != nil {
		h.writeServiceError(ctx, w, err, "add member")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, member)
}

func (h *Handler) handleSetPrimaryContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := domain.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid organization id"))
		return
	}
	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return
	}

	if err := h.orgs.SetPrimaryContact(ctx, orgID, userID); err != nil {
		h.writeServiceError(ctx, w, err, "set primary contact")
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
