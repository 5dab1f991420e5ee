// Package handler exposes admin login, the review queues and the audit
// trail over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dataregistry/internal/admin/models"
	"dataregistry/internal/admin/service"
	"dataregistry/internal/platform/middleware"
	orgmodels "dataregistry/internal/org/models"
	usermodels "dataregistry/internal/user/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/audit"
	"dataregistry/pkg/platform/httputil"
	"dataregistry/pkg/requestcontext"
)

const defaultPageSize = 20

// Service is the interface the handler drives.
type Service interface {
	Login(ctx context.Context, req models.LoginRequest) (*service.LoginResult, error)
	ListPendingUsers(ctx context.Context, limit, offset int) (*service.PendingUsers, error)
	ListPendingOrganizations(ctx context.Context, limit, offset int) (*service.PendingOrganizations, error)
	ApproveUser(ctx context.Context, adminID domain.AdminID, userID domain.UserID) (*usermodels.User, error)
	RejectUser(ctx context.Context, adminID domain.AdminID, userID domain.UserID, reason string) (*usermodels.User, error)
	ApproveOrganization(ctx context.Context, adminID domain.AdminID, orgID domain.OrgID) (*orgmodels.Organization, error)
	RejectOrganization(ctx context.Context, adminID domain.AdminID, orgID domain.OrgID, reason string) (*orgmodels.Organization, error)
	EntityAuditTrail(ctx context.Context, entityType, entityID string) ([]audit.Event, error)
	RecentAuditTrail(ctx context.Context, limit int) ([]audit.Event, error)
}

type Handler struct {
	logger    *slog.Logger
	admin     Service
	validator middleware.TokenValidator
}

func New(admin Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{logger: logger, admin: admin, validator: validator}
}

// Register mounts the admin routes. Login is public; everything else
// requires a valid admin token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.validator))
		r.Get("/admin/pending/users", h.handlePendingUsers)
		r.Get("/admin/pending/organizations", h.handlePendingOrganizations)
		r.Post("/admin/users/{userID}/approve", h.handleUserReview(true))
		r.Post("/admin/users/{userID}/reject", h.handleUserReview(false))
		r.Post("/admin/organizations/{orgID}/approve", h.handleOrgReview(true))
		r.Post("/admin/organizations/{orgID}/reject", h.handleOrgReview(false))
		r.Get("/admin/audit", h.handleRecentAudit)
		r.Get("/admin/audit/{entityType}/{entityID}", h.handleEntityAudit)
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.admin.Login(ctx, req)
	if err != nil {
		if code := dErrors.CodeOf(err); code == dErrors.CodeValidation || code == dErrors.CodeUnauthorized {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "login failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "login failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handlePendingUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pagination(r)

	page, err := h.admin.ListPendingUsers(ctx, limit, offset)
	if err != nil {
		h.writeServiceError(ctx, w, err, "list pending users")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handlePendingOrganizations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pagination(r)

	page, err := h.admin.ListPendingOrganizations(ctx, limit, offset)
	if err != nil {
		h.writeServiceError(ctx, w, err, "list pending organizations")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleUserReview(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
			return
		}
		adminID := requestcontext.AdminID(ctx)

		var u *usermodels.User
		if approve {
			u, err = h.admin.ApproveUser(ctx, adminID, userID)
		} else {
			req, ok := decodeReview(w, r)
			if !ok {
				return
			}
			u, err = h.admin.RejectUser(ctx, adminID, userID, req.Reason)
		}
		if err != nil {
			h.writeServiceError(ctx, w, err, "review user")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, u)
	}
}

func (h *Handler) handleOrgReview(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		orgID, err := domain.ParseOrgID(chi.URLParam(r, "orgID"))
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid organization id"))
			return
		}
		adminID := requestcontext.AdminID(ctx)

		var o *orgmodels.Organization
		if approve {
			o, err = h.admin.ApproveOrganization(ctx, adminID, orgID)
		} else {
			req, ok := decodeReview(w, r)
			if !ok {
				return
			}
			o, err = h.admin.RejectOrganization(ctx, adminID, orgID, req.Reason)
		}
		if err != nil {
			h.writeServiceError(ctx, w, err, "review organization")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, o)
	}
}

func (h *Handler) handleRecentAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, _ := pagination(r)

	events, err := h.admin.RecentAuditTrail(ctx, limit)
	if err != nil {
		h.writeServiceError(ctx, w, err, "audit trail")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleEntityAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityID")
	if entityType == "" || entityID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entity type and id are required"))
		return
	}

	events, err := h.admin.EntityAuditTrail(ctx, entityType, entityID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "audit trail")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// decodeReview tolerates an empty body for approvals; rejections
// without a reason are refused by the service.
func decodeReview(w http.ResponseWriter, r *http.Request) (models.ReviewRequest, bool) {
	var req models.ReviewRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return req, false
	}
	return req, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
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
