// Package handler exposes individual registration over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dataregistry/internal/platform/middleware"
	"dataregistry/internal/user/models"
	"dataregistry/internal/user/service"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/httputil"
)

// Service is the interface the handler drives.
type Service interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	VerifyEmail(ctx context.Context, token string) (*models.User, error)
	GetProfile(ctx context.Context, userID domain.UserID) (*service.Profile, error)
	AddEmail(ctx context.Context, userID domain.UserID, address string, makePrimary bool) (*models.Email, error)
	AddPhone(ctx context.Context, userID domain.UserID, number string, makePrimary bool) (*models.Phone, error)
	AddAddress(ctx context.Context, userID domain.UserID, input models.AddressInput, makePrimary bool) (*models.Address, error)
	SetPrimaryEmail(ctx context.Context, userID domain.UserID, emailID uuid.UUID) error
	SetPrimaryPhone(ctx context.Context, userID domain.UserID, phoneID uuid.UUID) error
	SetPrimaryAddress(ctx context.Context, userID domain.UserID, addressID uuid.UUID) error
}

type Handler struct {
	logger    *slog.Logger
	users     Service
	validator middleware.TokenValidator
}

func New(users Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{logger: logger, users: users, validator: validator}
}

// Register mounts the registration routes. Contact management is guarded
// by the admin token; registration and verification are public.
func (h *Handler) Register(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Get("/register/verify", h.handleVerify)

	r.Route("/admin/users/{userID}", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.validator))
		r.Get("/", h.handleGetProfile)
		r.Post("/emails", h.handleAddEmail)
		r.Post("/phones", h.handleAddPhone)
		r.Post("/addresses", h.handleAddAddress)
		r.Put("/emails/{contactID}/primary", h.handleSetPrimary(contactEmail))
		r.Put("/phones/{contactID}/primary", h.handleSetPrimary(contactPhone))
		r.Put("/addresses/{contactID}/primary", h.handleSetPrimary(contactAddress))
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

	u, err := h.users.Register(ctx, req)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) || dErrors.Is(err, dErrors.CodeInvalidInput) || dErrors.Is(err, dErrors.CodeConflict) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "registration failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "registration failed"))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, registerResponse{
		ID:      u.ID.String(),
		Status:  string(u.Status),
		Message: "registration received; check your email to verify your address",
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := h.users.VerifyEmail(ctx, r.URL.Query().Get("token"))
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
		"id":     u.ID.String(),
		"status": "verified",
	})
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return
	}

	profile, err := h.users.GetProfile(ctx, userID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "get profile")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

type addContactRequest struct {
	Email     string               `json:"email,omitempty"`
	Phone     string               `json:"phone,omitempty"`
	Address   *models.AddressInput `json:"address,omitempty"`
	IsPrimary bool                 `json:"is_primary"`
}

func (h *Handler) handleAddEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, req, ok := h.decodeContact(w, r)
	if !ok {
		return
	}
	email, err := h.users.AddEmail(ctx, userID, req.Email, req.IsPrimary)
	if err != nil {
		h.writeServiceError(ctx, w, err, "add email")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, email)
}

func (h *Handler) handleAddPhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, req, ok := h.decodeContact(w, r)
	if !ok {
		return
	}
	phone, err := h.users.AddPhone(ctx, userID, req.Phone, req.IsPrimary)
	if err != nil {
		h.writeServiceError(ctx, w, err, "add phone")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, phone)
}

func (h *Handler) handleAddAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, req, ok := h.decodeContact(w, r)
	if !ok {
		return
	}
	if req.Address == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "address is required"))
		return
	}
	address, err := h.users.AddAddress(ctx, userID, *req.Address, req.IsPrimary)
	if err != nil {
		h.writeServiceError(ctx, w, err, "add address")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, address)
}

type contactKind int

const (
	contactEmail contactKind = iota
	contactPhone
	contactAddress
)

func (h *Handler) handleSetPrimary(kind contactKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
			return
		}
		contactID, err := uuid.Parse(chi.URLParam(r, "contactID"))
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid contact id"))
			return
		}

		switch kind {
		case contactEmail:
			err = h.users.SetPrimaryEmail(ctx, userID, contactID)
		case contactPhone:
			err = h.users.SetPrimaryPhone(ctx, userID, contactID)
		case contactAddress:
			err = h.users.SetPrimaryAddress(ctx, userID, contactID)
		}
		if err != nil {
			h.writeServiceError(ctx, w, err, "set primary contact")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) decodeContact(w http.ResponseWriter, r *http.Request) (domain.UserID, addContactRequest, bool) {
	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return domain.UserID{}, addContactRequest{}, false
	}
	var req addContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return domain.UserID{}, addContactRequest{}, false
	}
	return userID, req, true
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
