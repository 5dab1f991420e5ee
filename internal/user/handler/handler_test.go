package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataregistry/internal/user/models"
	"dataregistry/internal/user/service"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/testutil"
)

type fakeService struct {
	registered  *models.User
	registerErr error
	verified    *models.User
	verifyErr   error
	profile     *service.Profile
	profileErr  error

	lastRegister models.RegisterRequest
}

func (f *fakeService) Register(_ context.Context, req models.RegisterRequest) (*models.User, error) {
	f.lastRegister = req
	return f.registered, f.registerErr
}

func (f *fakeService) VerifyEmail(context.Context, string) (*models.User, error) {
	return f.verified, f.verifyErr
}

func (f *fakeService) GetProfile(context.Context, domain.UserID) (*service.Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeService) AddEmail(context.Context, domain.UserID, string, bool) (*models.Email, error) {
	return &models.Email{ID: uuid.New()}, nil
}

func (f *fakeService) AddPhone(context.Context, domain.UserID, string, bool) (*models.Phone, error) {
	return &models.Phone{ID: uuid.New()}, nil
}

func (f *fakeService) AddAddress(context.Context, domain.UserID, models.AddressInput, bool) (*models.Address, error) {
	return &models.Address{ID: uuid.New()}, nil
}

func (f *fakeService) SetPrimaryEmail(context.Context, domain.UserID, uuid.UUID) error   { return nil }
func (f *fakeService) SetPrimaryPhone(context.Context, domain.UserID, uuid.UUID) error   { return nil }
func (f *fakeService) SetPrimaryAddress(context.Context, domain.UserID, uuid.UUID) error { return nil }

type allowValidator struct {
	adminID domain.AdminID
	err     error
}

func (v *allowValidator) Validate(string) (domain.AdminID, error) {
	return v.adminID, v.err
}

func newRouter(svc *fakeService, validator *allowValidator) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, logger, validator)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestRegisterReturnsPendingWithoutCanonicalID(t *testing.T) {
	svc := &fakeService{
		registered: &models.User{
			ID:          domain.NewUserID(),
			CanonicalID: "JDOE5309EXA",
			Status:      models.StatusPending,
		},
	}
	r := newRouter(svc, &allowValidator{})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/register", models.RegisterRequest{
		FirstName: "John", LastName: "Doe", Email: "john@example.com", Phone: "5558675309",
	})
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)
	body := string(testutil.ReadBody(t, rr))
	assert.NotContains(t, body, "JDOE5309EXA", "canonical id must not leak before approval")
	assert.Contains(t, body, `"status":"pending"`)
}

func TestRegisterValidationError(t *testing.T) {
	svc := &fakeService{registerErr: dErrors.New(dErrors.CodeValidation, "first_name is required")}
	r := newRouter(svc, &allowValidator{})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/register", models.RegisterRequest{})
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, string(dErrors.CodeValidation))
}

func TestRegisterMalformedBody(t *testing.T) {
	r := newRouter(&fakeService{}, &allowValidator{})

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/register", "{not json")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestRegisterInternalErrorIsOpaque(t *testing.T) {
	svc := &fakeService{registerErr: dErrors.New(dErrors.CodeInternal, "db exploded: secret details")}
	r := newRouter(svc, &allowValidator{})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/register", models.RegisterRequest{
		FirstName: "John", LastName: "Doe", Email: "john@example.com", Phone: "5558675309",
	})
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	assert.NotContains(t, string(testutil.ReadBody(t, rr)), "secret details")
}

func TestVerifyEmail(t *testing.T) {
	u := &models.User{ID: domain.NewUserID(), IsVerified: true}
	svc := &fakeService{verified: u}
	r := newRouter(svc, &allowValidator{})

	req := testutil.NewRequest(t, http.MethodGet, "/register/verify?token=tok123")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "verified")
}

func TestVerifyEmailBadToken(t *testing.T) {
	svc := &fakeService{verifyErr: dErrors.New(dErrors.CodeNotFound, "verification token is invalid or already used")}
	r := newRouter(svc, &allowValidator{})

	req := testutil.NewRequest(t, http.MethodGet, "/register/verify?token=bogus")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func TestProfileRequiresAdminToken(t *testing.T) {
	userID := domain.NewUserID()
	svc := &fakeService{profile: &service.Profile{User: &models.User{ID: userID}}}
	r := newRouter(svc, &allowValidator{adminID: domain.NewAdminID()})

	// No Authorization header.
	req := testutil.NewRequest(t, http.MethodGet, "/admin/users/"+userID.String()+"/")
	rr := testutil.DoRequest(r, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	// With a bearer token the validator accepts.
	req = testutil.NewRequest(t, http.MethodGet, "/admin/users/"+userID.String()+"/")
	req.Header.Set("Authorization", "Bearer good-token")
	rr = testutil.DoRequest(r, req)
	testutil.AssertStatusOK(t, rr)
}

func TestProfileRejectsBadToken(t *testing.T) {
	userID := domain.NewUserID()
	svc := &fakeService{profile: &service.Profile{User: &models.User{ID: userID}}}
	r := newRouter(svc, &allowValidator{err: dErrors.New(dErrors.CodeUnauthorized, "expired")})

	req := testutil.NewRequest(t, http.MethodGet, "/admin/users/"+userID.String()+"/")
	req.Header.Set("Authorization", "Bearer stale-token")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestProfileInvalidUserID(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, &allowValidator{adminID: domain.NewAdminID()})

	req := testutil.NewRequest(t, http.MethodGet, "/admin/users/not-a-uuid/")
	req.Header.Set("Authorization", "Bearer good-token")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestSetPrimaryEmail(t *testing.T) {
	userID := domain.NewUserID()
	r := newRouter(&fakeService{}, &allowValidator{adminID: domain.NewAdminID()})

	req := testutil.NewRequest(t, http.MethodPut,
		"/admin/users/"+userID.String()+"/emails/"+uuid.NewString()+"/primary")
	req.Header.Set("Authorization", "Bearer good-token")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusNoContent)
}

func TestAddEmailPassesThroughRequest(t *testing.T) {
	userID := domain.NewUserID()
	svc := &fakeService{}
	r := newRouter(svc, &allowValidator{adminID: domain.NewAdminID()})

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/admin/users/"+userID.String()+"/emails",
		map[string]any{"email": "alt@example.com", "is_primary": true})
	req.Header.Set("Authorization", "Bearer good-token")
	rr := testutil.DoRequest(r, req)

	require.Equal(t, http.StatusCreated, rr.Code)
}
