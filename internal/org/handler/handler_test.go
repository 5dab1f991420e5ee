package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataregistry/internal/org/models"
	"dataregistry/internal/org/service"
	usermodels "dataregistry/internal/user/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/testutil"
)

type fakeService struct {
	registered  *models.Organization
	registerErr error
	verified    *models.Organization
	verifyErr   error
	profile     *service.Profile
	profileErr  error
	member      *models.Member
	memberErr   error
	primaryErr  error

	lastRegister models.RegisterRequest
	lastRole     string
	lastPrimary  bool
}

func (f *fakeService) Register(_ context.Context, req models.RegisterRequest) (*models.Organization, error) {
	f.lastRegister = req
	return f.registered, f.registerErr
}

func (f *fakeService) VerifyEmail(context.Context, string) (*models.Organization, error) {
	return f.verified, f.verifyErr
}

func (f *fakeService) GetProfile(context.Context, domain.OrgID) (*service.Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeService) AddMember(_ context.Context, _ domain.OrgID, _ domain.UserID, role string, makePrimary bool) (*models.Member, error) {
	f.lastRole = role
	f.lastPrimary = makePrimary
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	if f.member != nil {
		return f.member, nil
	}
	return &models.Member{Role: role, IsPrimary: makePrimary}, nil
}

func (f *fakeService) SetPrimaryContact(context.Context, domain.OrgID, domain.UserID) error {
	return f.primaryErr
}

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
		registered: &models.Organization{
			ID:          domain.NewOrgID(),
			CanonicalID: "ORG-ACMEWI5432ACM",
			Status:      usermodels.StatusPending,
		},
	}
	r := newRouter(svc, &allowValidator{})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/register/organization", models.RegisterRequest{
		Name: "Acme Widgets Inc", Type: "corporation", Email: "ops@acmewidgets.com", Phone: "5555555432",
	})
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)
	body := string(testutil.ReadBody(t, rr))
	assert.NotContains(t, body, "ORG-ACMEWI5432ACM", "canonical id must not leak before approval")
	assert.Contains(t, body, `"status":"pending"`)
}

func TestRegisterValidationError(t *testing.T) {
	svc := &fakeService{registerErr: dErrors.New(dErrors.CodeValidation, "organization_name is required")}
	r := newRouter(svc, &allowValidator{})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/register/organization", models.RegisterRequest{})
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, string(dErrors.CodeValidation))
}

func TestRegisterMalformedBody(t *testing.T) {
	r := newRouter(&fakeService{}, &allowValidator{})

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/register/organization", "{not json")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestRegisterInternalErrorIsOpaque(t *testing.T) {
	svc := &fakeService{registerErr: dErrors.New(dErrors.CodeInternal, "db exploded: secret details")}
	r := newRouter(svc, &allowValidator{})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/register/organization", models.RegisterRequest{
		Name: "Acme Widgets Inc", Type: "corporation", Email: "ops@acmewidgets.com", Phone: "5555555432",
	})
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	assert.NotContains(t, string(testutil.ReadBody(t, rr)), "secret details")
}

func TestVerifyEmail(t *testing.T) {
	o := &models.Organization{ID: domain.NewOrgID(), IsVerified: true}
	svc := &fakeService{verified: o}
	r := newRouter(svc, &allowValidator{})

	req := testutil.NewRequest(t, http.MethodGet, "/register/organization/verify?token=tok123")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "verified")
}

func TestVerifyEmailBadToken(t *testing.T) {
	svc := &fakeService{verifyErr: dErrors.New(dErrors.CodeNotFound, "verification token is invalid or already used")}
	r := newRouter(svc, &allowValidator{})

	req := testutil.NewRequest(t, http.MethodGet, "/register/organization/verify?token=bogus")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func TestProfileRequiresAdminToken(t *testing.T) {
	orgID := domain.NewOrgID()
	svc := &fakeService{profile: &service.Profile{Organization: &models.Organization{ID: orgID}}}
	r := newRouter(svc, &allowValidator{adminID: domain.NewAdminID()})

	// No Authorization header.
	req := testutil.NewRequest(t, http.MethodGet, "/admin/organizations/"+orgID.String()+"/")
	rr := testutil.DoRequest(r, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	// With a bearer token the validator accepts.
	req = testutil.NewRequest(t, http.MethodGet, "/admin/organizations/"+orgID.String()+"/")
	req.Header.Set("Authorization", "Bearer good-token")
	rr = testutil.DoRequest(r, req)
	testutil.AssertStatusOK(t, rr)
}

func TestProfileInvalidOrgID(t *testing.T) {
	r := newRouter(&fakeService{}, &allowValidator{adminID: domain.NewAdminID()})

	req := testutil.NewRequest(t, http.MethodGet, "/admin/organizations/not-a-uuid/")
	req.Header.Set("Authorization", "Bearer good-token")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestAddMember(t *testing.T) {
	orgID := domain.NewOrgID()
	svc := &fakeService{}
	r := newRouter(svc, &allowValidator{adminID: domain.NewAdminID()})

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/admin/organizations/"+orgID.String()+"/members",
		map[string]any{"user_id": domain.NewUserID().String(), "role": "director", "is_primary": true})
	req.Header.Set("Authorization", "Bearer good-token")
	rr := testutil.DoRequest(r, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "director", svc.lastRole)
	assert.True(t, svc.lastPrimary)
}

func TestAddMemberInvalidUserID(t *testing.T) {
	orgID := domain.NewOrgID()
	r := newRouter(&fakeService{}, &allowValidator{adminID: domain.NewAdminID()})

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/admin/organizations/"+orgID.String()+"/members",
		map[string]any{"user_id": "nope", "role": "director"})
	req.Header.Set("Authorization", "Bearer good-token")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestAddMemberConflict(t *testing.T) {
	orgID := domain.NewOrgID()
	svc := &fakeService{memberErr: dErrors.New(dErrors.CodeConflict, "user is already a member of this organization")}
	r := newRouter(svc, &allowValidator{adminID: domain.NewAdminID()})

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/admin/organizations/"+orgID.String()+"/members",
		map[string]any{"user_id": domain.NewUserID().String(), "role": "director"})
	req.Header.Set("Authorization", "Bearer good-token")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatusAndError(t, rr, http.StatusConflict, string(dErrors.CodeConflict))
}

func TestSetPrimaryContact(t *testing.T) {
	orgID := domain.NewOrgID()
	r := newRouter(&fakeService{}, &allowValidator{adminID: domain.NewAdminID()})

	req := testutil.NewRequest(t, http.MethodPut,
		"/admin/organizations/"+orgID.String()+"/members/"+domain.NewUserID().String()+"/primary")
	req.Header.Set("Authorization", "Bearer good-token")
	rr := testutil.DoRequest(r, req)

	testutil.AssertStatus(t, rr, http.StatusNoContent)
}
