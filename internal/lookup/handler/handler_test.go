package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataregistry/internal/lookup/service"
	orgmodels "dataregistry/internal/org/models"
	usermodels "dataregistry/internal/user/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
)

type fakeService struct {
	user *usermodels.User
	org  *orgmodels.Organization

	searchResult *service.SearchResult
	searchErr    error
	lastQuery    string
	lastType     service.SearchType
}

func (f *fakeService) Individual(_ context.Context, canonicalID domain.CanonicalID) (*usermodels.User, error) {
	if f.user == nil || f.user.CanonicalID != canonicalID {
		return nil, dErrors.New(dErrors.CodeNotFound, "individual not found")
	}
	return f.user, nil
}

func (f *fakeService) Organization(_ context.Context, canonicalID domain.CanonicalID) (*orgmodels.Organization, error) {
	if f.org == nil || f.org.CanonicalID != canonicalID {
		return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
	}
	return f.org, nil
}

func (f *fakeService) Search(_ context.Context, q string, searchType service.SearchType) (*service.SearchResult, error) {
	f.lastQuery = q
	f.lastType = searchType
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchResult == nil {
		return &service.SearchResult{}, nil
	}
	return f.searchResult, nil
}

func newRouter(svc Service) chi.Router {
	r := chi.NewRouter()
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Register(r)
	return r
}

func TestIndividualFound(t *testing.T) {
	svc := &fakeService{user: &usermodels.User{
		ID:          domain.NewUserID(),
		CanonicalID: "JDOE5309EXA",
		FirstName:   "John",
		LastName:    "Doe",
		Status:      usermodels.StatusApproved,
	}}
	r := newRouter(svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/individuals/JDOE5309EXA", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got usermodels.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.CanonicalID("JDOE5309EXA"), got.CanonicalID)
	assert.Equal(t, "John", got.FirstName)
}

func TestIndividualNotFound(t *testing.T) {
	r := newRouter(&fakeService{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/individuals/NOBODY0000XYZ", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndividualMalformedID(t *testing.T) {
	r := newRouter(&fakeService{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/individuals/not%20a%20canonical%20id", nil))

	// Malformed IDs read as not-found; the shape of valid IDs is not
	// something clients need an error taxonomy for.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrganizationFound(t *testing.T) {
	svc := &fakeService{org: &orgmodels.Organization{
		ID:          domain.NewOrgID(),
		CanonicalID: "ORG-ACMEWI5432ACM",
		Name:        "Acme Widgets Inc",
		Status:      usermodels.StatusApproved,
	}}
	r := newRouter(svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/organizations/ORG-ACMEWI5432ACM", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme Widgets Inc")
}

func TestSearchPassesQueryAndType(t *testing.T) {
	svc := &fakeService{searchResult: &service.SearchResult{}}
	r := newRouter(svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=acme&type=organization", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", svc.lastQuery)
	assert.Equal(t, service.SearchOrganizations, svc.lastType)
}

func TestSearchValidationError(t *testing.T) {
	svc := &fakeService{searchErr: dErrors.New(dErrors.CodeValidation, "query parameter q is required")}
	r := newRouter(svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "query parameter q is required")
}

func TestSearchInternalErrorIsOpaque(t *testing.T) {
	svc := &fakeService{searchErr: dErrors.New(dErrors.CodeInternal, "index exploded")}
	r := newRouter(svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=acme", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "index exploded")
}
