package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apikeymodels "dataregistry/internal/apikey/models"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/audit"
	auditmem "dataregistry/pkg/platform/audit/store/memory"
	"dataregistry/pkg/platform/audit/publisher"
	"dataregistry/pkg/testutil"
)

type fakeValidator struct {
	key *apikeymodels.APIKey
	err error
}

func (f *fakeValidator) Validate(context.Context, string) (*apikeymodels.APIKey, error) {
	return f.key, f.err
}

type fakeBuckets struct {
	result *Result
	err    error
}

func (f *fakeBuckets) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return f.result, f.err
}

func (f *fakeBuckets) Reset(context.Context, string) error { return nil }

func testKey() *apikeymodels.APIKey {
	return &apikeymodels.APIKey{
		ID:        domain.NewAPIKeyID(),
		IsActive:  true,
		RateLimit: 5,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireAPIKeyMissingHeader(t *testing.T) {
	h := RequireAPIKey(&fakeValidator{key: testKey()})(okHandler())

	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/lookup/X")
	rr := testutil.DoRequest(h, req)

	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestRequireAPIKeyInvalidKey(t *testing.T) {
	h := RequireAPIKey(&fakeValidator{err: dErrors.New(dErrors.CodeUnauthorized, "invalid api key")})(okHandler())

	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/lookup/X")
	req.Header.Set("X-API-Key", "reg_bogus")
	rr := testutil.DoRequest(h, req)

	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestRequireAPIKeyStoresKeyInContext(t *testing.T) {
	key := testKey()
	var got *apikeymodels.APIKey
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = KeyFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := RequireAPIKey(&fakeValidator{key: key})(inner)

	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/lookup/X")
	req.Header.Set("X-API-Key", "reg_valid")
	rr := testutil.DoRequest(h, req)

	testutil.AssertStatusOK(t, rr)
	require.NotNil(t, got)
	assert.Equal(t, key.ID, got.ID)
}

func limitedRequest(t *testing.T, limiter *Limiter, key *apikeymodels.APIKey) (int, http.Header) {
	t.Helper()
	h := RequireAPIKey(&fakeValidator{key: key})(limiter.Middleware(okHandler()))
	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/lookup/X")
	req.Header.Set("X-API-Key", "reg_valid")
	rr := testutil.DoRequest(h, req)
	return rr.Code, rr.Header()
}

func TestLimiterSetsHeaders(t *testing.T) {
	reset := time.Now().Add(time.Hour)
	buckets := &fakeBuckets{result: &Result{Allowed: true, Limit: 5, Remaining: 4, ResetAt: reset}}
	limiter := NewLimiter(buckets, publisher.NewPublisher(auditmem.NewInMemoryStore()), nil, testLogger())

	code, headers := limitedRequest(t, limiter, testKey())

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "5", headers.Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", headers.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, headers.Get("X-RateLimit-Reset"))
}

func TestLimiterRejectsAndAudits(t *testing.T) {
	auditStore := auditmem.NewInMemoryStore()
	buckets := &fakeBuckets{result: &Result{Allowed: false, Limit: 5, Remaining: 0, ResetAt: time.Now().Add(time.Hour)}}
	limiter := NewLimiter(buckets, publisher.NewPublisher(auditStore), nil, testLogger())
	key := testKey()

	code, headers := limitedRequest(t, limiter, key)

	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "0", headers.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, headers.Get("Retry-After"))

	events, err := auditStore.ListByEntity(context.Background(), "api_key", key.ID.String())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventRateLimitExceeded), events[0].Action)
}

func TestLimiterFailsOpen(t *testing.T) {
	buckets := &fakeBuckets{err: context.DeadlineExceeded}
	limiter := NewLimiter(buckets, publisher.NewPublisher(auditmem.NewInMemoryStore()), nil, testLogger())

	code, _ := limitedRequest(t, limiter, testKey())

	assert.Equal(t, http.StatusOK, code)
}

func TestLimiterDisabled(t *testing.T) {
	buckets := &fakeBuckets{result: &Result{Allowed: false}}
	limiter := NewLimiter(buckets, publisher.NewPublisher(auditmem.NewInMemoryStore()), nil, testLogger(), Disabled())

	code, _ := limitedRequest(t, limiter, testKey())

	assert.Equal(t, http.StatusOK, code)
}
