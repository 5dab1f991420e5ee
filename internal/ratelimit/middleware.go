package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apikeymodels "dataregistry/internal/apikey/models"
	"dataregistry/internal/platform/metrics"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/platform/audit"
	"dataregistry/pkg/platform/httputil"
	"dataregistry/pkg/requestcontext"
)

const (
	headerAPIKey    = "X-API-Key"
	headerLimit     = "X-RateLimit-Limit"
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"

	// DefaultWindow is the quota window for lookup clients.
	DefaultWindow = time.Hour
)

type contextKey struct{}

// rateLimitedResponse tells the client when to retry, in seconds.
type rateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// KeyValidator authenticates presented API keys.
type KeyValidator interface {
	Validate(ctx context.Context, plaintext string) (*apikeymodels.APIKey, error)
}

// Auditor records audit events.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// KeyFromContext returns the API key authenticated by RequireAPIKey.
func KeyFromContext(ctx context.Context) (*apikeymodels.APIKey, bool) {
	k, ok := ctx.Value(contextKey{}).(*apikeymodels.APIKey)
	return k, ok
}

// RequireAPIKey authenticates the X-API-Key header and stores the key
// on the request context.
func RequireAPIKey(validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plaintext := r.Header.Get(headerAPIKey)
			if plaintext == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "api key is required"))
				return
			}

			k, err := validator.Validate(r.Context(), plaintext)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, k)
			ctx = requestcontext.WithAPIKeyID(ctx, k.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Limiter enforces each key's hourly quota. Must be mounted after
// RequireAPIKey.
type Limiter struct {
	store    BucketStore
	auditor  Auditor
	metrics  *metrics.Metrics
	logger   *slog.Logger
	window   time.Duration
	disabled bool
}

type LimiterOption func(*Limiter)

// WithWindow overrides the quota window.
func WithWindow(window time.Duration) LimiterOption {
	return func(l *Limiter) { l.window = window }
}

// Disabled turns the limiter into a pass-through. Used in development
// environments.
func Disabled() LimiterOption {
	return func(l *Limiter) { l.disabled = true }
}

func NewLimiter(store BucketStore, auditor Auditor, m *metrics.Metrics, logger *slog.Logger, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		store:   store,
		auditor: auditor,
		metrics: m,
		logger:  logger,
		window:  DefaultWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Middleware checks the authenticated key's quota. The limiter fails
// open: a broken bucket store logs and lets the request through rather
// than taking the lookup API down.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.disabled {
			next.ServeHTTP(w, r)
			return
		}

		k, ok := KeyFromContext(r.Context())
		if !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "api key is required"))
			return
		}

		res, err := l.store.Allow(r.Context(), k.ID.String(), k.RateLimit, l.window)
		if err != nil {
			l.logger.ErrorContext(r.Context(), "rate limit check failed", "key_id", k.ID.String(), "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set(headerLimit, strconv.Itoa(res.Limit))
		w.Header().Set(headerRemaining, strconv.Itoa(res.Remaining))
		w.Header().Set(headerReset, strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			l.metrics.RecordRateLimitRejection()
			l.emitRejection(r.Context(), k)

			retryAfter := int(time.Until(res.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, rateLimitedResponse{
				Error:      "rate_limited",
				RetryAfter: retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) emitRejection(ctx context.Context, k *apikeymodels.APIKey) {
	err := l.auditor.Emit(ctx, audit.Event{
		EntityType: "api_key",
		EntityID:   k.ID.String(),
		Action:     string(audit.EventRateLimitExceeded),
		ActorType:  audit.ActorAPIClient,
		ActorID:    k.ID.String(),
		RequestID:  requestcontext.RequestID(ctx),
	})
	if err != nil {
		l.logger.ErrorContext(ctx, "audit emit failed", "action", string(audit.EventRateLimitExceeded), "error", err)
	}
}
