package middleware

import (
	"net/http"
	"strings"

	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/httputil"
	"dataregistry/pkg/requestcontext"
)

// TokenValidator checks a bearer token and returns the admin it belongs to.
type TokenValidator interface {
	Validate(token string) (domain.AdminID, error)
}

// RequireAdmin guards admin routes behind a bearer token.
func RequireAdmin(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}
			adminID, err := validator.Validate(token)
			if err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token"))
				return
			}
			ctx := requestcontext.WithAdminID(r.Context(), adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
