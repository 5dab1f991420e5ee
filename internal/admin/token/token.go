// Package token issues and validates admin session tokens.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
)

// Claims are the JWT claims carried by admin tokens.
type Claims struct {
	AdminID   string `json:"admin_id"`
	AdminType string `json:"admin_type"`
	jwt.RegisteredClaims
}

// Manager signs and validates HS256 admin tokens. It satisfies the
// middleware TokenValidator interface.
type Manager struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewManager(signingKey string, issuer string, ttl time.Duration) *Manager {
	return &Manager{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

// Issue signs a token for an authenticated admin.
func (m *Manager) Issue(adminID domain.AdminID, adminType string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AdminID:   adminID.String(),
		AdminType: adminType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(m.signingKey)
}

// Validate parses a token string and returns the admin it was issued
// to.
func (m *Manager) Validate(tokenString string) (domain.AdminID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return m.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.AdminID{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return domain.AdminID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return domain.AdminID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return domain.AdminID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	adminID, err := domain.ParseAdminID(claims.AdminID)
	if err != nil {
		return domain.AdminID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return adminID, nil
}
