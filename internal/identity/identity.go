// Package identity resolves the viewer behind a request. Tokens are issued by
// the platform's auth service; this package only verifies them and reads the
// viewer's role from their profile.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var ErrInvalidToken = errors.New("invalid auth token")

// Viewer is the resolved identity for one request. The zero value is an
// anonymous storefront visitor.
type Viewer struct {
	UserID string
	Role   Role
}

var Anonymous = Viewer{}

func (v Viewer) Authenticated() bool { return v.UserID != "" }

func (v Viewer) IsAdmin() bool { return v.Role == RoleAdmin }

// Lookup resolves a bearer token into a Viewer. An empty token is anonymous.
type Lookup interface {
	Resolve(ctx context.Context, token string) (Viewer, error)
}

// RoleSource reports a user's role flag.
type RoleSource interface {
	Role(ctx context.Context, userID string) (Role, error)
}

// TokenLookup verifies HS256 tokens signed with the platform's JWT secret.
type TokenLookup struct {
	secret []byte
	roles  RoleSource
}

func NewTokenLookup(secret string, roles RoleSource) *TokenLookup {
	return &TokenLookup{secret: []byte(secret), roles: roles}
}

func (l *TokenLookup) Resolve(ctx context.Context, token string) (Viewer, error) {
	if token == "" {
		return Anonymous, nil
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return l.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Anonymous, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Anonymous, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role, err := l.roles.Role(ctx, claims.Subject)
	if err != nil {
		return Anonymous, fmt.Errorf("failed to look up role for %s: %w", claims.Subject, err)
	}
	return Viewer{UserID: claims.Subject, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
