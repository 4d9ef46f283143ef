package jwtx

import (
	"crypto/rand"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Default token TTL constants. Access tokens are short-lived; refresh
// tokens trade security for not making users log in every hour.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token type discriminators. Access and refresh tokens are signed with the
// same key, so the type claim is what stops a refresh token being presented
// as an access token (or the other way around).
const (
	TokenTypeAccess  = "Access"
	TokenTypeRefresh = "Refresh"
)

// Claims are the access-token claims attached to authenticated requests.
type Claims struct {
	jwt.RegisteredClaims

	TokenType string `json:"token_type,omitempty"`

	// Roles held by the subject, e.g. ["user", "premium"].
	Roles []string `json:"roles,omitempty"`

	// Data carries arbitrary application payload. Opaque to this layer.
	Data map[string]any `json:"data,omitempty"`
}

// RefreshClaims are the claims of a refresh token. AccessTokenID links the
// refresh token to the access token it was issued alongside.
type RefreshClaims struct {
	jwt.RegisteredClaims

	TokenType     string `json:"token_type"`
	AccessTokenID string `json:"access_token_id,omitempty"`
}

// NewAccessClaims builds minimally-correct access claims with a fresh jti.
func NewAccessClaims(subject string, roles []string, ttl time.Duration, issuer string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		TokenType: TokenTypeAccess,
		Roles:     roles,
	}
}

// NewRefreshClaims builds refresh claims referencing the paired access
// token's jti.
func NewRefreshClaims(subject, accessTokenID string, ttl time.Duration, issuer string, now time.Time) RefreshClaims {
	return RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		TokenType:     TokenTypeRefresh,
		AccessTokenID: accessTokenID,
	}
}

// NewJTI returns a lexicographically sortable unique identifier for the
// "jti" claim.
func NewJTI() string {
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}

// HasRole reports whether the claims carry the exact role.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasAnyRole reports whether at least one of the given roles is present.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(c.Roles, r) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether every given role is present.
func (c *Claims) HasAllRoles(roles ...string) bool {
	for _, r := range roles {
		if !slices.Contains(c.Roles, r) {
			return false
		}
	}
	return true
}
