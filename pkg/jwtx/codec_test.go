package jwtx_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *jwtx.Codec {
	t.Helper()
	return jwtx.NewHS256([]byte("unit-test-secret"), "gatehouse")
}

func TestAccessRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now()

	claims := jwtx.NewAccessClaims("bob", []string{"user", "premium"}, time.Hour, codec.Issuer(), now)
	claims.Data = map[string]any{"tenant": "acme"}

	token, err := codec.Sign(claims)
	require.NoError(t, err)

	got, err := codec.VerifyAccess(token)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Subject)
	require.Equal(t, "gatehouse", got.Issuer)
	require.Equal(t, []string{"user", "premium"}, got.Roles)
	require.Equal(t, "acme", got.Data["tenant"])
	require.Equal(t, claims.ID, got.ID)
	require.Equal(t, claims.ExpiresAt.Unix(), got.ExpiresAt.Unix())
}

func TestVerifyFailures(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now()

	t.Run("expired", func(t *testing.T) {
		claims := jwtx.NewAccessClaims("bob", nil, -time.Minute, codec.Issuer(), now)
		token, err := codec.Sign(claims)
		require.NoError(t, err)

		_, err = codec.VerifyAccess(token)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := jwtx.NewHS256([]byte("different-secret"), "gatehouse")
		token, err := other.Sign(jwtx.NewAccessClaims("bob", nil, time.Hour, "gatehouse", now))
		require.NoError(t, err)

		_, err = codec.VerifyAccess(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := codec.Sign(jwtx.NewAccessClaims("bob", nil, time.Hour, "someone-else", now))
		require.NoError(t, err)

		_, err = codec.VerifyAccess(token)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := codec.VerifyAccess("not.a.jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})
}

func TestRefreshTokenType(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now()

	t.Run("refresh round trip", func(t *testing.T) {
		claims := jwtx.NewRefreshClaims("bob", "access-jti", time.Hour, codec.Issuer(), now)
		token, err := codec.Sign(claims)
		require.NoError(t, err)

		got, err := codec.VerifyRefresh(token)
		require.NoError(t, err)
		require.Equal(t, jwtx.TokenTypeRefresh, got.TokenType)
		require.Equal(t, "access-jti", got.AccessTokenID)
	})

	t.Run("access token rejected as refresh", func(t *testing.T) {
		token, err := codec.Sign(jwtx.NewAccessClaims("bob", nil, time.Hour, codec.Issuer(), now))
		require.NoError(t, err)

		_, err = codec.VerifyRefresh(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidTokenType)
	})

	t.Run("refresh token rejected as access", func(t *testing.T) {
		token, err := codec.Sign(jwtx.NewRefreshClaims("bob", "access-jti", time.Hour, codec.Issuer(), now))
		require.NoError(t, err)

		_, err = codec.VerifyAccess(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidTokenType)
	})
}

func TestEdDSACodec(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	codec := jwtx.NewEdDSA(priv, "gatehouse")

	token, err := codec.Sign(jwtx.NewAccessClaims("bob", []string{"user"}, time.Hour, "gatehouse", time.Now()))
	require.NoError(t, err)

	got, err := codec.VerifyAccess(token)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Subject)
}

func TestRoleChecks(t *testing.T) {
	c := jwtx.Claims{Roles: []string{"user", "premium"}}

	require.True(t, c.HasRole("user"))
	require.False(t, c.HasRole("admin"))

	require.True(t, c.HasAnyRole("admin", "premium"))
	require.False(t, c.HasAnyRole("admin", "staff"))

	require.True(t, c.HasAllRoles("user", "premium"))
	require.False(t, c.HasAllRoles("user", "admin"))
	require.True(t, c.HasAllRoles())
}

func TestNewJTIUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := jwtx.NewJTI()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
