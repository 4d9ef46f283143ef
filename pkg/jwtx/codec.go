package jwtx

import (
	"crypto/ed25519"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed        = errors.New("jwtx: malformed token")
	ErrInvalidSig       = errors.New("jwtx: invalid signature")
	ErrExpired          = errors.New("jwtx: token expired")
	ErrIssuer           = errors.New("jwtx: issuer mismatch")
	ErrInvalidTokenType = errors.New("jwtx: wrong token type")
)

// Codec signs and verifies tokens with a single configured algorithm and
// key. HMAC (HS256) covers the shared-secret deployment; EdDSA covers the
// asymmetric one.
type Codec struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
}

// NewHS256 builds a Codec using a shared HMAC secret.
func NewHS256(secret []byte, issuer string) *Codec {
	return &Codec{
		method:    jwt.SigningMethodHS256,
		signKey:   secret,
		verifyKey: secret,
		issuer:    issuer,
	}
}

// NewEdDSA builds a Codec from an Ed25519 private key.
func NewEdDSA(priv ed25519.PrivateKey, issuer string) *Codec {
	return &Codec{
		method:    jwt.SigningMethodEdDSA,
		signKey:   priv,
		verifyKey: priv.Public(),
		issuer:    issuer,
	}
}

// Issuer returns the configured issuer claim value.
func (c *Codec) Issuer() string { return c.issuer }

// Sign encodes and signs any claims value.
func (c *Codec) Sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(c.method, claims).SignedString(c.signKey)
}

// VerifyAccess decodes and validates an access token, enforcing the
// token_type discriminator so a long-lived refresh token can't be
// presented as a bearer access token.
func (c *Codec) VerifyAccess(token string) (Claims, error) {
	var claims Claims
	if err := c.verify(token, &claims); err != nil {
		return Claims{}, err
	}
	if claims.TokenType == TokenTypeRefresh {
		return Claims{}, ErrInvalidTokenType
	}
	return claims, nil
}

// VerifyRefresh decodes and validates a refresh token, enforcing the
// token_type discriminator so an access token can't be replayed as a
// refresh token.
func (c *Codec) VerifyRefresh(token string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.verify(token, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return RefreshClaims{}, ErrInvalidTokenType
	}
	return claims, nil
}

func (c *Codec) verify(token string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.verifyKey, nil
	}, opts...)

	return mapJWTError(err)
}

// mapJWTError converts golang-jwt failures into this package's domain
// errors so callers never inspect library internals.
func mapJWTError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	default:
		return ErrMalformed
	}
}
