package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/domain"
	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/store"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

var (
	ErrInvalidRefresh = errors.New("invalid_refresh_token")
	ErrRevokedRefresh = errors.New("refresh_token_revoked")
)

// RoleResolver reports the current roles of a subject. Refresh re-resolves
// roles instead of copying them from the old token, so a role change takes
// effect at the next rotation rather than at the next login.
type RoleResolver interface {
	ResolveRoles(ctx context.Context, userID string) ([]string, error)
}

// StaticRoleResolver serves a fixed role map. Deployments that manage
// roles elsewhere inject their own resolver.
type StaticRoleResolver map[string][]string

func (r StaticRoleResolver) ResolveRoles(ctx context.Context, userID string) ([]string, error) {
	return r[userID], nil
}

// TokenService issues, refreshes, and revokes token pairs.
type TokenService struct {
	Codec      *jwtx.Codec
	Store      store.Store
	Roles      RoleResolver
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// IssuePair mints a fresh access/refresh pair for the subject. The refresh
// token references the access token's jti so revoking one can cover both.
func (s *TokenService) IssuePair(ctx context.Context, userID string, roles []string, data map[string]any) (*domain.TokenPair, error) {
	now := time.Now()

	accessClaims := jwtx.NewAccessClaims(userID, roles, s.accessTTL(), s.Codec.Issuer(), now)
	accessClaims.Data = data

	accessToken, err := s.Codec.Sign(accessClaims)
	if err != nil {
		return nil, err
	}

	refreshClaims := jwtx.NewRefreshClaims(userID, accessClaims.ID, s.refreshTTL(), s.Codec.Issuer(), now)
	refreshToken, err := s.Codec.Sign(refreshClaims)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.accessTTL().Seconds()),
		RefreshExpiresIn: int64(s.refreshTTL().Seconds()),
	}, nil
}

// Refresh rotates a refresh token: verifies it, re-resolves the subject's
// roles, issues a new pair, and blacklists the consumed refresh token so
// each one is single-use.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	claims, err := s.Codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, errors.Join(ErrInvalidRefresh, err)
	}

	revoked, err := s.Store.Blacklist().IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		// A replayed refresh token usually means it leaked. Worth a log
		// line even though the response is just a 401.
		log.Warn("replayed refresh token rejected", "token_id", claims.ID, "user_id", claims.Subject)
		return nil, ErrRevokedRefresh
	}

	roles, err := s.resolveRoles(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	pair, err := s.IssuePair(ctx, claims.Subject, roles, nil)
	if err != nil {
		return nil, err
	}

	// Consume the old refresh token. Its paired access token keeps its
	// own (short) lifetime; revoking it here would break clients that
	// rotate ahead of expiry.
	err = s.Store.Blacklist().Add(ctx, jwtx.BlacklistEntry{
		TokenID:       claims.ID,
		UserID:        claims.Subject,
		BlacklistedAt: time.Now().UTC(),
		ExpiresAt:     claims.ExpiresAt.Time,
		Reason:        "rotated",
	})
	if err != nil {
		return nil, err
	}

	return pair, nil
}

// Revoke blacklists the given token, access or refresh. Revoking a refresh
// token also covers the access token it was issued with. Unknown, expired,
// or already revoked tokens are a no-op: revocation is idempotent and the
// caller learns nothing about token validity from it.
func (s *TokenService) Revoke(ctx context.Context, token, reason string) error {
	if reason == "" {
		reason = "revoked"
	}
	now := time.Now().UTC()

	if claims, err := s.Codec.VerifyAccess(token); err == nil && claims.ID != "" {
		return s.Store.Blacklist().Add(ctx, jwtx.BlacklistEntry{
			TokenID:       claims.ID,
			UserID:        claims.Subject,
			BlacklistedAt: now,
			ExpiresAt:     claims.ExpiresAt.Time,
			Reason:        reason,
		})
	}

	if claims, err := s.Codec.VerifyRefresh(token); err == nil && claims.ID != "" {
		entry := jwtx.BlacklistEntry{
			TokenID:       claims.ID,
			UserID:        claims.Subject,
			BlacklistedAt: now,
			ExpiresAt:     claims.ExpiresAt.Time,
			Reason:        reason,
		}
		if err := s.Store.Blacklist().Add(ctx, entry); err != nil {
			return err
		}

		// Best guess at the paired access token's expiry: it cannot
		// outlive now+AccessTTL.
		if claims.AccessTokenID != "" {
			entry.TokenID = claims.AccessTokenID
			entry.ExpiresAt = now.Add(s.accessTTL())
			return s.Store.Blacklist().Add(ctx, entry)
		}
		return nil
	}

	return nil
}

func (s *TokenService) resolveRoles(ctx context.Context, userID string) ([]string, error) {
	if s.Roles == nil {
		return nil, nil
	}
	return s.Roles.ResolveRoles(ctx, userID)
}
