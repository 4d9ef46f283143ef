package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/store"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "gatehouse.db") + "?_busy_timeout=5000"
	s, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func entryFor(tokenID, userID string, ttl time.Duration) jwtx.BlacklistEntry {
	return jwtx.BlacklistEntry{
		TokenID:       tokenID,
		UserID:        userID,
		BlacklistedAt: time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(ttl),
		Reason:        "logout",
	}
}

func TestBlacklistRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("add and lookup", func(t *testing.T) {
		require.NoError(t, s.Blacklist().Add(ctx, entryFor("tok-1", "user-1", time.Hour)))

		revoked, err := s.Blacklist().IsBlacklisted(ctx, "tok-1")
		require.NoError(t, err)
		require.True(t, revoked)

		revoked, err = s.Blacklist().IsBlacklisted(ctx, "tok-unknown")
		require.NoError(t, err)
		require.False(t, revoked)
	})

	t.Run("re-adding updates instead of failing", func(t *testing.T) {
		entry := entryFor("tok-dup", "user-1", time.Hour)
		require.NoError(t, s.Blacklist().Add(ctx, entry))

		entry.Reason = "rotated"
		require.NoError(t, s.Blacklist().Add(ctx, entry))

		entries, err := s.Blacklist().ListByUser(ctx, "user-1")
		require.NoError(t, err)

		var found bool
		for _, e := range entries {
			if e.TokenID == "tok-dup" {
				found = true
				require.Equal(t, "rotated", e.Reason)
			}
		}
		require.True(t, found)
	})

	t.Run("expired entries no longer count", func(t *testing.T) {
		require.NoError(t, s.Blacklist().Add(ctx, entryFor("tok-old", "user-2", -time.Minute)))

		revoked, err := s.Blacklist().IsBlacklisted(ctx, "tok-old")
		require.NoError(t, err)
		require.False(t, revoked)
	})

	t.Run("cleanup drops only expired rows", func(t *testing.T) {
		require.NoError(t, s.Blacklist().Add(ctx, entryFor("tok-live", "user-3", time.Hour)))
		require.NoError(t, s.Blacklist().Add(ctx, entryFor("tok-dead", "user-3", -time.Minute)))

		removed, err := s.Blacklist().CleanupExpired(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, removed, int64(1))

		revoked, err := s.Blacklist().IsBlacklisted(ctx, "tok-live")
		require.NoError(t, err)
		require.True(t, revoked)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, s.Blacklist().Add(ctx, entryFor("tok-rm", "user-4", time.Hour)))
		require.NoError(t, s.Blacklist().Remove(ctx, "tok-rm"))

		revoked, err := s.Blacklist().IsBlacklisted(ctx, "tok-rm")
		require.NoError(t, err)
		require.False(t, revoked)
	})
}

func TestSecretsRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("missing secret maps to not found", func(t *testing.T) {
		_, err := s.Secrets().GetSecret(ctx, "nobody")
		require.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("upsert then get", func(t *testing.T) {
		require.NoError(t, s.Secrets().UpsertSecret(ctx, "user-1", "secret-one"))

		secret, err := s.Secrets().GetSecret(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, "secret-one", secret.Secret)
		require.True(t, secret.Active)
	})

	t.Run("upsert replaces and reactivates", func(t *testing.T) {
		require.NoError(t, s.Secrets().UpsertSecret(ctx, "user-2", "first"))
		require.NoError(t, s.Secrets().DeactivateSecret(ctx, "user-2"))
		require.NoError(t, s.Secrets().UpsertSecret(ctx, "user-2", "second"))

		secret, err := s.Secrets().GetSecret(ctx, "user-2")
		require.NoError(t, err)
		require.Equal(t, "second", secret.Secret)
		require.True(t, secret.Active)
	})

	t.Run("deactivate keeps the row", func(t *testing.T) {
		require.NoError(t, s.Secrets().UpsertSecret(ctx, "user-3", "soon-off"))
		require.NoError(t, s.Secrets().DeactivateSecret(ctx, "user-3"))

		secret, err := s.Secrets().GetSecret(ctx, "user-3")
		require.NoError(t, err)
		require.False(t, secret.Active)
	})

	t.Run("delete removes the row", func(t *testing.T) {
		require.NoError(t, s.Secrets().UpsertSecret(ctx, "user-4", "gone"))
		require.NoError(t, s.Secrets().DeleteSecret(ctx, "user-4"))

		_, err := s.Secrets().GetSecret(ctx, "user-4")
		require.True(t, errors.Is(err, store.ErrNotFound))
	})
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Secrets().UpsertSecret(ctx, "tx-user", "tx-secret"); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = s.Secrets().GetSecret(ctx, "tx-user")
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestWithTxCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Secrets().UpsertSecret(ctx, "tx-user", "tx-secret")
	}))

	secret, err := s.Secrets().GetSecret(ctx, "tx-user")
	require.NoError(t, err)
	require.Equal(t, "tx-secret", secret.Secret)
}
