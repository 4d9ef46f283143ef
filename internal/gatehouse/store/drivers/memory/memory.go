// Package memory is an in-process store driver for tests and single-node
// deployments that don't want a database file.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/domain"
	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/store"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

type Store struct {
	mu        sync.RWMutex
	blacklist map[string]jwtx.BlacklistEntry
	secrets   map[string]domain.Secret
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		blacklist: make(map[string]jwtx.BlacklistEntry),
		secrets:   make(map[string]domain.Secret),
	}
}

func (s *Store) Blacklist() store.Blacklist { return (*blacklistRepo)(s) }
func (s *Store) Secrets() store.Secrets     { return (*secretsRepo)(s) }

func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Tx returns the store itself wrapped with no-op commit semantics. The
// memory driver serialises through its mutex, so there is nothing to roll
// back; multi-step callers get at-least-once application instead of
// atomicity. Fine for tests, not for multi-node production.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{Store: s}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	return fn(tx)
}

type memTx struct {
	*Store
}

func (t *memTx) Commit() error   { return nil }
func (t *memTx) Rollback() error { return nil }

type blacklistRepo Store

func (r *blacklistRepo) Add(ctx context.Context, entry jwtx.BlacklistEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.BlacklistedAt.IsZero() {
		entry.BlacklistedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.blacklist[entry.TokenID] = entry
	return nil
}

func (r *blacklistRepo) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.blacklist[tokenID]
	if !ok {
		return false, nil
	}
	return time.Now().Before(entry.ExpiresAt), nil
}

func (r *blacklistRepo) Remove(ctx context.Context, tokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blacklist, tokenID)
	return nil
}

func (r *blacklistRepo) CleanupExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var removed int64
	for id, entry := range r.blacklist {
		if now.After(entry.ExpiresAt) {
			delete(r.blacklist, id)
			removed++
		}
	}
	return removed, nil
}

func (r *blacklistRepo) ListByUser(ctx context.Context, userID string) ([]jwtx.BlacklistEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var entries []jwtx.BlacklistEntry
	for _, entry := range r.blacklist {
		if entry.UserID == userID && now.Before(entry.ExpiresAt) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].BlacklistedAt.After(entries[j].BlacklistedAt)
	})
	return entries, nil
}

type secretsRepo Store

func (r *secretsRepo) GetSecret(ctx context.Context, userID string) (domain.Secret, error) {
	if err := ctx.Err(); err != nil {
		return domain.Secret{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	secret, ok := r.secrets[userID]
	if !ok {
		return domain.Secret{}, store.ErrNotFound
	}
	return secret, nil
}

func (r *secretsRepo) UpsertSecret(ctx context.Context, userID, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := r.secrets[userID]
	if !ok {
		existing = domain.Secret{UserID: userID, CreatedAt: now}
	}
	existing.Secret = secret
	existing.Active = true
	existing.UpdatedAt = now
	r.secrets[userID] = existing
	return nil
}

func (r *secretsRepo) DeactivateSecret(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	secret, ok := r.secrets[userID]
	if !ok {
		return nil
	}
	secret.Active = false
	secret.UpdatedAt = time.Now().UTC()
	r.secrets[userID] = secret
	return nil
}

func (r *secretsRepo) DeleteSecret(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.secrets, userID)
	return nil
}
