package jwtx

import (
	"context"
	"sync"
	"time"
)

// BlacklistEntry records a revoked token id. ExpiresAt is always the
// token's own expiry, never indefinite, which bounds blacklist growth to
// the lifetime of still-valid tokens.
type BlacklistEntry struct {
	TokenID       string
	UserID        string
	BlacklistedAt time.Time
	ExpiresAt     time.Time
	Reason        string
}

// Blacklist tracks revoked token identifiers. Verification consults it
// before claims are trusted by downstream middleware.
type Blacklist interface {
	Add(ctx context.Context, entry BlacklistEntry) error
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
	Remove(ctx context.Context, tokenID string) error

	// CleanupExpired removes entries whose ExpiresAt has passed and
	// returns how many were dropped. Best-effort housekeeping: an
	// expired entry that is still present is harmless.
	CleanupExpired(ctx context.Context) (int64, error)
}

// MemoryBlacklist is a mutex-based Blacklist for tests and single-node
// deployments.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]BlacklistEntry
}

var _ Blacklist = (*MemoryBlacklist)(nil)

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: make(map[string]BlacklistEntry)}
}

func (b *MemoryBlacklist) Add(ctx context.Context, entry BlacklistEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[entry.TokenID] = entry
	return nil
}

func (b *MemoryBlacklist) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[tokenID]
	if !ok {
		return false, nil
	}
	return time.Now().Before(entry.ExpiresAt), nil
}

func (b *MemoryBlacklist) Remove(ctx context.Context, tokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, tokenID)
	return nil
}

func (b *MemoryBlacklist) CleanupExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	var removed int64
	for id, entry := range b.entries {
		if now.After(entry.ExpiresAt) {
			delete(b.entries, id)
			removed++
		}
	}
	return removed, nil
}
