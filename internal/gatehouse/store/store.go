package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// memory) implement this. Sub-repositories keep concerns tidy and let
// transactions scope every repo at once.
type Store interface {
	Blacklist() Blacklist
	Secrets() Secrets

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction: rollback when fn errors,
	// commit otherwise. Preferred over Tx for multi-step operations.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. Same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Blacklist persists revoked token ids. It satisfies jwtx.Blacklist so
// the authentication stage can consult it directly.
type Blacklist interface {
	// Add records a revocation. Re-adding an already revoked id updates
	// the entry rather than failing.
	Add(ctx context.Context, entry jwtx.BlacklistEntry) error

	// IsBlacklisted reports whether the id is currently revoked. Entries
	// past their expiry no longer count.
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)

	// Remove drops a revocation.
	Remove(ctx context.Context, tokenID string) error

	// CleanupExpired deletes entries whose expiry has passed and returns
	// how many were dropped.
	CleanupExpired(ctx context.Context) (int64, error)

	// ListByUser returns the live entries for one user, newest first.
	ListByUser(ctx context.Context, userID string) ([]jwtx.BlacklistEntry, error)
}

// Secrets persists per-client HMAC signing secrets.
type Secrets interface {
	// GetSecret returns the active secret for a user.
	GetSecret(ctx context.Context, userID string) (domain.Secret, error)

	// UpsertSecret creates or replaces a user's secret.
	UpsertSecret(ctx context.Context, userID, secret string) error

	// DeactivateSecret disables a user's secret without deleting it.
	DeactivateSecret(ctx context.Context, userID string) error

	// DeleteSecret removes a user's secret entirely.
	DeleteSecret(ctx context.Context, userID string) error
}
