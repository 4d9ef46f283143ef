// Package kvstore defines the atomic shared-store contract backing nonce
// replay suppression and rate limiting.
//
// Every method is a single atomic operation against the backend: concurrent
// callers of the same key must never both observe capacity (or non-replay)
// and both proceed. Drivers achieve this with a mutex (memory) or a
// server-side script (redis), never a client-side read-modify-write.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports a backend round-trip failure (connection loss,
// timeout). Callers must fail closed on it.
var ErrUnavailable = errors.New("kvstore: backend unavailable")

// Store is implemented by shared-store drivers.
type Store interface {
	// ClaimNonce records (nonce -> now) under key unless the same nonce
	// was already recorded within lifetime. It returns false on replay.
	// In the same operation it prunes entries older than lifetime and
	// refreshes the key's own TTL to lifetime.
	ClaimNonce(ctx context.Context, key, nonce string, now time.Time, lifetime time.Duration) (bool, error)

	// IncrWindow atomically increments the counter at key and returns the
	// post-increment value. The TTL is set only when the key is created.
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SlidingClaim prunes members older than now-window, counts what is
	// left and, if the count is below capacity, records member at now.
	// It returns the count of requests inside the window after the
	// operation and whether this request was admitted.
	SlidingClaim(ctx context.Context, key, member string, now time.Time, window time.Duration, capacity int64) (count int64, allowed bool, err error)

	// BucketTake lazily refills the token bucket at key (refillRate
	// tokens per 60s of elapsed wall clock, capped at capacity) and takes
	// one token if available. It returns the tokens remaining after the
	// take and whether a token was consumed.
	BucketTake(ctx context.Context, key string, capacity, refillRate int64, now time.Time, ttl time.Duration) (remaining int64, allowed bool, err error)

	// SetBlock marks key as blocked until the given time.
	SetBlock(ctx context.Context, key string, until time.Time) error

	// BlockedUntil reports whether key currently carries a block marker
	// and, if so, when it expires.
	BlockedUntil(ctx context.Context, key string) (time.Time, bool, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}
