// Package memory provides a mutex-based kvstore.Store for tests and
// single-node deployments. All operations are O(entries per key) and run
// under one lock, which gives the same atomicity the redis driver gets from
// server-side scripts.
package memory

import (
	"context"
	"sync"
	"time"
)

type nonceSet struct {
	entries   map[string]time.Time
	expiresAt time.Time
}

type counter struct {
	count     int64
	expiresAt time.Time
}

type slidingSet struct {
	entries   map[string]time.Time
	expiresAt time.Time
}

type bucket struct {
	tokens     int64
	lastRefill time.Time
	expiresAt  time.Time
}

// Store is an in-memory kvstore.Store.
type Store struct {
	mu       sync.Mutex
	nonces   map[string]*nonceSet
	counters map[string]*counter
	sliding  map[string]*slidingSet
	buckets  map[string]*bucket
	blocks   map[string]time.Time
}

func New() *Store {
	return &Store{
		nonces:   make(map[string]*nonceSet),
		counters: make(map[string]*counter),
		sliding:  make(map[string]*slidingSet),
		buckets:  make(map[string]*bucket),
		blocks:   make(map[string]time.Time),
	}
}

func (s *Store) ClaimNonce(ctx context.Context, key, nonce string, now time.Time, lifetime time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.nonces[key]
	if !ok || now.After(set.expiresAt) {
		set = &nonceSet{entries: make(map[string]time.Time)}
		s.nonces[key] = set
	}

	cutoff := now.Add(-lifetime)
	for n, ts := range set.entries {
		if ts.Before(cutoff) {
			delete(set.entries, n)
		}
	}

	if _, seen := set.entries[nonce]; seen {
		return false, nil
	}

	set.entries[nonce] = now
	set.expiresAt = now.Add(lifetime)
	return true, nil
}

func (s *Store) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &counter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
	}

	c.count++
	return c.count, nil
}

func (s *Store) SlidingClaim(ctx context.Context, key, member string, now time.Time, window time.Duration, capacity int64) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sliding[key]
	if !ok || now.After(set.expiresAt) {
		set = &slidingSet{entries: make(map[string]time.Time)}
		s.sliding[key] = set
	}

	cutoff := now.Add(-window)
	for m, ts := range set.entries {
		if ts.Before(cutoff) {
			delete(set.entries, m)
		}
	}

	count := int64(len(set.entries))
	if count >= capacity {
		return count, false, nil
	}

	set.entries[member] = now
	set.expiresAt = now.Add(window + 10*time.Second)
	return count + 1, true, nil
}

func (s *Store) BucketTake(ctx context.Context, key string, capacity, refillRate int64, now time.Time, ttl time.Duration) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.After(b.expiresAt) {
		b = &bucket{tokens: capacity, lastRefill: now}
		s.buckets[key] = b
	}

	// Lazy refill: refillRate tokens per 60 seconds of elapsed time,
	// integer tokens only. lastRefill only advances when tokens accrue so
	// sub-token elapsed time is not lost.
	elapsed := now.Sub(b.lastRefill)
	if added := int64(elapsed.Seconds()) * refillRate / 60; added > 0 {
		b.tokens = min(capacity, b.tokens+added)
		b.lastRefill = now
	}

	b.expiresAt = now.Add(ttl)

	if b.tokens <= 0 {
		return 0, false, nil
	}
	b.tokens--
	return b.tokens, true, nil
}

func (s *Store) SetBlock(ctx context.Context, key string, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[key] = until
	return nil
}

func (s *Store) BlockedUntil(ctx context.Context, key string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.blocks[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if time.Now().After(until) {
		delete(s.blocks, key)
		return time.Time{}, false, nil
	}
	return until, true, nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }
