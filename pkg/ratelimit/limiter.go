// Package ratelimit enforces per-identity request quotas against an atomic
// shared store. Three interchangeable algorithms are available per rule;
// every check is a single store round trip so concurrent requests can never
// both squeeze through the last slot.
package ratelimit

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/kvstore"
	"github.com/oklog/ulid/v2"
)

// LimitError reports an exceeded quota with machine-readable metadata for
// the 429 response.
type LimitError struct {
	Limit     int64
	Remaining int64
	Reset     time.Time
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("ratelimit: limit %d exceeded, resets at %s", e.Limit, e.Reset.Format(time.RFC3339))
}

// RetryAfter returns the whole seconds until the block lifts, at least 1.
func (e *LimitError) RetryAfter() int64 {
	secs := int64(time.Until(e.Reset).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter evaluates quota rules against the shared store.
type Limiter struct {
	store   kvstore.Store
	rules   RuleSet
	metrics Metrics
}

func New(store kvstore.Store, rules RuleSet) *Limiter {
	return &Limiter{store: store, rules: rules}
}

// Metrics exposes the limiter's running counters.
func (l *Limiter) Metrics() *Metrics { return &l.metrics }

// Check admits or rejects one request for the given identity. A non-nil
// error is either a *LimitError (quota fault, expected and routine) or a
// store failure (dependency fault, fail closed).
func (l *Limiter) Check(ctx context.Context, identity string, roles []string, endpoint string) error {
	start := time.Now()

	err := l.check(ctx, identity, roles, endpoint, start)
	l.metrics.record(outcomeOf(err), time.Since(start))
	return err
}

// outcomeOf separates routine quota rejections from dependency failures so
// the block rate only counts real 429s.
func outcomeOf(err error) checkOutcome {
	var limitErr *LimitError
	switch {
	case err == nil:
		return outcomeAllowed
	case errors.As(err, &limitErr):
		return outcomeBlocked
	default:
		return outcomeFailure
	}
}

func (l *Limiter) check(ctx context.Context, identity string, roles []string, endpoint string, now time.Time) error {
	rule, scope := l.rules.Resolve(roles, endpoint)
	key := counterKey(scope, identity)

	// A standing block short-circuits the full algorithm until it lifts.
	until, blocked, err := l.store.BlockedUntil(ctx, blockKey(key))
	if err != nil {
		return fmt.Errorf("%w: block lookup: %v", kvstore.ErrUnavailable, err)
	}
	if blocked {
		return &LimitError{Limit: rule.Limit, Remaining: 0, Reset: until}
	}

	var (
		allowed   bool
		remaining int64
		reset     time.Time
	)

	switch rule.Algorithm {
	case TokenBucket:
		allowed, remaining, reset, err = l.checkTokenBucket(ctx, key, rule, now)
	case SlidingWindow:
		allowed, remaining, reset, err = l.checkSlidingWindow(ctx, key, rule, now)
	default:
		allowed, remaining, reset, err = l.checkFixedWindow(ctx, key, rule, now)
	}
	if err != nil {
		return fmt.Errorf("%w: %s check: %v", kvstore.ErrUnavailable, rule.Algorithm, err)
	}
	if allowed {
		return nil
	}

	// Over limit: set the block marker so subsequent checks short-circuit
	// until the cooldown passes.
	if err := l.store.SetBlock(ctx, blockKey(key), reset); err != nil {
		return fmt.Errorf("%w: set block: %v", kvstore.ErrUnavailable, err)
	}

	return &LimitError{Limit: rule.Limit, Remaining: remaining, Reset: reset}
}

func (l *Limiter) checkTokenBucket(ctx context.Context, key string, rule Rule, now time.Time) (bool, int64, time.Time, error) {
	// Refill is expressed per 60s of elapsed wall clock: a full window's
	// worth of tokens accrues over one window.
	refillRate := rule.Limit * 60 / int64(rule.Window.Seconds())
	if refillRate < 1 {
		refillRate = 1
	}
	ttl := rule.Window + 60*time.Second

	remaining, allowed, err := l.store.BucketTake(ctx, key, rule.Limit, refillRate, now, ttl)
	if err != nil {
		return false, 0, time.Time{}, err
	}
	return allowed, remaining, now.Add(rule.BlockFor), nil
}

func (l *Limiter) checkFixedWindow(ctx context.Context, key string, rule Rule, now time.Time) (bool, int64, time.Time, error) {
	// Key by window slot; the slot boundary is also when the block lifts.
	slot := now.Unix() / int64(rule.Window.Seconds())
	slotKey := fmt.Sprintf("%s:%d", key, slot)
	windowEnd := time.Unix((slot+1)*int64(rule.Window.Seconds()), 0)

	count, err := l.store.IncrWindow(ctx, slotKey, rule.Window+10*time.Second)
	if err != nil {
		return false, 0, time.Time{}, err
	}
	if count > rule.Limit {
		return false, 0, windowEnd, nil
	}
	return true, rule.Limit - count, windowEnd, nil
}

func (l *Limiter) checkSlidingWindow(ctx context.Context, key string, rule Rule, now time.Time) (bool, int64, time.Time, error) {
	// Each admitted request needs a unique member in the timestamp set.
	member := ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()

	count, allowed, err := l.store.SlidingClaim(ctx, key, member, now, rule.Window, rule.Limit)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, now.Add(rule.BlockFor), nil
}
