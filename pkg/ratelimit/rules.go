package ratelimit

import (
	"fmt"
	"time"
)

// Algorithm selects the accounting strategy for a rule.
type Algorithm string

const (
	// TokenBucket refills lazily at check time and tolerates bursts up
	// to capacity.
	TokenBucket Algorithm = "token_bucket"

	// FixedWindow counts requests per wall-clock window slot. Cheap but
	// allows up to 2x bursts across a slot boundary.
	FixedWindow Algorithm = "fixed_window"

	// SlidingWindow keeps per-request timestamps for exact accounting
	// over a rolling window.
	SlidingWindow Algorithm = "sliding_window"
)

// DefaultBlockDuration is the cooldown applied once a caller goes over
// limit, unless the rule overrides it.
const DefaultBlockDuration = 300 * time.Second

// Rule is one quota: at most Limit requests per Window.
type Rule struct {
	Limit       int64
	Window      time.Duration
	Algorithm   Algorithm
	Description string

	// BlockFor overrides the cooldown once the limit is exceeded.
	// Zero means DefaultBlockDuration (fixed window blocks until the
	// window ends regardless).
	BlockFor time.Duration
}

func (r Rule) withDefaults() Rule {
	if r.Algorithm == "" {
		r.Algorithm = FixedWindow
	}
	if r.Window <= 0 {
		r.Window = time.Minute
	}
	if r.BlockFor <= 0 {
		r.BlockFor = DefaultBlockDuration
	}
	return r
}

// RuleSet holds the configured quotas. Resolution order per request:
// exact endpoint rule, then the most permissive matching role rule, then
// the default.
type RuleSet struct {
	Endpoints map[string]Rule
	Roles     map[string]Rule
	Default   Rule
}

// Resolve picks the applicable rule and the scope component of the store
// key for a caller with the given roles hitting the given endpoint.
func (rs RuleSet) Resolve(roles []string, endpoint string) (Rule, string) {
	if rule, ok := rs.Endpoints[endpoint]; ok {
		return rule.withDefaults(), "endpoint:" + endpoint
	}

	// Among the caller's rated roles, the highest limit wins: a caller
	// holding both "user" and "premium" gets the premium quota.
	var (
		best     Rule
		bestName string
		found    bool
	)
	for _, role := range roles {
		rule, ok := rs.Roles[role]
		if !ok {
			continue
		}
		if !found || rule.Limit > best.Limit {
			best = rule
			bestName = role
			found = true
		}
	}
	if found {
		return best.withDefaults(), "role:" + bestName
	}

	return rs.Default.withDefaults(), "default"
}

// counterKey is the shared-store key for a caller's quota state.
func counterKey(scope, identity string) string {
	return fmt.Sprintf("rate_limit:%s:%s", scope, identity)
}

// blockKey is the parallel block-marker key.
func blockKey(key string) string { return "block:" + key }
