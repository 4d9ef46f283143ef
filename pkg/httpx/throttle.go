package httpx

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// ThrottleConfig shapes the per-client pre-auth throttle. It runs before
// signature verification, so its job is absorbing floods cheaply rather
// than fine-grained quota accounting.
type ThrottleConfig struct {
	// RequestsPerWindow is the sustained allowance per client.
	RequestsPerWindow int

	// Window is the accounting period.
	Window time.Duration

	// Burst is the short-term allowance above the sustained rate.
	Burst int
}

func (c ThrottleConfig) withDefaults() ThrottleConfig {
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = 300
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Burst <= 0 {
		c.Burst = c.RequestsPerWindow
	}
	return c
}

// KeyExtractor derives the throttle key from a request.
type KeyExtractor func(*http.Request) string

// ThrottleStage is an in-process token-bucket throttle keyed per client.
// It is deliberately local (no shared store round trip): each node sheds
// its own share of a flood before the distributed stages spend anything
// on it.
type ThrottleStage struct {
	cfg     ThrottleConfig
	keyFunc KeyExtractor

	limiters    sync.Map // map[string]*rate.Limiter
	rate        rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

// NewThrottleStage builds a throttle keyed by the given extractor, or by
// client IP when keyFunc is nil.
func NewThrottleStage(cfg ThrottleConfig, keyFunc KeyExtractor) *ThrottleStage {
	cfg = cfg.withDefaults()
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return &ThrottleStage{
		cfg:         cfg,
		keyFunc:     keyFunc,
		rate:        rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}
}

func (s *ThrottleStage) Name() string  { return "throttle" }
func (s *ThrottleStage) Priority() int { return PriorityThrottle }

func (s *ThrottleStage) Focus(*http.Request) bool { return true }

func (s *ThrottleStage) Process(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	key := s.keyFunc(r)
	if key == "" {
		// No key means no bucket to charge; let the distributed stages
		// decide instead of guessing.
		slogx.FromContext(r.Context()).Warn("throttle: unable to extract client key, allowing request")
		return r, true
	}

	limiter := s.getLimiter(key)
	if limiter.Allow() {
		return r, true
	}

	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	retryAfter := int(delay.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteError(w, http.StatusTooManyRequests, ErrorBody{
		Code:    CodeRateExceeded,
		Message: "too many requests",
		Data:    map[string]any{"retry_after": retryAfter},
	})
	return r, false
}

func (s *ThrottleStage) getLimiter(key string) *rate.Limiter {
	if limiter, ok := s.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	actual, _ := s.limiters.LoadOrStore(key, limiter)

	s.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle buckets so ephemeral clients don't accumulate
// forever. A full bucket means the key hasn't been seen for at least one
// refill period.
func (s *ThrottleStage) maybeCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastCleanup) < 5*time.Minute {
		return
	}
	s.lastCleanup = time.Now()

	s.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(s.burst) {
			s.limiters.Delete(key)
		}
		return true
	})
}
