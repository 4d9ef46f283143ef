package httpx

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/kvstore"
	"github.com/aussiebroadwan/gatehouse/pkg/ratelimit"
	"github.com/aussiebroadwan/gatehouse/pkg/signator"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// Default stage priorities. Higher runs first; the ordering is the fixed
// interception sequence: CORS preflight, per-IP throttling, signature
// verification, token authentication, then quota accounting.
const (
	PriorityCORS      = 100
	PriorityThrottle  = 90
	PrioritySignature = 80
	PriorityAuthn     = 70
	PriorityRateLimit = 60
)

// SignatureStage rejects requests whose HMAC signature fails to verify.
type SignatureStage struct {
	Signator *signator.Signator

	// Debug echoes the canonical string and both signatures in rejection
	// payloads. Local development only; the fields leak enough to forge
	// requests offline.
	Debug bool
}

func (s *SignatureStage) Name() string  { return "signature" }
func (s *SignatureStage) Priority() int { return PrioritySignature }

func (s *SignatureStage) Focus(r *http.Request) bool { return !s.Signator.Excluded(r) }

func (s *SignatureStage) Process(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	out, err := s.Signator.Verify(r)
	if err == nil {
		return out, true
	}

	log := slogx.FromContext(r.Context())

	var sigErr *signator.SignatureError
	switch {
	case errors.As(err, &sigErr):
		log.Info("request signature mismatch", "path", r.URL.Path)
		body := ErrorBody{Code: CodeSignInvalid, Message: "request signature verification failed"}
		if s.Debug {
			body.Data = map[string]string{
				"canonical": sigErr.Canonical,
				"computed":  sigErr.Computed,
				"supplied":  sigErr.Supplied,
			}
		}
		WriteError(w, http.StatusUnauthorized, body)

	case errors.Is(err, signator.ErrMissingHeaders):
		WriteError(w, http.StatusUnauthorized, ErrorBody{
			Code:    CodeSignMissingHeaders,
			Message: "required signature headers are missing",
		})

	case errors.Is(err, signator.ErrMalformedHeaders):
		WriteError(w, http.StatusUnauthorized, ErrorBody{
			Code:    CodeSignMalformedHeaders,
			Message: "signature headers failed validation",
		})

	case errors.Is(err, signator.ErrBodyParse):
		WriteError(w, http.StatusBadRequest, ErrorBody{
			Code:    CodeSignBadPayload,
			Message: "request body is not valid JSON",
		})

	case errors.Is(err, signator.ErrKeyLoad):
		log.Error("signing secret lookup failed", "error", err)
		WriteError(w, http.StatusUnauthorized, ErrorBody{
			Code:    CodeSignKeyLoad,
			Message: "unable to verify request signature",
		})

	case errors.Is(err, signator.ErrNonceReplay):
		log.Info("nonce replay rejected", "path", r.URL.Path)
		WriteError(w, http.StatusUnauthorized, ErrorBody{
			Code:    CodeSignNonceReplay,
			Message: "request nonce has already been used",
		})

	case errors.Is(err, kvstore.ErrUnavailable):
		log.Error("nonce store unavailable", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrorBody{
			Code:    CodeStoreFailure,
			Message: "request verification is temporarily unavailable",
		})

	default:
		log.Error("signature verification failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrorBody{
			Code:    CodeStoreFailure,
			Message: "request verification is temporarily unavailable",
		})
	}

	return r, false
}

// AuthnStage verifies bearer tokens and attaches their claims. Revoked
// tokens are rejected even when their signature and expiry still check
// out.
type AuthnStage struct {
	Codec     *jwtx.Codec
	Blacklist jwtx.Blacklist
	Extractor jwtx.Extractor

	// Exclusions lists requests that skip authentication.
	Exclusions []signator.Predicate
}

func (a *AuthnStage) Name() string  { return "authn" }
func (a *AuthnStage) Priority() int { return PriorityAuthn }

func (a *AuthnStage) Focus(r *http.Request) bool {
	for _, pred := range a.Exclusions {
		if pred(r) {
			return false
		}
	}
	return true
}

func (a *AuthnStage) Process(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	raw, found := a.Extractor.FromRequest(r)
	if !found {
		WriteError(w, http.StatusUnauthorized, ErrorBody{
			Code:    CodeAuthMissingToken,
			Message: "authentication token is required",
		})
		return r, false
	}

	claims, err := a.Codec.VerifyAccess(raw)
	if err != nil {
		switch {
		case errors.Is(err, jwtx.ErrExpired):
			WriteError(w, http.StatusUnauthorized, ErrorBody{
				Code:    CodeAuthExpired,
				Message: "authentication token has expired",
			})
		case errors.Is(err, jwtx.ErrInvalidSig), errors.Is(err, jwtx.ErrIssuer),
			errors.Is(err, jwtx.ErrInvalidTokenType):
			WriteError(w, http.StatusUnauthorized, ErrorBody{
				Code:    CodeAuthInvalid,
				Message: "authentication token is invalid",
			})
		default:
			WriteError(w, http.StatusUnauthorized, ErrorBody{
				Code:    CodeAuthMalformed,
				Message: "authentication token is malformed",
			})
		}
		return r, false
	}

	// Revocation is checked only after the token itself verified, so the
	// blacklist never sees attacker-controlled ids.
	if a.Blacklist != nil {
		revoked, err := a.Blacklist.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			log.Error("blacklist lookup failed", "error", err, "token_id", claims.ID)
			WriteError(w, http.StatusInternalServerError, ErrorBody{
				Code:    CodeStoreFailure,
				Message: "token validation is temporarily unavailable",
			})
			return r, false
		}
		if revoked {
			log.Info("revoked token rejected", "token_id", claims.ID, "user_id", claims.Subject)
			WriteError(w, http.StatusUnauthorized, ErrorBody{
				Code:    CodeAuthRevoked,
				Message: "authentication token has been revoked",
			})
			return r, false
		}
	}

	return r.WithContext(ContextWithClaims(ctx, claims)), true
}

// RateLimitStage enforces quota rules. Authenticated requests are
// accounted per user id; anonymous ones per client IP.
type RateLimitStage struct {
	Limiter *ratelimit.Limiter

	// Exclusions lists requests that skip quota accounting.
	Exclusions []signator.Predicate
}

func (s *RateLimitStage) Name() string  { return "ratelimit" }
func (s *RateLimitStage) Priority() int { return PriorityRateLimit }

func (s *RateLimitStage) Focus(r *http.Request) bool {
	for _, pred := range s.Exclusions {
		if pred(r) {
			return false
		}
	}
	return true
}

func (s *RateLimitStage) Process(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	identity := s.identity(r)
	err := s.Limiter.Check(ctx, identity, rolesFromCtx(ctx), r.URL.Path)
	if err == nil {
		return r, true
	}

	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		w.Header().Set("Retry-After", strconv.FormatInt(limitErr.RetryAfter(), 10))
		WriteError(w, http.StatusTooManyRequests, ErrorBody{
			Code:    CodeRateExceeded,
			Message: "rate limit exceeded",
			Data: map[string]any{
				"limit":       limitErr.Limit,
				"remaining":   limitErr.Remaining,
				"reset":       limitErr.Reset.Unix(),
				"retry_after": limitErr.RetryAfter(),
			},
		})
		return r, false
	}

	// Store failure: fail closed. Quota enforcement exists to protect
	// the backend, so a blind pass-through defeats it exactly when load
	// is most likely the problem.
	log.Error("rate limit store unavailable", "error", err, "identity", identity)
	WriteError(w, http.StatusInternalServerError, ErrorBody{
		Code:    CodeStoreFailure,
		Message: "rate limiting is temporarily unavailable",
	})
	return r, false
}

func (s *RateLimitStage) identity(r *http.Request) string {
	if id, ok := UserIDFromContext(r.Context()); ok && id != "" {
		return id
	}
	if id, ok := signator.UserIDFromContext(r.Context()); ok && id != "" {
		return id
	}
	return ClientIP(r)
}

// ClientIP resolves the caller's address, preferring proxy headers so
// deployments behind a load balancer still see distinct clients.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
