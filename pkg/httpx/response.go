package httpx

import (
	"encoding/json"
	"net/http"
)

// Error codes follow the {app}-{domain}-{category}-{detail} layout. The
// domain tells you which stage rejected the request; the category maps to
// the fault taxonomy (FORMAT, TRUST, DEP, QUOTA, AUTHZ).
const (
	CodeSignMissingHeaders   = "GH-SIGN-FORMAT-HEADERS"
	CodeSignMalformedHeaders = "GH-SIGN-FORMAT-FIELDS"
	CodeSignBadPayload       = "GH-SIGN-FORMAT-PAYLOAD"
	CodeSignKeyLoad          = "GH-SIGN-DEP-KEYLOAD"
	CodeSignInvalid          = "GH-SIGN-TRUST-INVALID"
	CodeSignNonceReplay      = "GH-SIGN-TRUST-NONCE"

	CodeAuthMissingToken = "GH-AUTH-FORMAT-MISSING"
	CodeAuthMalformed    = "GH-AUTH-FORMAT-MALFORMED"
	CodeAuthExpired      = "GH-AUTH-TRUST-EXPIRED"
	CodeAuthInvalid      = "GH-AUTH-TRUST-INVALID"
	CodeAuthRevoked      = "GH-AUTH-TRUST-REVOKED"
	CodeAuthForbidden    = "GH-AUTH-AUTHZ-ROLE"

	CodeRateExceeded = "GH-RATE-QUOTA-EXCEEDED"

	CodeStoreFailure = "GH-SYS-DEP-STORE"
)

// ErrorBody is the structured rejection payload returned by every stage.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes a JSON response with the given status code. Sensitive
// responses shouldn't be cached, so the no-store headers are always set.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the structured error envelope.
func WriteError(w http.ResponseWriter, status int, body ErrorBody) {
	WriteJSON(w, status, body)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
