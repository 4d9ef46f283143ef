package signator

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Default header names for the signature contract. Deployments still on
// the legacy bare names (XU/XT/XR/XS) can override these in Config.
const (
	DefaultUserIDHeader          = "X-U"
	DefaultTimestampHeader       = "X-T"
	DefaultNonceHeader           = "X-R"
	DefaultSignatureHeader       = "X-S"
	DefaultDevelopmentSkipHeader = "X-DEVELOPMENT-SKIP"
)

// Nonce and signature bounds. The nonce length bounds are strict
// (exclusive); the signature is a hex HMAC-SHA1, always 40 characters.
const (
	nonceMinLen     = 8
	nonceMaxLen     = 40
	signatureHexLen = 40
)

// HeaderNames configures which request headers carry each signature field.
type HeaderNames struct {
	UserID          string
	Timestamp       string
	Nonce           string
	Signature       string
	DevelopmentSkip string
}

func (h HeaderNames) withDefaults() HeaderNames {
	if h.UserID == "" {
		h.UserID = DefaultUserIDHeader
	}
	if h.Timestamp == "" {
		h.Timestamp = DefaultTimestampHeader
	}
	if h.Nonce == "" {
		h.Nonce = DefaultNonceHeader
	}
	if h.Signature == "" {
		h.Signature = DefaultSignatureHeader
	}
	if h.DevelopmentSkip == "" {
		h.DevelopmentSkip = DefaultDevelopmentSkipHeader
	}
	return h
}

// SignatureHeaders are the parsed signing fields of one request.
type SignatureHeaders struct {
	UserID          string
	Timestamp       int64 // unix seconds
	Nonce           string
	Signature       string
	DevelopmentSkip string
}

// parseHeaders extracts the signature fields. All four required headers
// must be present; absence of any one is a MissingHeaders fault.
func parseHeaders(r *http.Request, names HeaderNames) (SignatureHeaders, error) {
	userID := r.Header.Get(names.UserID)
	rawTS := r.Header.Get(names.Timestamp)
	nonce := r.Header.Get(names.Nonce)
	signature := r.Header.Get(names.Signature)

	if userID == "" || rawTS == "" || nonce == "" || signature == "" {
		return SignatureHeaders{}, ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return SignatureHeaders{}, fmt.Errorf("%w: timestamp %q is not an integer", ErrMalformedHeaders, rawTS)
	}

	return SignatureHeaders{
		UserID:          userID,
		Timestamp:       ts,
		Nonce:           nonce,
		Signature:       signature,
		DevelopmentSkip: r.Header.Get(names.DevelopmentSkip),
	}, nil
}

// validate runs the structural checks. These are deliberately cheap and
// run before any cryptographic work.
func (h SignatureHeaders) validate(now time.Time, maxSkew time.Duration) error {
	skew := now.Unix() - h.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(maxSkew.Seconds()) {
		return fmt.Errorf("%w: timestamp outside ±%s window", ErrMalformedHeaders, maxSkew)
	}

	if n := len(h.Nonce); n <= nonceMinLen || n >= nonceMaxLen {
		return fmt.Errorf("%w: nonce length %d outside (%d,%d)", ErrMalformedHeaders, n, nonceMinLen, nonceMaxLen)
	}

	if len(h.Signature) != signatureHexLen {
		return fmt.Errorf("%w: signature length %d, want %d", ErrMalformedHeaders, len(h.Signature), signatureHexLen)
	}

	return nil
}
