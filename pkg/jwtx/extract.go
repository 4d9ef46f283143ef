package jwtx

import (
	"net/http"
	"strings"
)

// Extractor pulls a raw token out of an inbound request. The three
// channels exist because browser, mobile and server-to-server clients each
// prefer a different one; first match wins.
type Extractor struct {
	// CookieName names the cookie carrying the token. Empty disables
	// cookie extraction.
	CookieName string

	// QueryParam names the query parameter carrying the token. Empty
	// disables query extraction.
	QueryParam string
}

// FromRequest returns the first token found, checking the Authorization
// bearer header, then the named cookie, then the named query parameter.
func (e Extractor) FromRequest(r *http.Request) (string, bool) {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		if raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer")); raw != "" {
			return raw, true
		}
	}

	if e.CookieName != "" {
		if cookie, err := r.Cookie(e.CookieName); err == nil && cookie.Value != "" {
			return cookie.Value, true
		}
	}

	if e.QueryParam != "" {
		if raw := r.URL.Query().Get(e.QueryParam); raw != "" {
			return raw, true
		}
	}

	return "", false
}
