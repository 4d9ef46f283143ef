package jwtx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestExtractorPriority(t *testing.T) {
	e := jwtx.Extractor{CookieName: "gh_token", QueryParam: "access_token"}

	t.Run("bearer header wins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?access_token=from-query", nil)
		req.Header.Set("Authorization", "Bearer from-header")
		req.AddCookie(&http.Cookie{Name: "gh_token", Value: "from-cookie"})

		token, ok := e.FromRequest(req)
		require.True(t, ok)
		require.Equal(t, "from-header", token)
	})

	t.Run("cookie beats query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?access_token=from-query", nil)
		req.AddCookie(&http.Cookie{Name: "gh_token", Value: "from-cookie"})

		token, ok := e.FromRequest(req)
		require.True(t, ok)
		require.Equal(t, "from-cookie", token)
	})

	t.Run("query as last resort", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?access_token=from-query", nil)

		token, ok := e.FromRequest(req)
		require.True(t, ok)
		require.Equal(t, "from-query", token)
	})

	t.Run("nothing found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		_, ok := e.FromRequest(req)
		require.False(t, ok)
	})

	t.Run("non-bearer authorization ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		_, ok := e.FromRequest(req)
		require.False(t, ok)
	})

	t.Run("disabled channels skipped", func(t *testing.T) {
		bare := jwtx.Extractor{}
		req := httptest.NewRequest(http.MethodGet, "/?access_token=from-query", nil)
		req.AddCookie(&http.Cookie{Name: "gh_token", Value: "from-cookie"})

		_, ok := bare.FromRequest(req)
		require.False(t, ok)
	})
}
