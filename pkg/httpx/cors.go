package httpx

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSStage applies cross-origin headers and terminates preflight
// requests before any verification stage sees them. Preflights carry no
// signature or token, so they must never reach the trust stages.
type CORSStage struct {
	cors *cors.Cors
}

// NewCORSStage wraps an rs/cors policy as a dispatcher stage.
func NewCORSStage(opts cors.Options) *CORSStage {
	return &CORSStage{cors: cors.New(opts)}
}

func (s *CORSStage) Name() string  { return "cors" }
func (s *CORSStage) Priority() int { return PriorityCORS }

func (s *CORSStage) Focus(*http.Request) bool { return true }

func (s *CORSStage) Process(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

	s.cors.HandlerFunc(w, r)

	if preflight {
		w.WriteHeader(http.StatusNoContent)
		return r, false
	}
	return r, true
}
