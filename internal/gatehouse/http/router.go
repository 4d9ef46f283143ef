package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/service"
	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/store"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/ratelimit"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store        store.Store
	TokenService *service.TokenService
	Limiter      *ratelimit.Limiter
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerTokens()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerTokens() {
	tokenHandler := &TokenHandler{TokenService: r.TokenService}

	r.Mux.Handle("POST /v1/auth/token", http.HandlerFunc(tokenHandler.HandleIssue))
	r.Mux.Handle("POST /v1/auth/refresh", http.HandlerFunc(tokenHandler.HandleRefresh))
	r.Mux.Handle("POST /v1/auth/revoke", http.HandlerFunc(tokenHandler.HandleRevoke))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.store))

	// Limiter metrics are operational detail; admin eyes only.
	r.Mux.Handle("GET /v1/ratelimit/metrics",
		httpx.Chain(MetricsHandler(r.Limiter),
			httpx.RequireRole("admin"),
		),
	)
}
