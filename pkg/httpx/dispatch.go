// Package httpx carries the request-interception contract shared by every
// gatehouse stage, plus the concrete stages and response plumbing.
package httpx

import (
	"net/http"
	"sort"
)

// Middleware is a standard net/http middleware.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first listed is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Stage is one interception step. The dispatcher runs stages in priority
// order (higher first); a stage whose Focus declines the request is
// skipped entirely.
type Stage interface {
	// Name identifies the stage in logs.
	Name() string

	// Priority orders stages; higher runs first.
	Priority() int

	// Focus reports whether the stage should evaluate this request.
	Focus(r *http.Request) bool

	// Process either passes the request through (possibly with derived
	// context attached) or writes a terminal rejection to w and returns
	// ok=false. A rejection stops the chain; nothing later runs.
	Process(w http.ResponseWriter, r *http.Request) (out *http.Request, ok bool)
}

// Dispatcher composes stages into one middleware. The first rejection
// terminates the chain and its response is returned verbatim; the
// dispatcher itself never inspects fault detail.
type Dispatcher struct {
	stages []Stage
}

// NewDispatcher sorts the given stages by priority descending. The sort is
// stable so stages with equal priority keep their registration order.
func NewDispatcher(stages ...Stage) *Dispatcher {
	sorted := make([]Stage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Dispatcher{stages: sorted}
}

// Stages returns the stages in execution order.
func (d *Dispatcher) Stages() []Stage { return d.stages }

// Then wraps the application handler with the stage chain.
func (d *Dispatcher) Then(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, stage := range d.stages {
			if !stage.Focus(r) {
				continue
			}
			out, ok := stage.Process(w, r)
			if !ok {
				return
			}
			r = out
		}
		next.ServeHTTP(w, r)
	})
}
