package ratelimit

import (
	"sync/atomic"
	"time"
)

// Metrics keeps running counters for limiter checks. Reads are
// eventually-consistent and carry no correctness weight.
type Metrics struct {
	total     atomic.Int64
	allowed   atomic.Int64
	blocked   atomic.Int64
	failures  atomic.Int64
	latencyNS atomic.Int64
}

// Report is a point-in-time snapshot of limiter activity.
type Report struct {
	Total     int64         `json:"total_checks"`
	Allowed   int64         `json:"allowed"`
	Blocked   int64         `json:"blocked"`
	Failures  int64         `json:"store_failures"`
	BlockRate float64       `json:"block_rate"`
	AvgCheck  time.Duration `json:"avg_check_latency_ns"`
}

type checkOutcome int

const (
	outcomeAllowed checkOutcome = iota
	outcomeBlocked
	outcomeFailure
)

func (m *Metrics) record(outcome checkOutcome, elapsed time.Duration) {
	m.total.Add(1)
	switch outcome {
	case outcomeAllowed:
		m.allowed.Add(1)
	case outcomeBlocked:
		m.blocked.Add(1)
	default:
		m.failures.Add(1)
	}
	m.latencyNS.Add(elapsed.Nanoseconds())
}

// Snapshot returns the current counters. The fields are read one by one,
// so a snapshot taken under load may be internally off by a few checks.
func (m *Metrics) Snapshot() Report {
	r := Report{
		Total:    m.total.Load(),
		Allowed:  m.allowed.Load(),
		Blocked:  m.blocked.Load(),
		Failures: m.failures.Load(),
	}
	if r.Total > 0 {
		r.BlockRate = float64(r.Blocked) / float64(r.Total)
		r.AvgCheck = time.Duration(m.latencyNS.Load() / r.Total)
	}
	return r
}
