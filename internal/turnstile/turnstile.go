// Package turnstile implements the per-IP rate limiter: a process-wide
// sliding-window counter, mutated only from the accept path. A single
// mutex-guarded map keyed by source address.
package turnstile

import (
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// entry is the per-IP counter state.
type entry struct {
	lastRequestAt time.Time
	countMinute   int32
	countHour     int32
}

// Limits bundles the two thresholds the turnstile checks against, taken
// from configuration (cfg.rate_limit_m, cfg.rate_limit_h).
type Limits struct {
	PerMinute int32
	PerHour   int32
}

// Turnstile is the process-wide rate limiter. The zero value is not usable;
// construct with New.
type Turnstile struct {
	mu      sync.Mutex
	entries map[string]*entry
	limits  Limits
	now     func() time.Time

	blocked prometheus.Counter
	passed  prometheus.Counter
}

// New creates a Turnstile enforcing limits, optionally registering its
// counters on reg (pass nil to skip registration, e.g. in tests).
func New(limits Limits, reg prometheus.Registerer) *Turnstile {
	t := &Turnstile{
		entries: make(map[string]*entry),
		limits:  limits,
		now:     time.Now,
		blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tchatator413_turnstile_blocked_total",
			Help: "Connections rejected by the turnstile rate limiter.",
		}),
		passed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tchatator413_turnstile_passed_total",
			Help: "Connections accepted by the turnstile rate limiter.",
		}),
	}
	if reg != nil {
		reg.MustRegister(t.blocked, t.passed)
	}
	return t
}

// Decision is the result of checking one connection against the turnstile.
type Decision struct {
	Allowed       bool
	NextRequestAt time.Time // meaningful only when !Allowed
}

// Check records one connection from addr against the counters, returning
// whether it may proceed and, if not, when it may retry. Each counter
// resets when its full window has elapsed since the previous request.
func (t *Turnstile) Check(addr string) Decision {
	host := hostOnly(addr)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, ok := t.entries[host]
	if !ok {
		e = &entry{}
		t.entries[host] = e
	}

	delta := now.Sub(e.lastRequestAt)
	if delta >= time.Minute {
		e.countMinute = 0
	}
	if delta >= time.Hour {
		e.countHour = 0
	}

	e.countMinute++
	e.countHour++
	e.lastRequestAt = now

	// A limit of N lets N requests through per window and blocks the
	// N+1th: the count is compared post-increment, so strictly-greater is
	// the comparison that gives the N+1th request the 429.
	switch {
	case e.countMinute > t.limits.PerMinute:
		t.blocked.Inc()
		return Decision{Allowed: false, NextRequestAt: now.Add(time.Minute - delta)}
	case e.countHour > t.limits.PerHour:
		t.blocked.Inc()
		return Decision{Allowed: false, NextRequestAt: now.Add(time.Hour - delta)}
	default:
		t.passed.Inc()
		return Decision{Allowed: true}
	}
}

// hostOnly strips a port from addr, if any, so "1.2.3.4:5555" and
// "1.2.3.4:6666" share one entry.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
