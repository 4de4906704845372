// Package scope implements the request-scoped cleanup facility: a single
// handle whose Close releases every buffer registered during one request,
// on every control-flow exit. Ordinary defer can't express "release N
// conditionally-allocated buffers from inside a loop" without this
// bookkeeping.
package scope

import "sync"

// Scope is a per-request arena of (destructor) thunks, run in arbitrary
// order on Close. The zero value is ready to use.
type Scope struct {
	mu      sync.Mutex
	dtors   []func()
	added   map[any]struct{}
	closed  bool
}

// New returns an empty Scope.
func New() *Scope {
	return &Scope{added: make(map[any]struct{})}
}

// Add registers dtor to run when the scope closes. Adding a nil pointer p
// is a no-op. Adding the same non-nil pointer twice is a programming
// error: it panics, since this can only happen if calling code mismanages
// ownership.
func (s *Scope) Add(p any, dtor func()) {
	if p == nil || dtor == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("scope: add after close")
	}
	if s.added == nil {
		s.added = make(map[any]struct{})
	}
	if _, dup := s.added[p]; dup {
		panic("scope: pointer added twice")
	}
	s.added[p] = struct{}{}
	s.dtors = append(s.dtors, dtor)
}

// Collect invokes every registered destructor and empties the stack. Safe
// to call multiple times; subsequent calls are no-ops.
func (s *Scope) Collect() {
	s.mu.Lock()
	dtors := s.dtors
	s.dtors = nil
	s.added = make(map[any]struct{})
	s.mu.Unlock()

	for _, dtor := range dtors {
		dtor()
	}
}

// Close collects and marks the scope unusable for further Add calls. It is
// the method request handlers defer immediately after creating a Scope, so
// cleanup runs on every control-flow exit regardless of success.
func (s *Scope) Close() {
	s.Collect()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
