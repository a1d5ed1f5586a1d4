package runtime

import (
	"sort"
	"sync"
)

// Scope holds variable bindings with parent scope chaining. Lookups start in
// the current scope and walk up the parent chain; Set always writes to the
// current scope, so a child shadows its parent without modifying it.
type Scope struct {
	parent *Scope
	vars   map[rune]float64
	mu     sync.RWMutex
}

// NewScope creates a new root scope seeded with vars.
func NewScope(vars map[rune]float64) *Scope {
	s := &Scope{vars: make(map[rune]float64, len(vars))}
	for name, v := range vars {
		s.vars[name] = v
	}
	return s
}

// NewChildScope creates a child scope that inherits from this scope.
func (s *Scope) NewChildScope() *Scope {
	return &Scope{
		parent: s,
		vars:   make(map[rune]float64),
	}
}

// Get retrieves a binding, searching up the scope chain.
func (s *Scope) Get(name rune) (float64, bool) {
	s.mu.RLock()
	v, ok := s.vars[name]
	s.mu.RUnlock()
	if ok {
		return v, true
	}
	if s.parent != nil {
		return s.parent.Get(name)
	}
	return 0, false
}

// Set binds name in the current scope.
func (s *Scope) Set(name rune, value float64) {
	s.mu.Lock()
	s.vars[name] = value
	s.mu.Unlock()
}

// SetAll binds every entry of vars in the current scope.
func (s *Scope) SetAll(vars map[rune]float64) {
	s.mu.Lock()
	for name, v := range vars {
		s.vars[name] = v
	}
	s.mu.Unlock()
}

// Flatten returns every visible binding, with inner scopes winning.
func (s *Scope) Flatten() map[rune]float64 {
	var out map[rune]float64
	if s.parent != nil {
		out = s.parent.Flatten()
	} else {
		out = make(map[rune]float64)
	}
	s.mu.RLock()
	for name, v := range s.vars {
		out[name] = v
	}
	s.mu.RUnlock()
	return out
}

// Names returns the visible variable names in ascending order.
func (s *Scope) Names() []rune {
	flat := s.Flatten()
	names := make([]rune, 0, len(flat))
	for name := range flat {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
