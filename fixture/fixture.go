// Package fixture decides at which scope shared session resources live and
// lazily materializes them on first use.
package fixture

import (
	"context"
	"sync"
)

// Scope is the lifetime of a session-level resource.
type Scope string

const (
	// ScopePerRun: one instance for the whole process lifetime. Selected
	// when the suite driver re-invokes the runner per source file, so "per
	// process" already approximates "per suite".
	ScopePerRun Scope = "per-run"
	// ScopePerSuiteFile: one instance per suite file. Selected for
	// integrated-init runs, where a single process hosts every suite file
	// and per-run scoping would wrongly share per-suite resources.
	ScopePerSuiteFile Scope = "per-suite-file"
)

// String implements the Stringer interface for Scope.
func (s Scope) String() string {
	return string(s)
}

// ResolveScope maps the integrated-init flag to the fixture scope.
// Deterministic and side-effect free.
func ResolveScope(integratedInit bool) Scope {
	if integratedInit {
		return ScopePerSuiteFile
	}
	return ScopePerRun
}

// Store lazily builds and caches one value per scope key. With ScopePerRun
// there is a single key for the whole store; with ScopePerSuiteFile the
// requesting file is the key. Each value is built at most once; a build
// error is returned to the caller and not cached, so a later request may
// retry.
type Store[T any] struct {
	scope Scope
	build func(ctx context.Context, file string) (T, error)

	mu     sync.Mutex
	values map[string]T
}

// NewStore creates a store resolving values with build at the given scope.
func NewStore[T any](scope Scope, build func(ctx context.Context, file string) (T, error)) *Store[T] {
	return &Store[T]{
		scope:  scope,
		build:  build,
		values: make(map[string]T),
	}
}

// Scope returns the store's resolved scope.
func (s *Store[T]) Scope() Scope {
	return s.scope
}

// Get returns the value for the requesting suite file, building it on first
// use.
func (s *Store[T]) Get(ctx context.Context, file string) (T, error) {
	key := ""
	if s.scope == ScopePerSuiteFile {
		key = file
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.values[key]; ok {
		return v, nil
	}
	v, err := s.build(ctx, file)
	if err != nil {
		var zero T
		return zero, err
	}
	s.values[key] = v
	return v, nil
}
