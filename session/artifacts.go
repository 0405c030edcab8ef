package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// CleanupFunc releases one resource accumulated during session setup.
type CleanupFunc func(ctx context.Context) error

type artifact struct {
	key     string
	cleanup CleanupFunc
}

// ArtifactRegistry is the ordered collection of cleanup actions owned by the
// session. It is appended to during setup and drained exactly once during
// teardown; every registered action runs even when others fail.
type ArtifactRegistry struct {
	log zerolog.Logger

	mu        sync.Mutex
	drained   bool
	artifacts []artifact
}

// NewArtifactRegistry creates an empty registry.
func NewArtifactRegistry(log zerolog.Logger) *ArtifactRegistry {
	return &ArtifactRegistry{log: log}
}

// Register appends a cleanup action for the given resource key. Returns an
// error when the registry was already drained: a resource created that late
// has no teardown left to run under.
func (r *ArtifactRegistry) Register(key string, cleanup CleanupFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drained {
		return fmt.Errorf("artifact registry already drained, cannot register %q", key)
	}
	r.artifacts = append(r.artifacts, artifact{key: key, cleanup: cleanup})
	r.log.Debug().Str("artifact", key).Int("registered", len(r.artifacts)).Msg("artifact registered")
	return nil
}

// Len returns the number of registered artifacts.
func (r *ArtifactRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.artifacts)
}

// Drain runs every registered cleanup action exactly once, newest first,
// and waits for all of them to finish. Failures are collected and returned
// as one aggregate error after every action ran; they never short-circuit
// the remaining actions. A second drain is a no-op.
func (r *ArtifactRegistry) Drain(ctx context.Context) error {
	r.mu.Lock()
	if r.drained {
		r.mu.Unlock()
		return nil
	}
	r.drained = true
	artifacts := r.artifacts
	r.artifacts = nil
	r.mu.Unlock()

	if len(artifacts) == 0 {
		return nil
	}

	p := pool.New().WithErrors().WithContext(ctx)
	for i := len(artifacts) - 1; i >= 0; i-- {
		a := artifacts[i]
		p.Go(func(ctx context.Context) error {
			if err := a.cleanup(ctx); err != nil {
				r.log.Warn().Str("artifact", a.key).Err(err).Msg("artifact cleanup failed")
				return fmt.Errorf("cleanup %s: %w", a.key, err)
			}
			return nil
		})
	}
	return p.Wait()
}
