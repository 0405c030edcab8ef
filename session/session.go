// Package session owns the process-wide state of one test-runner
// invocation: the artifact registry of accumulated cleanup actions, the
// leader/worker split for one-time setup, and the lifecycle state machine
// that guarantees setup happens exactly once and teardown drains every
// artifact exactly once, whatever the exit path.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the session lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateTearingDown   State = "tearing-down"
	StateClosed        State = "closed"
)

// SetupError marks a fatal failure during session initialization: a
// half-initialized session cannot safely run tests, so these propagate to
// the process exit code instead of being retried.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("session setup failed: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface.
func (e *SetupError) Unwrap() error {
	return e.Err
}

// IsSetupError checks if the error is or wraps a SetupError.
func IsSetupError(err error) bool {
	var setupErr *SetupError
	return err != nil && errors.As(err, &setupErr)
}

// Config contains session manager configuration.
type Config struct {
	Log            zerolog.Logger
	TempDir        string
	Modes          []string
	ByteLimit      int
	Coverage       bool
	GatherMetrics  bool
	IntegratedInit bool // this process performs one-time session setup
	CollectOnly    bool // collection-only run, no setup at all
	Workers        WorkerIdentity
	Services       []ServiceStarter

	// HostCleanup releases per-process host resources (e.g. test instances
	// spawned by this worker). Unlike service artifacts it is registered by
	// every initializing process, leader or not, so each worker drains its
	// own hosts on Finish.
	HostCleanup CleanupFunc
}

// Manager drives the session lifecycle:
// Uninitialized → Initializing → Ready → TearingDown → Closed.
// A run that never initializes (collection-only, or integrated-init off)
// goes straight from Uninitialized to Closed on Finish.
type Manager struct {
	config Config

	// lifecycleMu serializes Start and Finish; in particular no two
	// teardown drains may run concurrently for the same session.
	lifecycleMu sync.Mutex

	mu        sync.Mutex
	state     State
	sessionID string
	leader    bool
	artifacts *ArtifactRegistry
}

// NewManager creates a manager in StateUninitialized.
func NewManager(cfg Config) *Manager {
	if cfg.Workers == nil {
		cfg.Workers = EnvWorkerIdentity()
	}
	return &Manager{
		config: cfg,
		state:  StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the id assigned at initialization, empty beforehand.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Leader reports whether this process performed (or would perform) the
// one-time setup. Meaningful after Start.
func (m *Manager) Leader() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leader
}

// Artifacts returns the session's registry, nil until the session
// initializes.
func (m *Manager) Artifacts() *ArtifactRegistry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artifacts
}

// Start performs one-time session initialization. It is a no-op for
// collection-only runs and for runs where another process owns session
// setup (integrated-init off). Among cooperating workers only the leader
// prepares directories and starts auxiliary services; the other workers
// observe Ready without repeating any of it. Setup failures are fatal and
// returned as SetupError; artifacts registered before the failure stay
// registered so Finish can still drain them.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if !m.config.IntegratedInit || m.config.CollectOnly {
		m.config.Log.Debug().
			Bool("integrated_init", m.config.IntegratedInit).
			Bool("collect_only", m.config.CollectOnly).
			Msg("session setup skipped")
		return nil
	}

	m.mu.Lock()
	if m.state != StateUninitialized {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("session already started (state %s)", state)
	}
	m.state = StateInitializing
	m.sessionID = uuid.NewString()
	m.leader = m.config.Workers.Leader()
	m.artifacts = NewArtifactRegistry(m.config.Log)
	m.mu.Unlock()

	logger := m.config.Log.With().Str("session", m.sessionID).Logger()

	if m.config.HostCleanup != nil {
		if err := m.artifacts.Register("hosts", m.config.HostCleanup); err != nil {
			return &SetupError{Err: err}
		}
	}

	if !m.leader {
		// Another worker owns directory preparation and service startup.
		logger.Debug().Str("worker", m.config.Workers.Name()).Msg("joining session as worker")
		m.setState(StateReady)
		return nil
	}

	start := time.Now()
	if err := PrepareDirs(m.config.TempDir, m.config.Modes, m.config.Coverage, m.config.GatherMetrics); err != nil {
		return &SetupError{Err: err}
	}

	for _, svc := range m.config.Services {
		stop, err := svc.Start(ctx, StartOpts{
			TempDir:   m.config.TempDir,
			ByteLimit: m.config.ByteLimit,
		})
		if err != nil {
			return &SetupError{Err: fmt.Errorf("service %s: %w", svc.Name(), err)}
		}
		if err := m.artifacts.Register("service:"+svc.Name(), stop); err != nil {
			return &SetupError{Err: err}
		}
	}

	logger.Info().
		Strs("modes", m.config.Modes).
		Int("byte_limit", m.config.ByteLimit).
		Dur("elapsed", time.Since(start)).
		Msg("session ready")
	m.setState(StateReady)
	return nil
}

// Finish tears the session down, draining every registered artifact exactly
// once. Calling it on a session that never initialized is fine and leaves
// it Closed. Teardown failures are aggregated and returned after all other
// cleanups ran; callers surface them as warnings, they do not change test
// outcomes.
func (m *Manager) Finish(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	switch m.state {
	case StateUninitialized, StateClosed:
		m.state = StateClosed
		m.mu.Unlock()
		return nil
	case StateInitializing, StateReady:
		// Initializing here means the run was interrupted before Ready;
		// partial artifacts still need draining.
	default:
		m.mu.Unlock()
		return fmt.Errorf("session in unexpected state %s", m.state)
	}
	m.state = StateTearingDown
	registry := m.artifacts
	m.mu.Unlock()

	var err error
	if registry != nil {
		err = registry.Drain(ctx)
	}
	m.setState(StateClosed)

	if err != nil {
		m.config.Log.Warn().Err(err).Msg("session teardown finished with failures")
	} else {
		m.config.Log.Debug().Msg("session closed")
	}
	return err
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
