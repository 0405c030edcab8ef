package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStarter counts Start invocations across managers, standing in for
// an auxiliary service shared by one run.
type countingStarter struct {
	starts  atomic.Int32
	stops   atomic.Int32
	lastOpt StartOpts
	fail    bool
}

func (s *countingStarter) Name() string { return "counting" }

func (s *countingStarter) Start(ctx context.Context, opts StartOpts) (CleanupFunc, error) {
	if s.fail {
		return nil, fmt.Errorf("refusing to start")
	}
	s.starts.Add(1)
	s.lastOpt = opts
	return func(ctx context.Context) error {
		s.stops.Add(1)
		return nil
	}, nil
}

func managerConfig(t *testing.T, svc ServiceStarter, worker string) Config {
	t.Helper()
	return Config{
		Log:            zerolog.Nop(),
		TempDir:        t.TempDir(),
		Modes:          []string{"dev", "release"},
		ByteLimit:      1234,
		IntegratedInit: true,
		Workers:        StaticWorkerIdentity(worker),
		Services:       []ServiceStarter{svc},
	}
}

func TestLeaderSetupHappensExactlyOnce(t *testing.T) {
	svc := &countingStarter{}

	// One controller plus K workers cooperating on one run.
	const workers = 5
	managers := []*Manager{NewManager(managerConfig(t, svc, ""))}
	for i := 0; i < workers; i++ {
		managers = append(managers, NewManager(managerConfig(t, svc, fmt.Sprintf("gw%d", i))))
	}

	ctx := context.Background()
	for _, m := range managers {
		require.NoError(t, m.Start(ctx))
		assert.Equal(t, StateReady, m.State())
	}

	assert.Equal(t, int32(1), svc.starts.Load(), "service start must run exactly once")
	assert.True(t, managers[0].Leader())
	for _, m := range managers[1:] {
		assert.False(t, m.Leader())
	}

	for _, m := range managers {
		require.NoError(t, m.Finish(ctx))
	}
	assert.Equal(t, int32(1), svc.stops.Load(), "only the leader owns the stop artifact")
}

func TestHostCleanupRegisteredByEveryWorker(t *testing.T) {
	// Each initializing process owns its own host cleanup, leader or not.
	tests := []struct {
		worker    string
		artifacts int
	}{
		{worker: "", artifacts: 2},    // hosts + the leader-owned service stop
		{worker: "gw0", artifacts: 1}, // hosts only
	}
	for _, tt := range tests {
		t.Run("worker="+tt.worker, func(t *testing.T) {
			svc := &countingStarter{}
			var hostDrains atomic.Int32
			cfg := managerConfig(t, svc, tt.worker)
			cfg.HostCleanup = func(ctx context.Context) error {
				hostDrains.Add(1)
				return nil
			}
			m := NewManager(cfg)

			ctx := context.Background()
			require.NoError(t, m.Start(ctx))
			assert.Equal(t, tt.artifacts, m.Artifacts().Len())

			require.NoError(t, m.Finish(ctx))
			assert.Equal(t, int32(1), hostDrains.Load(), "each worker drains its own hosts")
		})
	}
}

func TestStartPreparesDirsAndPassesByteLimit(t *testing.T) {
	svc := &countingStarter{}
	cfg := managerConfig(t, svc, "")
	cfg.Coverage = true
	cfg.GatherMetrics = true
	m := NewManager(cfg)

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, StateReady, m.State())
	assert.NotEmpty(t, m.SessionID())

	assert.Equal(t, cfg.TempDir, svc.lastOpt.TempDir)
	assert.Equal(t, 1234, svc.lastOpt.ByteLimit)

	for _, dir := range []string{
		"dev", "release",
		filepath.Join("dev", "coverage"),
		filepath.Join("release", "coverage"),
		"metrics",
	} {
		info, err := os.Stat(filepath.Join(cfg.TempDir, dir))
		require.NoError(t, err, "expected %s to exist", dir)
		assert.True(t, info.IsDir())
	}

	require.NoError(t, m.Finish(context.Background()))
	assert.Equal(t, StateClosed, m.State())
}

func TestStartSkippedWithoutIntegratedInit(t *testing.T) {
	svc := &countingStarter{}
	cfg := managerConfig(t, svc, "")
	cfg.IntegratedInit = false
	m := NewManager(cfg)

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, StateUninitialized, m.State())
	assert.Equal(t, int32(0), svc.starts.Load())
	assert.Nil(t, m.Artifacts())

	// A bare run is treated as already closed.
	require.NoError(t, m.Finish(context.Background()))
	assert.Equal(t, StateClosed, m.State())
}

func TestStartSkippedForCollectOnly(t *testing.T) {
	svc := &countingStarter{}
	cfg := managerConfig(t, svc, "")
	cfg.CollectOnly = true
	m := NewManager(cfg)

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, StateUninitialized, m.State())
	assert.Equal(t, int32(0), svc.starts.Load())
}

func TestSetupFailureIsFatal(t *testing.T) {
	svc := &countingStarter{fail: true}
	m := NewManager(managerConfig(t, svc, ""))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsSetupError(err))
	assert.Equal(t, StateInitializing, m.State(), "a failed setup never reaches Ready")

	// Interrupted before Ready: partial artifacts are still drained.
	require.NoError(t, m.Finish(context.Background()))
	assert.Equal(t, StateClosed, m.State())
}

func TestPartialArtifactsDrainedAfterInterrupt(t *testing.T) {
	okSvc := &countingStarter{}
	failSvc := &countingStarter{fail: true}
	cfg := managerConfig(t, okSvc, "")
	cfg.Services = []ServiceStarter{okSvc, failSvc}
	m := NewManager(cfg)

	err := m.Start(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, m.Artifacts().Len(), "first service registered before the failure")

	require.NoError(t, m.Finish(context.Background()))
	assert.Equal(t, int32(1), okSvc.stops.Load(), "no orphaned resources")
}

func TestDoubleStart(t *testing.T) {
	m := NewManager(managerConfig(t, &countingStarter{}, ""))
	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Start(context.Background()))
}

func TestFinishReportsTeardownFailures(t *testing.T) {
	svc := &countingStarter{}
	m := NewManager(managerConfig(t, svc, ""))
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Artifacts().Register("flaky", func(ctx context.Context) error {
		return fmt.Errorf("unremovable")
	}))
	require.NoError(t, m.Artifacts().Register("fine", func(ctx context.Context) error {
		return nil
	}))

	err := m.Finish(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flaky")
	assert.Equal(t, StateClosed, m.State(), "teardown failures still close the session")
	assert.Equal(t, int32(1), svc.stops.Load(), "other cleanups still ran")

	// Finishing again is a no-op.
	require.NoError(t, m.Finish(context.Background()))
}

func TestEnvWorkerIdentity(t *testing.T) {
	t.Setenv(WorkerEnv, "")
	id := EnvWorkerIdentity()
	assert.True(t, id.Leader())
	assert.False(t, id.Distributed())

	t.Setenv(WorkerEnv, "gw3")
	id = EnvWorkerIdentity()
	assert.False(t, id.Leader())
	assert.True(t, id.Distributed())
	assert.Equal(t, "gw3", id.Name())
}
