package runner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsfreitas/testrun/matrix"
	"github.com/lsfreitas/testrun/suite"
)

func execution(mode string, iteration int) matrix.Execution {
	item := suite.Item{Suite: "cluster", File: "test_multidc.py", Name: "test_multidc", Kind: suite.KindGeneric}
	cell := matrix.Cell{Mode: mode, Iteration: iteration}
	return matrix.Execution{
		Item: item,
		Cell: cell,
		Name: fmt.Sprintf("%s[%s]", item.NodeID(), cell.Token()),
	}
}

func TestNewExecRunnerRequiresBinary(t *testing.T) {
	_, err := NewExecRunner(Config{Log: zerolog.Nop()})
	require.Error(t, err)
}

func TestExecRunnerStatuses(t *testing.T) {
	tests := []struct {
		name   string
		binary string
		status Status
	}{
		{name: "pass on exit 0", binary: "true", status: StatusPass},
		{name: "fail on exit 1", binary: "false", status: StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewExecRunner(Config{
				Log:     zerolog.Nop(),
				Binary:  tt.binary,
				WorkDir: t.TempDir(),
			})
			require.NoError(t, err)

			result, err := r.Run(context.Background(), execution("dev", 0))
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, "cluster/test_multidc.py::test_multidc[%dev.1%]", result.Name)
		})
	}
}

func TestExecRunnerRuntimeError(t *testing.T) {
	r, err := NewExecRunner(Config{
		Log:    zerolog.Nop(),
		Binary: "/nonexistent/test-binary",
	})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), execution("dev", 0))
	require.Error(t, err, "a missing binary is a runtime error, not a test failure")
}

func TestExecRunnerTimeoutVsInterrupt(t *testing.T) {
	sleeper := matrix.Execution{
		Item: suite.Item{File: "5", Name: "sleep", Kind: suite.KindGeneric},
		Cell: matrix.Cell{Mode: "dev"},
		Name: "sleep",
	}

	t.Run("deadline reports a timeout", func(t *testing.T) {
		r, err := NewExecRunner(Config{
			Log:     zerolog.Nop(),
			Binary:  "sleep",
			WorkDir: t.TempDir(),
			Timeout: 100 * time.Millisecond,
		})
		require.NoError(t, err)

		result, err := r.Run(context.Background(), sleeper)
		require.NoError(t, err)
		assert.Equal(t, StatusError, result.Status)
		assert.Contains(t, result.Err.Error(), "timed out")
		assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	})

	t.Run("cancellation reports an interrupt", func(t *testing.T) {
		r, err := NewExecRunner(Config{
			Log:     zerolog.Nop(),
			Binary:  "sleep",
			WorkDir: t.TempDir(),
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		result, err := r.Run(ctx, sleeper)
		require.NoError(t, err)
		assert.Equal(t, StatusError, result.Status)
		assert.Contains(t, result.Err.Error(), "interrupted")
		assert.ErrorIs(t, result.Err, context.Canceled)
	})
}

func TestAggregate(t *testing.T) {
	executions := []*ExecutionResult{
		{Status: StatusPass},
		{Status: StatusPass},
		{Status: StatusFail},
		{Status: StatusSkip},
		{Status: StatusError},
	}

	result := Aggregate("run-1", executions, 3*time.Second)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, Stats{Total: 5, Passed: 2, Failed: 2, Skipped: 1}, result.Stats)
	assert.Equal(t, StatusFail, result.Status)

	allPass := Aggregate("run-2", []*ExecutionResult{{Status: StatusPass}}, time.Second)
	assert.Equal(t, StatusPass, allPass.Status)

	allSkipped := Aggregate("run-3", []*ExecutionResult{{Status: StatusSkip}}, time.Second)
	assert.Equal(t, StatusSkip, allSkipped.Status)

	empty := Aggregate("run-4", nil, 0)
	assert.Equal(t, StatusPass, empty.Status)
	assert.Equal(t, 0, empty.Stats.Total)
}
