package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShutdownBeforeServersStarted(t *testing.T) {
	// Start launches the servers on goroutines; a deferred Shutdown can run
	// before they were ever assigned.
	s := New()
	assert.NotPanics(t, func() { s.Shutdown() })

	assert.NoError(t, s.Healthz.Shutdown())
	assert.NoError(t, s.Metrics.Shutdown())
}
