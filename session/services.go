package session

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
)

// StartOpts carries the parameters every auxiliary service receives on
// startup. ByteLimit configures fault injection in services that support it.
type StartOpts struct {
	TempDir   string
	ByteLimit int
}

// ServiceStarter is the contract of an auxiliary third-party service
// (an object-store mock, a fault-injecting proxy, ...). Start must be
// idempotent for a given StartOpts; the returned cleanup stops the service
// and is registered as a session artifact. The concrete mechanics of these
// services live outside this module.
type ServiceStarter interface {
	Name() string
	Start(ctx context.Context, opts StartOpts) (CleanupFunc, error)
}

// ExecStarter starts an auxiliary service as a child process. The argument
// placeholders {tmpdir} and {byte-limit} are substituted from StartOpts.
type ExecStarter struct {
	Log         zerolog.Logger
	ServiceName string
	Command     string
	Args        []string

	mu      sync.Mutex
	stop    CleanupFunc
	started bool
}

var _ ServiceStarter = (*ExecStarter)(nil)

// Name implements ServiceStarter.
func (s *ExecStarter) Name() string {
	return s.ServiceName
}

// Start launches the service once; repeated calls return the cleanup of the
// first successful start.
func (s *ExecStarter) Start(ctx context.Context, opts StartOpts) (CleanupFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return s.stop, nil
	}

	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		a = strings.ReplaceAll(a, "{tmpdir}", opts.TempDir)
		a = strings.ReplaceAll(a, "{byte-limit}", strconv.Itoa(opts.ByteLimit))
		args[i] = a
	}

	cmd := exec.CommandContext(ctx, s.Command, args...)
	s.Log.Debug().
		Str("service", s.ServiceName).
		Str("command", shellescape.QuoteCommand(append([]string{s.Command}, args...))).
		Msg("starting auxiliary service")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.ServiceName, err)
	}

	s.started = true
	s.stop = func(context.Context) error {
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("stopping %s: %w", s.ServiceName, err)
		}
		// Reap the child; the kill above makes the error here expected.
		_ = cmd.Wait()
		return nil
	}
	return s.stop, nil
}
