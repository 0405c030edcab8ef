// Package matrix expands the configured build modes and repeat count into
// the execution matrix and parametrizes discovered tests with it.
package matrix

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"

	"github.com/lsfreitas/testrun/identity"
	"github.com/lsfreitas/testrun/suite"
)

// AllModes is the fixed set of build modes a test run can select from.
var AllModes = []string{"debug", "release", "dev", "sanitize", "coverage"}

// ModeUnknown is the fallback mode axis used when neither the command line
// nor the build tree names any mode.
const ModeUnknown = "unknown"

// HostRunner names how the surrounding test runner drives this process.
type HostRunner string

const (
	// RunnerIntegrated: this process owns parametrization of discovered
	// tests (the default).
	RunnerIntegrated HostRunner = "integrated"
	// RunnerExternal: the host runner performs its own parametrization and
	// the matrix generator must stay out of the way entirely.
	RunnerExternal HostRunner = "external"
)

// Cell is one (mode, iteration) combination of the execution matrix.
// Iteration is zero-based; the visible token is 1-based.
type Cell struct {
	Mode      string
	Iteration int
}

// Token returns the inline identity token labeling executions of this cell.
func (c Cell) Token() string {
	return identity.Encode(c.Mode, c.Iteration)
}

// Execution is one concrete test execution: a discovered item bound to a
// matrix cell, under the name the host runner will report it as.
type Execution struct {
	Item suite.Item
	Cell Cell
	Name string
}

// Config contains generator configuration.
type Config struct {
	Log        zerolog.Logger
	Modes      []string // ordered; empty falls back to ModeUnknown
	Repeat     int      // must be >= 1, validated at configuration time
	HostRunner HostRunner
}

// Generator produces the execution matrix for one session. The matrix is
// computed once and immutable afterwards.
type Generator struct {
	config Config
	modes  []string
	cells  []Cell
}

// NewGenerator validates the configuration and precomputes the matrix.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Repeat < 1 {
		return nil, fmt.Errorf("repeat count must be positive, got %d", cfg.Repeat)
	}
	if cfg.HostRunner == "" {
		cfg.HostRunner = RunnerIntegrated
	}

	modes := dedupe(cfg.Modes)
	if len(modes) == 0 {
		modes = []string{ModeUnknown}
	}

	cells := make([]Cell, 0, len(modes)*cfg.Repeat)
	for _, mode := range modes {
		for i := 0; i < cfg.Repeat; i++ {
			cells = append(cells, Cell{Mode: mode, Iteration: i})
		}
	}

	cfg.Log.Debug().
		Strs("modes", modes).
		Int("repeat", cfg.Repeat).
		Int("cells", len(cells)).
		Msg("execution matrix generated")

	return &Generator{config: cfg, modes: modes, cells: cells}, nil
}

// Modes returns the resolved mode axis.
func (g *Generator) Modes() []string {
	return slices.Clone(g.modes)
}

// Cells returns the ordered cross-product modes × [0, repeat).
func (g *Generator) Cells() []Cell {
	return slices.Clone(g.cells)
}

// Parametrize binds discovered items to the matrix. Every generic item
// produces one execution per cell, labeled with the cell's identity token
// adjacent to any pre-existing parameter suffix. Native items carry their
// own identity path and pass through exactly once, unlabeled. When the host
// runner parametrizes externally, all items pass through untouched.
func (g *Generator) Parametrize(items []suite.Item) []Execution {
	if g.config.HostRunner == RunnerExternal {
		executions := make([]Execution, 0, len(items))
		for _, item := range items {
			executions = append(executions, Execution{Item: item, Name: item.NodeID()})
		}
		return executions
	}

	var executions []Execution
	for _, item := range items {
		if item.Kind == suite.KindNative {
			executions = append(executions, Execution{Item: item, Name: item.NodeID()})
			continue
		}
		for _, cell := range g.cells {
			executions = append(executions, Execution{
				Item: item,
				Cell: cell,
				Name: executionName(item, cell),
			})
		}
	}
	return executions
}

// executionName embeds the cell token in the item's node id, keeping any
// pre-existing parameter suffix bundled after it.
func executionName(item suite.Item, cell Cell) string {
	bare := suite.Item{Suite: item.Suite, File: item.File, Name: item.Name}.NodeID()
	if item.Params != "" {
		return fmt.Sprintf("%s[%s-%s]", bare, cell.Token(), item.Params)
	}
	return fmt.Sprintf("%s[%s]", bare, cell.Token())
}

// KnownMode reports whether mode is a member of AllModes.
func KnownMode(mode string) bool {
	return slices.Contains(AllModes, mode)
}

// ConfiguredModes returns the modes the build tree was configured for, i.e.
// the known-mode subdirectories of buildDir, in AllModes order. Used as the
// mode axis when no --mode is given.
func ConfiguredModes(buildDir string) []string {
	var modes []string
	for _, mode := range AllModes {
		if info, err := os.Stat(filepath.Join(buildDir, mode)); err == nil && info.IsDir() {
			modes = append(modes, mode)
		}
	}
	return modes
}

func dedupe(modes []string) []string {
	seen := make(map[string]struct{}, len(modes))
	var out []string
	for _, m := range modes {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
