// Package suite resolves suite directories and their configuration into
// typed test descriptors. It is the boundary to the host runner's discovery
// machinery: testrun consumes the descriptors, it does not define how test
// bodies are found or executed.
package suite

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Kind distinguishes how a test's identity is produced. Generic tests are
// parametrized by the matrix generator and carry the inline %mode.N% token;
// native tests (pre-compiled test binaries) encode mode and iteration on
// their own identity path and must not be double-labeled.
type Kind string

const (
	KindGeneric Kind = "generic"
	KindNative  Kind = "native"
)

// String implements the Stringer interface for Kind.
func (k Kind) String() string {
	return string(k)
}

// valid reports whether k is a known kind. The zero value is resolved to
// KindGeneric by Registry when a suite config omits the type.
func (k Kind) valid() bool {
	return k == KindGeneric || k == KindNative
}

// Item is one discovered test, resolved once at discovery time.
type Item struct {
	Suite  string // suite name, the first path element of the node id
	File   string // file within the suite, e.g. "test_multidc.py"
	Name   string // test function name
	Kind   Kind
	Params string // pre-existing parameter suffix, without brackets
}

// NodeID returns the host runner's flat identifier for the item:
// "suite/file::name" with an optional bracketed parameter suffix.
func (i Item) NodeID() string {
	id := path.Join(i.Suite, i.File) + "::" + i.Name
	if i.Params != "" {
		id += "[" + i.Params + "]"
	}
	return id
}

// SuiteConfig is the on-disk suite.yaml for one suite directory.
type SuiteConfig struct {
	Type     Kind         `yaml:"type,omitempty"`
	PoolSize int          `yaml:"pool_size,omitempty"`
	Tests    []TestConfig `yaml:"tests"`
}

// TestConfig declares one test of a suite.
type TestConfig struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file,omitempty"` // defaults to "<name>.py"
	Params string `yaml:"params,omitempty"`
}

// Suite is a loaded suite directory.
type Suite struct {
	Name string
	Dir  string
	Cfg  SuiteConfig
}

// Descriptor ties a single test file to the configuration it runs under.
// It is what the fixture layer hands to session-scoped consumers.
type Descriptor struct {
	Suite    *Suite
	Path     string // node path relative to the suite root
	Mode     string
	PoolSize int
}

// Config contains registry configuration.
type Config struct {
	Log  zerolog.Logger
	Root string // directory holding one subdirectory per suite
}

// Registry loads and caches suite configurations.
type Registry struct {
	config Config
	mu     sync.Mutex
	suites map[string]*Suite
}

// NewRegistry creates a new registry rooted at cfg.Root.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("suite root directory is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve suite root %q: %w", cfg.Root, err)
	}
	cfg.Root = root
	return &Registry{
		config: cfg,
		suites: make(map[string]*Suite),
	}, nil
}

// LoadSuite reads and caches the suite.yaml of one suite directory.
func (r *Registry) LoadSuite(name string) (*Suite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.suites[name]; ok {
		return s, nil
	}

	dir := filepath.Join(r.config.Root, name)
	cfgPath := filepath.Join(dir, "suite.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("reading suite config: %w", err)
	}

	var cfg SuiteConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing suite config %s: %w", cfgPath, err)
	}
	if cfg.Type == "" {
		cfg.Type = KindGeneric
	}
	if !cfg.Type.valid() {
		return nil, fmt.Errorf("suite %s: unknown type %q", name, cfg.Type)
	}

	s := &Suite{Name: name, Dir: dir, Cfg: cfg}
	r.suites[name] = s
	r.config.Log.Debug().Str("suite", name).Int("tests", len(cfg.Tests)).Msg("suite loaded")
	return s, nil
}

// Discover loads every suite under the root and returns the full item list,
// suite order stable (lexicographic, matching the directory listing).
func (r *Registry) Discover() ([]Item, error) {
	entries, err := os.ReadDir(r.config.Root)
	if err != nil {
		return nil, fmt.Errorf("reading suite root: %w", err)
	}

	var items []Item
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.config.Root, e.Name(), "suite.yaml")); err != nil {
			continue
		}
		s, err := r.LoadSuite(e.Name())
		if err != nil {
			return nil, err
		}
		items = append(items, s.Items()...)
	}
	return items, nil
}

// Items returns the suite's tests as resolved items.
func (s *Suite) Items() []Item {
	items := make([]Item, 0, len(s.Cfg.Tests))
	for _, t := range s.Cfg.Tests {
		file := t.File
		if file == "" {
			file = t.Name + ".py"
		}
		items = append(items, Item{
			Suite:  s.Name,
			File:   file,
			Name:   t.Name,
			Kind:   s.Cfg.Type,
			Params: t.Params,
		})
	}
	return items
}

// ResolveTest resolves a node path plus run configuration into a concrete
// test descriptor for the given mode. The suite is the first path element.
func (r *Registry) ResolveTest(nodePath, mode string, poolSize int) (*Descriptor, error) {
	suiteName, rest, ok := strings.Cut(filepath.ToSlash(nodePath), "/")
	if !ok || rest == "" {
		return nil, fmt.Errorf("node path %q does not name a suite", nodePath)
	}
	s, err := r.LoadSuite(suiteName)
	if err != nil {
		return nil, err
	}
	if poolSize == 0 {
		poolSize = s.Cfg.PoolSize
	}
	return &Descriptor{
		Suite:    s,
		Path:     rest,
		Mode:     mode,
		PoolSize: poolSize,
	}, nil
}
