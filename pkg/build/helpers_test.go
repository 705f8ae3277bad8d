package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/pallet/pkg/action"
	"github.com/openfroyo/pallet/pkg/config"
	"github.com/openfroyo/pallet/pkg/ledger"
	"github.com/openfroyo/pallet/pkg/lock"
)

// project declares a test project: kind -> dependency names.
type project map[string][]string

// fakeCatalog serves specs for projects living in temporary directories.
type fakeCatalog struct {
	specs map[string]*config.ProjectSpec
	errs  map[string]error

	mu      sync.Mutex
	lookups map[string]int
}

func (c *fakeCatalog) Lookup(name string) (*config.ProjectSpec, error) {
	c.mu.Lock()
	c.lookups[name]++
	c.mu.Unlock()

	if err, ok := c.errs[name]; ok {
		return nil, err
	}
	spec, ok := c.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not mapped in the build manifest", config.ErrProjectNotFound, name)
	}
	return spec, nil
}

// newTestCatalog creates one directory per project under a temporary root.
func newTestCatalog(t *testing.T, projects map[string]project) (*fakeCatalog, *config.BuildConfig) {
	t.Helper()

	root := t.TempDir()
	cfg := &config.BuildConfig{
		Root:     root,
		Prefix:   "/opt/stack",
		Host:     "x86_64-linux",
		Projects: make(map[string]string),
	}

	catalog := &fakeCatalog{
		specs:   make(map[string]*config.ProjectSpec),
		errs:    make(map[string]error),
		lookups: make(map[string]int),
	}
	for name, deps := range projects {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create project dir: %v", err)
		}
		cfg.Projects[name] = name
		catalog.specs[name] = &config.ProjectSpec{
			Name:   name,
			Root:   dir,
			Config: &config.ProjectConfig{Name: name, Dependencies: deps},
			Script: filepath.Join(dir, "build.sh"),
		}
	}
	return catalog, cfg
}

// lookupCount returns how often name was looked up.
func (c *fakeCatalog) lookupCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups[name]
}

// invocation is one recorded call of the fake runner.
type invocation struct {
	project string
	env     config.Environment
	start   time.Time
	end     time.Time
}

// fakeRunner records invocations. Behavior per project is configurable.
type fakeRunner struct {
	mu          sync.Mutex
	invocations []invocation
	active      map[string]int
	overlap     bool

	// exitCodes makes a project's action exit non-zero.
	exitCodes map[string]int
	// errs makes a project's action fail to start.
	errs map[string]error
	// delay is how long every action runs.
	delay time.Duration
	// before runs at the start of an action, outside the runner's mutex.
	before func(project string)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		active:    make(map[string]int),
		exitCodes: make(map[string]int),
		errs:      make(map[string]error),
	}
}

func (r *fakeRunner) Run(ctx context.Context, desc action.Descriptor, workDir string, env []string) (action.Outcome, error) {
	start := time.Now()

	r.mu.Lock()
	r.active[desc.Project]++
	if r.active[desc.Project] > 1 {
		r.overlap = true
	}
	before := r.before
	r.mu.Unlock()

	if before != nil {
		before(desc.Project)
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[desc.Project]--
	r.invocations = append(r.invocations, invocation{
		project: desc.Project,
		env:     config.ParseEnvironment(env),
		start:   start,
		end:     time.Now(),
	})

	if err, ok := r.errs[desc.Project]; ok {
		return action.Outcome{}, err
	}
	return action.Outcome{ExitCode: r.exitCodes[desc.Project], Duration: time.Since(start)}, nil
}

// count returns how often project's action ran.
func (r *fakeRunner) count(project string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, inv := range r.invocations {
		if inv.project == project {
			n++
		}
	}
	return n
}

// order returns the projects in the order their actions finished.
func (r *fakeRunner) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.invocations))
	for _, inv := range r.invocations {
		out = append(out, inv.project)
	}
	return out
}

func (r *fakeRunner) find(project string) (invocation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, inv := range r.invocations {
		if inv.project == project {
			return inv, true
		}
	}
	return invocation{}, false
}

// newTestBuild wires a Build with a fake runner, an in-memory ledger and a
// fast-polling locker.
func newTestBuild(t *testing.T, catalog Catalog, cfg *config.BuildConfig, l ledger.Ledger, runner action.Runner) *Build {
	t.Helper()

	b, err := NewWithConfig(cfg, catalog,
		WithLedger(l),
		WithRunner(runner),
		WithLocker(lock.NewLocker(zerolog.Nop(), 10*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("failed to create build: %v", err)
	}
	return b
}

// satisfied reports whether the ledger records key.
func satisfied(t *testing.T, l ledger.Ledger, key ledger.Key) bool {
	t.Helper()

	ok, err := l.Satisfied(context.Background(), key)
	if err != nil {
		t.Fatalf("failed to query ledger: %v", err)
	}
	return ok
}

func sorted(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
