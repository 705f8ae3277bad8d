package build

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/pallet/pkg/ledger"
	"github.com/openfroyo/pallet/pkg/telemetry"
)

// call is one project's build within a resolution. Branches reaching a
// project that is already being built join its call instead of building it
// again.
type call struct {
	done     chan struct{}
	err      error
	finished bool
}

// resolution is the state of one top-level Build call.
type resolution struct {
	owner  *Build
	runID  string
	logger zerolog.Logger

	mu    sync.Mutex
	calls map[string]*call
	// waits holds, for every project still resolving its dependencies, the
	// dependencies it has requested. A join that closes a loop in this
	// graph is a cycle that spans branches.
	waits map[string]map[string]bool
}

func newResolution(b *Build, runID string, logger zerolog.Logger) *resolution {
	return &resolution{
		owner:  b,
		runID:  runID,
		logger: logger,
		calls:  make(map[string]*call),
		waits:  make(map[string]map[string]bool),
	}
}

// build builds name, reached through chain (root first, name's dependent
// last). Within one resolution each project is built by a single branch;
// the others wait for its result.
func (r *resolution) build(ctx context.Context, name string, chain []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if cycle := cycleThrough(chain, name); cycle != nil {
		return r.circular(cycle)
	}

	c, owned, cycle := r.join(name, chain)
	if cycle != nil {
		return r.circular(cycle)
	}
	if !owned {
		select {
		case <-c.done:
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := r.run(ctx, name, chain)
	r.finish(name, c, err)
	return err
}

// run performs the ledger check and the project build for the branch that
// owns name's call.
func (r *resolution) run(ctx context.Context, name string, chain []string) error {
	key := ledger.Requirement(name)
	satisfied, err := r.owner.ledger.Satisfied(ctx, key)
	if err != nil {
		return NewLedgerError(name, "failed to read ledger", err)
	}
	if satisfied {
		r.logger.Debug().Str("project", name).Msg("Project already built")
		r.owner.metrics.RecordBuild(telemetry.ResultSkipped, 0)
		return nil
	}

	spec, err := r.owner.lookup(name)
	if err != nil {
		return err
	}

	path := make([]string, len(chain), len(chain)+1)
	copy(path, chain)
	path = append(path, name)

	timer := telemetry.NewTimer()
	project := newProject(r.owner, spec)
	ran, err := project.build(ctx, r, path)

	switch {
	case err != nil:
		r.owner.metrics.RecordBuild(telemetry.ResultFailed, timer.Duration())
	case ran:
		r.owner.metrics.RecordBuild(telemetry.ResultBuilt, timer.Duration())
	default:
		r.owner.metrics.RecordBuild(telemetry.ResultSkipped, timer.Duration())
	}
	return err
}

// join records that chain's last project waits for name and returns name's
// call. owned is true when the caller created the call and must build name.
// When waiting would close a loop of projects waiting on each other, join
// returns that loop prefixed with chain instead.
func (r *resolution) join(name string, chain []string) (c *call, owned bool, cycle []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(chain) > 0 {
		dependent := chain[len(chain)-1]
		if loop := r.waitPath(name, dependent); loop != nil {
			cycle = make([]string, 0, len(chain)+len(loop))
			cycle = append(cycle, chain...)
			return nil, false, append(cycle, loop...)
		}
		if r.waits[dependent] == nil {
			r.waits[dependent] = make(map[string]bool)
		}
		r.waits[dependent][name] = true
	}

	if c, ok := r.calls[name]; ok {
		return c, false, nil
	}
	c = &call{done: make(chan struct{})}
	r.calls[name] = c
	return c, true, nil
}

// waitPath returns a path of waits leading from 'from' to 'to', or nil.
// r.mu must be held.
func (r *resolution) waitPath(from, to string) []string {
	visited := make(map[string]bool)
	var walk func(name string) []string
	walk = func(name string) []string {
		if name == to {
			return []string{name}
		}
		if visited[name] {
			return nil
		}
		visited[name] = true

		deps := make([]string, 0, len(r.waits[name]))
		for dep := range r.waits[name] {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if rest := walk(dep); rest != nil {
				return append([]string{name}, rest...)
			}
		}
		return nil
	}
	return walk(from)
}

func (r *resolution) finish(name string, c *call, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.waits, name)
	c.err = err
	c.finished = true
	close(c.done)
}

func (r *resolution) circular(cycle []string) error {
	r.logger.Error().
		Strs("chain", cycle).
		Strs("resolving", r.snapshot()).
		Msg("Circular dependency detected")
	return NewCircularDependencyError(cycle)
}

// cycleThrough returns chain extended by name when name already occurs in
// chain, or nil. The result runs from the root call to the repeated name.
func cycleThrough(chain []string, name string) []string {
	for _, ancestor := range chain {
		if ancestor == name {
			cycle := make([]string, 0, len(chain)+1)
			cycle = append(cycle, chain...)
			return append(cycle, name)
		}
	}
	return nil
}

// snapshot returns the names being resolved, sorted.
func (r *resolution) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.calls))
	for name, c := range r.calls {
		if !c.finished {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
