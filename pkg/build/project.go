package build

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/pallet/pkg/action"
	"github.com/openfroyo/pallet/pkg/config"
	"github.com/openfroyo/pallet/pkg/ledger"
	"github.com/openfroyo/pallet/pkg/telemetry"
)

// Project is one buildable unit, constructed when a run first reaches it.
type Project struct {
	spec   *config.ProjectSpec
	owner  *Build
	logger zerolog.Logger
}

func newProject(b *Build, spec *config.ProjectSpec) *Project {
	return &Project{
		spec:   spec,
		owner:  b,
		logger: b.logger.With().Str("project", spec.Name).Logger(),
	}
}

// Name returns the project's mapped name.
func (p *Project) Name() string {
	return p.spec.Name
}

// Root returns the project directory.
func (p *Project) Root() string {
	return p.spec.Root
}

// build resolves the project's dependencies, then runs its action under the
// project lock. It reports whether the action ran; it does not when another
// run recorded the project while this one waited for the lock.
func (p *Project) build(ctx context.Context, r *resolution, chain []string) (bool, error) {
	ctx, span := p.owner.tracer.StartProjectSpan(ctx, p.Name(), chain)
	defer span.End()

	logger := p.logger.With().Str("run_id", r.runID).Logger()

	if err := p.resolveDependencies(ctx, r, chain, logger); err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}

	ran, err := p.runAction(ctx, r, logger)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}

	span.SetAttributes(telemetry.AttrSkipped.Bool(!ran))
	telemetry.RecordSuccess(span)
	return ran, nil
}

// resolveDependencies records precondition groups and builds the ordinary
// group. Ordinary dependencies are built concurrently; the first failure
// cancels the siblings that have not started their action yet, and is
// returned once every sibling has stopped.
func (p *Project) resolveDependencies(ctx context.Context, r *resolution, chain []string, logger zerolog.Logger) error {
	for _, group := range p.spec.Config.Groups() {
		if !group.Ordinary() {
			for _, name := range group.Names {
				key := ledger.Key{Category: group.Kind, Name: name}
				if err := p.owner.ledger.Mark(ctx, ledger.Entry{Key: key, RunID: r.runID}); err != nil {
					return NewLedgerError(p.Name(), fmt.Sprintf("failed to record %s", key), err)
				}
				p.owner.metrics.RecordLedgerMark(group.Kind)
				logger.Debug().Str("category", group.Kind).Str("dependency", name).Msg("Recorded precondition")
			}
			continue
		}

		logger.Debug().Strs("dependencies", group.Names).Msg("Building dependencies")

		g, gctx := errgroup.WithContext(ctx)
		for _, name := range group.Names {
			g.Go(func() error {
				return r.build(gctx, name, chain)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// runAction runs the build action under the project lock and records the
// project on success. The ledger entry is written before the lock is
// released so that a waiter re-checking the ledger always sees it.
func (p *Project) runAction(ctx context.Context, r *resolution, logger zerolog.Logger) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	timer := telemetry.NewTimer()
	handle, err := p.owner.locker.Acquire(ctx, p.Root())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, NewLockError(p.Name(), err)
	}
	p.owner.metrics.RecordLockWait(handle.Waited(), timer.Duration())

	defer func() {
		if rerr := handle.Release(); rerr != nil {
			logger.Warn().Err(rerr).Str("marker", handle.Path()).Msg("Failed to release project lock")
		}
	}()

	key := ledger.Requirement(p.Name())
	satisfied, err := p.owner.ledger.Satisfied(ctx, key)
	if err != nil {
		return false, NewLedgerError(p.Name(), "failed to read ledger", err)
	}
	if satisfied {
		logger.Info().Msg("Project was built while waiting for its lock")
		return false, nil
	}

	env := ComposeEnvironment(p.owner.config, p.spec.Config.Environment)
	desc := action.Descriptor{
		Project: p.Name(),
		Script:  p.spec.Script,
	}

	logger.Info().Str("script", desc.Script).Str("root", p.Root()).Msg("Running build action")

	// A started action is never interrupted
	actionCtx, span := p.owner.tracer.StartActionSpan(context.WithoutCancel(ctx), p.Name(), desc.Script)
	p.owner.metrics.ActionStarted()
	outcome, err := p.owner.runner.Run(actionCtx, desc, p.Root(), env.Strings())
	span.SetAttributes(telemetry.AttrExitCode.Int(outcome.ExitCode))
	span.End()

	if err != nil {
		p.owner.metrics.ActionFinished("error", outcome.Duration)
		logger.Error().Err(err).Msg("Build action could not be run")
		return false, NewActionFailedError(p.Name(), -1, err)
	}
	if !outcome.Success() {
		p.owner.metrics.ActionFinished("failure", outcome.Duration)
		logger.Error().Int("exit_code", outcome.ExitCode).Dur("duration", outcome.Duration).Msg("Build action failed")
		return false, NewActionFailedError(p.Name(), outcome.ExitCode, nil)
	}
	p.owner.metrics.ActionFinished("success", outcome.Duration)

	// The action's effects exist now; record them even if the run was cancelled
	if err := p.owner.ledger.Mark(actionCtx, ledger.Entry{Key: key, RunID: r.runID}); err != nil {
		return false, NewLedgerError(p.Name(), "failed to record build", err)
	}
	p.owner.metrics.RecordLedgerMark(key.Category)

	logger.Info().Dur("duration", outcome.Duration).Msg("Built project")
	return true, nil
}
