package build

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/pallet/pkg/action"
	"github.com/openfroyo/pallet/pkg/config"
	"github.com/openfroyo/pallet/pkg/ledger"
	"github.com/openfroyo/pallet/pkg/lock"
	"github.com/openfroyo/pallet/pkg/telemetry"
)

// Catalog resolves project names. *config.Workspace is the file-backed
// implementation.
type Catalog interface {
	Lookup(name string) (*config.ProjectSpec, error)
}

// Build orchestrates builds for one build root.
type Build struct {
	config  *config.BuildConfig
	catalog Catalog
	ledger  ledger.Ledger
	runner  action.Runner
	locker  *lock.Locker
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	// ownsLedger is set when New opened the ledger; Close closes it.
	ownsLedger bool
}

type buildOptions struct {
	Ledger       ledger.Ledger
	Runner       action.Runner
	Locker       *lock.Locker
	PollInterval time.Duration
	Logger       zerolog.Logger
	Metrics      *telemetry.Metrics
	Tracer       *telemetry.Tracer
}

// Option configures a Build.
type Option func(*buildOptions) error

// WithLedger sets the ledger. New opens the build root's SQLite ledger when
// none is given; NewWithConfig falls back to an in-memory ledger.
func WithLedger(l ledger.Ledger) Option {
	return func(opts *buildOptions) error {
		if l == nil {
			return errors.New("ledger must not be nil")
		}
		opts.Ledger = l
		return nil
	}
}

// WithRunner sets the build action runner. The default runs scripts with
// /bin/sh, streaming their output to the process's stdout and stderr.
func WithRunner(r action.Runner) Option {
	return func(opts *buildOptions) error {
		if r == nil {
			return errors.New("runner must not be nil")
		}
		opts.Runner = r
		return nil
	}
}

// WithLocker sets the project locker.
func WithLocker(l *lock.Locker) Option {
	return func(opts *buildOptions) error {
		opts.Locker = l
		return nil
	}
}

// WithPollInterval sets the lock poll interval of the default locker.
func WithPollInterval(d time.Duration) Option {
	return func(opts *buildOptions) error {
		if d < 0 {
			return errors.New("poll interval must not be negative")
		}
		opts.PollInterval = d
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(opts *buildOptions) error {
		opts.Logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(opts *buildOptions) error {
		opts.Metrics = m
		return nil
	}
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(opts *buildOptions) error {
		opts.Tracer = t
		return nil
	}
}

func applyOptions(opts []Option) (*buildOptions, error) {
	o := &buildOptions{Logger: zerolog.Nop()}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, NewInvalidArgumentError(err.Error())
		}
	}
	return o, nil
}

// New loads the build manifest at root and opens the ledger stored under the
// build root's state directory.
func New(ctx context.Context, root string, opts ...Option) (*Build, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadBuildConfig(root)
	if err != nil {
		return nil, NewConfigError("", "failed to load build manifest", err)
	}

	owns := false
	if o.Ledger == nil {
		l, err := ledger.Open(ctx, cfg.LedgerPath())
		if err != nil {
			return nil, NewLedgerError("", "failed to open ledger", err)
		}
		o.Ledger = l
		owns = true
	}

	b := newBuild(cfg, config.NewWorkspace(cfg, o.Logger), o)
	b.ownsLedger = owns
	return b, nil
}

// NewWithConfig creates a Build from an already loaded configuration and a
// catalog.
func NewWithConfig(cfg *config.BuildConfig, catalog Catalog, opts ...Option) (*Build, error) {
	if cfg == nil {
		return nil, NewInvalidArgumentError("build configuration is required")
	}
	if catalog == nil {
		return nil, NewInvalidArgumentError("catalog is required")
	}

	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	if o.Ledger == nil {
		o.Ledger = ledger.NewMemoryLedger()
	}

	return newBuild(cfg, catalog, o), nil
}

func newBuild(cfg *config.BuildConfig, catalog Catalog, o *buildOptions) *Build {
	logger := o.Logger.With().Str("component", "build").Logger()

	runner := o.Runner
	if runner == nil {
		runner = action.NewShellRunner(os.Stdout, os.Stderr)
	}

	locker := o.Locker
	if locker == nil {
		locker = lock.NewLocker(o.Logger, o.PollInterval)
	}

	metrics := o.Metrics
	if metrics == nil {
		// A disabled collector; every recorder is a no-op
		metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}

	tracer := o.Tracer
	if tracer == nil {
		tracer, _ = telemetry.NewTracer(telemetry.TracingConfig{}, "pallet", "")
	}

	return &Build{
		config:  cfg,
		catalog: catalog,
		ledger:  o.Ledger,
		runner:  runner,
		locker:  locker,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}
}

// Config returns the build configuration.
func (b *Build) Config() *config.BuildConfig {
	return b.config
}

// Ledger returns the ledger.
func (b *Build) Ledger() ledger.Ledger {
	return b.ledger
}

// Close releases the ledger if New opened it.
func (b *Build) Close() error {
	if b.ownsLedger {
		return b.ledger.Close()
	}
	return nil
}

// Build builds name after its dependencies. A project recorded in the ledger
// is not built again. Each call is a run with its own ID, stored on every
// ledger entry the run writes.
func (b *Build) Build(ctx context.Context, name string) error {
	if name == "" {
		return NewInvalidArgumentError("project name is required")
	}

	runID := uuid.NewString()
	logger := b.logger.With().Str("run_id", runID).Logger()

	ctx, span := b.tracer.StartRunSpan(ctx, runID, name)
	defer span.End()

	logger.Info().Str("project", name).Msg("Starting build")
	timer := telemetry.NewTimer()

	r := newResolution(b, runID, logger)
	err := r.build(ctx, name, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.Error().Err(err).Str("project", name).Dur("duration", timer.Duration()).Msg("Build failed")
		return err
	}

	telemetry.RecordSuccess(span)
	logger.Info().Str("project", name).Dur("duration", timer.Duration()).Msg("Build finished")
	return nil
}

// lookup resolves name through the catalog.
func (b *Build) lookup(name string) (*config.ProjectSpec, error) {
	spec, err := b.catalog.Lookup(name)
	if err != nil {
		return nil, classifyLookupError(name, err)
	}
	return spec, nil
}

// classifyLookupError maps catalog errors onto build error kinds.
func classifyLookupError(name string, err error) error {
	if errors.Is(err, config.ErrProjectNotFound) {
		return NewProjectNotFoundError(name, err)
	}
	return NewConfigError(name, "invalid project configuration", err)
}
