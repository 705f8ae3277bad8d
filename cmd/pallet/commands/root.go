package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pallet/pkg/action"
	"github.com/openfroyo/pallet/pkg/build"
	"github.com/openfroyo/pallet/pkg/config"
	"github.com/openfroyo/pallet/pkg/lock"
	"github.com/openfroyo/pallet/pkg/telemetry"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	root          string
	logLevel      string
	logFormat     string
	logOutput     string
	metricsFile   string
	traceExporter string
	traceEndpoint string
	pollInterval  time.Duration
	jsonOutput    bool
}

// app is the state shared by the subcommands of one invocation.
type app struct {
	opts    globalOptions
	version string
	tel     *telemetry.Telemetry
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	a := &app{version: version}
	rootCmd := newRootCommand(a, version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	if serr := a.shutdown(); serr != nil {
		log.Warn().Err(serr).Msg("Failed to flush telemetry")
	}
	return err
}

func newRootCommand(a *app, version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pallet",
		Short: "pallet - multi-project build orchestrator",
		Long: `pallet builds a stack of interdependent projects from source.

Each project is built at most once per build root: completed builds are
recorded in a ledger under the build root's state directory, so an
interrupted or failed build resumes where it stopped.

Features:
  - Ordinary dependencies built concurrently before their dependents
  - Build-only dependencies recorded without being built
  - Circular dependency detection
  - Per-project lock markers shared by concurrent pallet processes
  - YAML or CUE manifests`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	// Persistent flags available to all commands
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.opts.root, "root", "C", ".", "build root containing pallet.yaml")
	flags.StringVar(&a.opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (trace, debug, info, warn, error)")
	flags.StringVar(&a.opts.logFormat, "log-format", "console", "log format (console, json)")
	flags.StringVar(&a.opts.logOutput, "log-output", "stderr", "log destination (stdout, stderr or a file path)")
	flags.StringVar(&a.opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.StringVar(&a.opts.traceExporter, "trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	flags.StringVar(&a.opts.traceEndpoint, "trace-endpoint", "", "OTLP gRPC endpoint for the otlp exporter")
	flags.DurationVar(&a.opts.pollInterval, "poll-interval", lock.DefaultPollInterval, "interval between checks of a held project lock")
	flags.BoolVar(&a.opts.jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newBuildCommand(a))
	rootCmd.AddCommand(newStatusCommand(a))
	rootCmd.AddCommand(newGraphCommand(a))
	rootCmd.AddCommand(newEnvCommand(a))
	rootCmd.AddCommand(newUnlockCommand(a))

	return rootCmd
}

// setup builds telemetry from the flags and installs the logger globally.
func (a *app) setup() error {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = a.version
	cfg.Logging.Level = a.opts.logLevel
	cfg.Logging.Format = a.opts.logFormat
	cfg.Logging.Output = a.opts.logOutput
	cfg.Tracing.Enabled = a.opts.traceExporter != "none"
	cfg.Tracing.Exporter = a.opts.traceExporter
	cfg.Tracing.Endpoint = a.opts.traceEndpoint
	cfg.Metrics.TextfilePath = a.opts.metricsFile

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return fmt.Errorf("invalid telemetry settings: %w", err)
	}
	a.tel = tel

	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	log.Logger = tel.Logger
	return nil
}

func (a *app) shutdown() error {
	if a.tel == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.tel.Shutdown(ctx)
}

// openBuild opens the build root with the ledger, telemetry and a shell
// runner streaming to the command's output.
func (a *app) openBuild(cmd *cobra.Command) (*build.Build, error) {
	return build.New(cmd.Context(), a.opts.root,
		build.WithLogger(a.tel.Logger),
		build.WithMetrics(a.tel.Metrics),
		build.WithTracer(a.tel.Tracer),
		build.WithPollInterval(a.opts.pollInterval),
		build.WithRunner(action.NewShellRunner(cmd.OutOrStdout(), cmd.ErrOrStderr())),
	)
}

// openWorkspace loads the build manifest without opening the ledger.
func (a *app) openWorkspace() (*config.Workspace, error) {
	cfg, err := config.LoadBuildConfig(a.opts.root)
	if err != nil {
		return nil, err
	}
	return config.NewWorkspace(cfg, a.tel.Logger), nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
