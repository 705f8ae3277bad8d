// Package telemetry provides observability instrumentation for pallet.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind one configuration.
//
// # Usage
//
// Initialize telemetry at command startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Logging.Level = "debug"
//	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/pallet.prom"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Structured Logging
//
// NewLogger returns a plain zerolog.Logger. Components derive child loggers
// with their own fields:
//
//	logger := tel.Logger.With().Str("component", "build").Logger()
//	logger.Info().Str("project", "zlib").Msg("Building project")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// A top-level build opens a run span; every project build and build action
// opens a child span:
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID, "app")
//	defer span.End()
//
// Supported exporters: otlp (gRPC), stdout, none.
//
// # Metrics
//
// Builds, actions, lock waits and ledger writes are counted:
//
//	tel.Metrics.RecordBuild(telemetry.ResultBuilt, duration)
//	tel.Metrics.RecordLockWait(true, waited)
//	tel.Metrics.RecordLedgerMark("requirement")
//
// A build is a short-lived command, so instead of serving /metrics the
// registry is written to a text file on Shutdown, for node_exporter's
// textfile collector.
package telemetry
