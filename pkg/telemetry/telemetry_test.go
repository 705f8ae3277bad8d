package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
			},
			wantErr: true,
		},
		{
			name: "unknown exporter",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: true,
		},
		{name: "bad sampling rate", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "json"})

	logger.Info().Msg("hidden")
	logger.Warn().Str("project", "zlib").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected info message to be filtered, got %s", out)
	}
	if !strings.Contains(out, `"project":"zlib"`) || !strings.Contains(out, "shown") {
		t.Errorf("expected warn message with fields, got %s", out)
	}
}

func TestNewLoggerToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pallet.log")

	logger, closer, err := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info().Msg("written to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("failed to close log file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("expected log line in file, got %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Error("expected debug level")
	}
	if ParseLevel("nonsense") != zerolog.InfoLevel {
		t.Error("expected unknown levels to default to info")
	}
}

func TestMetricsTextfile(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.RecordBuild(ResultBuilt, 2*time.Second)
	m.RecordBuild(ResultFailed, time.Second)
	m.ActionStarted()
	m.ActionFinished("success", time.Second)
	m.RecordLockWait(true, 500*time.Millisecond)
	m.RecordLedgerMark("requirement")

	path := filepath.Join(t.TempDir(), "metrics", "pallet.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("failed to write metrics: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	for _, want := range []string{
		`pallet_builds_total{result="built"} 1`,
		`pallet_builds_total{result="failed"} 1`,
		`pallet_actions_total{outcome="success"} 1`,
		`pallet_active_actions 0`,
		`pallet_lock_waits_total 1`,
		`pallet_ledger_marks_total{category="requirement"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %q in metrics output:\n%s", want, data)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	// All recorders are no-ops
	m.RecordBuild(ResultBuilt, time.Second)
	m.ActionStarted()
	m.ActionFinished("success", time.Second)
	m.RecordLockWait(false, 0)
	m.RecordLedgerMark("requirement")

	path := filepath.Join(t.TempDir(), "pallet.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no metrics file when metrics are disabled")
	}

	var nilMetrics *Metrics
	nilMetrics.RecordBuild(ResultBuilt, time.Second)
}

func TestTracerSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracer := NewTracerFromProvider(provider, "pallet-test")

	ctx, run := tracer.StartRunSpan(context.Background(), "run-1", "app")
	if TraceID(ctx) == "" {
		t.Error("expected a trace ID in the run context")
	}
	_, project := tracer.StartProjectSpan(ctx, "zlib", []string{"app", "zlib"})
	RecordSuccess(project)
	project.End()
	RecordError(run, os.ErrNotExist)
	run.End()

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Fatalf("failed to shut down tracer: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "build.project" || spans[1].Name != "build.run" {
		t.Errorf("unexpected span names: %s, %s", spans[0].Name, spans[1].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("expected project span to be a child of the run span")
	}
}

func TestTracerDisabled(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{Enabled: false}, "pallet", "dev")
	if err != nil {
		t.Fatalf("failed to create tracer: %v", err)
	}
	_, span := tracer.StartActionSpan(context.Background(), "zlib", "build.sh")
	span.End()
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("expected shutdown of disabled tracer to succeed, got %v", err)
	}
}
