package telemetry_test

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/openfroyo/pallet/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "stdout"
	cfg.Logging.Format = "json"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Logger.Info().Str("project", "zlib").Msg("Building project")

	// Output varies (timestamps), no output specified
}

// Example_structuredLogging shows the console-free JSON logger.
func Example_structuredLogging() {
	logger := telemetry.NewLoggerTo(os.Stdout, telemetry.LoggingConfig{
		Level:  "debug",
		Format: "json",
	})
	logger = logger.With().Str("component", "build").Logger()

	logger.Debug().Str("project", "zlib").Msg("Building project")

	// Output varies (timestamps), no output specified
}

// Example_metricsCollection demonstrates recording build metrics.
func Example_metricsCollection() {
	metrics, err := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	if err != nil {
		panic(err)
	}

	metrics.RecordBuild(telemetry.ResultBuilt, 3*time.Second)
	metrics.RecordBuild(telemetry.ResultSkipped, 0)
	metrics.RecordLedgerMark("requirement")

	families, err := metrics.Registry().Gather()
	if err != nil {
		panic(err)
	}
	for _, family := range families {
		if family.GetName() == "pallet_builds_total" {
			fmt.Println(family.GetName(), len(family.GetMetric()))
		}
	}

	// Output:
	// pallet_builds_total 2
}
