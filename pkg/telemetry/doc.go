// Package telemetry provides observability instrumentation for openmerge.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) into a single bundle the CLI
// initializes at startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// The merge engine itself stays free of telemetry; spans and counters
// wrap it from the outside.
package telemetry
