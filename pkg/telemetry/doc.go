// Package telemetry provides state.Observer implementations that export
// Set activity to Prometheus and OpenTelemetry.
//
//	metrics := telemetry.NewMetrics(telemetry.WithNamespace("configurator"))
//	tracer := telemetry.NewTracer()
//	m := state.New(state.WithObserver(metrics), state.WithObserver(tracer))
//
//	http.Handle("/metrics", promhttp.Handler())
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracer is given. Configure the provider in main() before creating
// stores.
package telemetry
