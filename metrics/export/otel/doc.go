// Package otel binds inkauth engine metrics to an OpenTelemetry Meter.
//
// Every counter becomes an Int64ObservableCounter and every cumulative
// latency bucket an Int64ObservableGauge; a single callback reads the
// engine snapshot on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
