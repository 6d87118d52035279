// Package otel publishes authcore counters and the authenticate latency
// histogram through OpenTelemetry asynchronous instruments.
//
// [New] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads the
// engine snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
