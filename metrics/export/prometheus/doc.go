// Package prometheus renders authcore metrics in the Prometheus text
// exposition format.
//
// [New] accepts anything that can produce an [authcore.MetricsSnapshot],
// normally the *authcore.Engine, and [Exporter.Handler] serves the result.
// Counter names are prefixed authcore_ and end in _total; the single
// histogram is authcore_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
