// Package prometheus provides Prometheus collectors for authcore metrics.
//
// [NewPrometheusExporter] accepts an [authcore.Engine] and exposes an
// [http.Handler] that renders all engine counters and histograms in
// Prometheus text exposition format. Counter names are prefixed
// authcore_*_total; the single histogram is authcore_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
