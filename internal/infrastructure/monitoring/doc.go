// Package monitoring provides Prometheus metrics for the service.
//
// Metrics cover the HTTP control surface, sandbox lifecycle (starts, stops,
// active count), proxy trap operation counts, UMD snapshot activity, and the
// data-bus/WebSocket stream.
//
// Metrics are exposed at /metrics in Prometheus format and summarized at
// /health for the JSON API. Tests construct collectors against a private
// registry via NewMetricsWith to keep registration idempotent.
package monitoring
