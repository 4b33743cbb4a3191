// Package observe provides the telemetry primitives of the service:
// OpenTelemetry tracing and metrics, a JSON structured logger, and a
// middleware that instruments individual operations (task service calls,
// key fetches) with all three.
//
// Exporters are selected by name; the Prometheus exporter feeds a private
// registry that Observer.MetricsHandler serves.
package observe
