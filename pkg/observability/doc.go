/*
Package observability binds the engine's lifecycle hooks to Prometheus metrics
and structured logs, and bootstraps OpenTelemetry tracing.

The orchestrator already opens a span per turn and per backend call through
the global tracer provider; InitTracer points that provider at an OTLP
collector.
*/
package observability
