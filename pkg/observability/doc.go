/*
Package observability provides Prometheus metrics for the capture service.

Metrics attach to the ingestion service through domain.CaptureHooks, so the
core never imports the metrics library directly. Hooks can be chained with
other observers (for example debug logging) using Chain.
*/
package observability
