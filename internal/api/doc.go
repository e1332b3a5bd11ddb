// Package api hosts the operator HTTP server. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the state of the current or last ingestion run.
//   - POST /v1/runs to start a run out of schedule.
package api
