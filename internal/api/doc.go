// Package api hosts the optional status server that runs alongside a harvest.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the live counters of the current run.
//   - GET /v1/runs and /v1/runs/{run_id} for run history, when a
//     RunRepository is configured.
package api
