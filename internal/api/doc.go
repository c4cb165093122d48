// Package api hosts the ops HTTP server for the harvester. Notable routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /progress and /progress/{run_id} for per-run counters.
package api
