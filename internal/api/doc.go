// Package api hosts the operator HTTP surface that runs alongside an ingest
// or transform command:
//   - GET /healthz answers as long as the process is up.
//   - GET /readyz runs the configured readiness probe, normally a listing of
//     the raw zone, and reports 503 when it fails.
//   - GET /metrics serves the Prometheus registry.
//   - GET /runs and GET /runs/{run_id} read the run history, when one is
//     configured.
package api
