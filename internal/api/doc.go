// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz, /readyz, and /api/health for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/upload and /api/files/... for staging audio files.
//   - POST /api/notebook/create to run notebook creation, with
//     GET /api/notebook/progress/{progressId} for polling it.
//   - /api/notebooks/... for saved notebooks and their note cards.
package api
