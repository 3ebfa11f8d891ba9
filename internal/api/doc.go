// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/analyses to analyze a competitor domain, and GET /v1/analyses
//     plus /v1/analyses/{id} to read the caller's records.
//   - POST /v1/sentiment and GET /v1/sentiment/{snapshot_id} for keyword
//     sentiment collections, when a dataset provider is configured.
package api
