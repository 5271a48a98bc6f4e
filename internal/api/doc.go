// Package api hosts the read-only HTTP interface over stored listings and
// rank histories. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/v1/regions/{region}/snapshots[?date=YYYY-MM-DD] for stored listings.
//   - GET /api/v1/regions/{region}/snapshots/latest for the newest listing.
//   - GET /api/v1/regions/{region}/history/{itemID} for one rank history.
//   - GET /api/v1/tracked[?region=] for the tracked item summary.
//   - GET /api/v1/registry for the tracked-item registry.
package api
