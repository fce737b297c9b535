// Package metrics collects filter proxy metrics.
//
// Proxies emit events on a buffered channel without blocking; a background
// collector turns them into:
//   - Lookup and Init counts per filter
//   - Forwarded request counts and DoFilter durations (P50, P95, P99)
//   - Failure counts per filter and reason
//
// The same data is exposed as Prometheus series and as a JSON snapshot.
package metrics
