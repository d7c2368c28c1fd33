// Package api exposes the crawler's ops endpoints: liveness, readiness,
// Prometheus metrics and a read-only view of the current run.
package api
