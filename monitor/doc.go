// Package monitor exposes the runtime state of pipeline stages over HTTP.
//
// Stages are added to a Registry, and Register mounts read-only gin handlers
// on any router:
//
//	GET /stages      stats of every registered stage
//	GET /stages/:id  stats of one stage
//	GET /health      aggregated health, 503 when a stage failed on its own
//
// Server wraps a gin engine with the monitor routes for processes that do
// not already run an HTTP server.
package monitor
