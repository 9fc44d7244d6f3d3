// Package daemon runs the trafficlens HTTP server as a single instance.
//
// Start takes an exclusive flock on <data_dir>/trafficlens.lock, marks runs
// orphaned by an earlier process as failed, and serves the API router with
// fixed read/idle timeouts. The write timeout scales with the configured
// model timeout so long analyses are not cut off mid-response.
package daemon
