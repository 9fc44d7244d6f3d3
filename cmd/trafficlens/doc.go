// Package main hosts the trafficlens CLI entrypoint and command graph.
//
// The Cobra command tree runs one-shot analyses against local video files,
// hosts the HTTP API server, inspects run history, and scaffolds
// configuration. Wiring lives in internal/daemonrun so commands stay thin.
package main
