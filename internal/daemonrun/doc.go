// Package daemonrun assembles the trafficlens runtime from configuration.
//
// Build wires the run store, metrics, Gemini adapter, orchestrator, and API
// service so the server and the one-shot CLI share one graph. Run hosts the
// API server until a signal arrives.
package daemonrun
