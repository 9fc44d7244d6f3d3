// Package preflight provides readiness checks for the filesystem paths,
// decoder binaries, and remote model that trafficlens depends on.
//
// The server consults these checks for /healthz and the CLI "health" command
// prints them. Checks that reach the network run only when asked for
// explicitly.
package preflight
