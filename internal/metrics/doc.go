// Package metrics exposes Prometheus collectors for pipeline runs and the
// HTTP surface.
package metrics
