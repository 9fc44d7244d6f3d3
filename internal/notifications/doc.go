// Package notifications announces finished analysis runs via ntfy.
//
// The ntfy topic comes from the [notifications] config section; with no
// topic configured NewService returns a no-op. Observer adapts a Service to
// the pipeline so outcomes are published as runs finish.
package notifications
