// Package textutil cleans client-supplied names before they are stored,
// logged, or used in temp file patterns.
package textutil
