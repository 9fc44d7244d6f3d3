// Package deps checks that the external binaries used for frame sampling are
// installed.
package deps
