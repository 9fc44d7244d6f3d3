// Package testsupport holds helpers shared by package tests: isolated configs,
// stub binaries, and a ready run store.
package testsupport
