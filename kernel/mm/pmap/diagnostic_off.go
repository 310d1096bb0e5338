//go:build !diagnostic
// +build !diagnostic

package pmap

// diagnostic enables consistency checks on the mapping structures. Build
// with the diagnostic tag to turn them on.
const diagnostic = false
