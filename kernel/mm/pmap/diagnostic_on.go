//go:build diagnostic
// +build diagnostic

package pmap

const diagnostic = true
