// Package errors provides the structured error type reported by flowkit
// stages and composers. Every fatal stage failure and every usage error
// carries a machine-readable code so callers can tell them apart with
// HasCode instead of matching strings.
package errors
