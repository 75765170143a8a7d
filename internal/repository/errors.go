// Package repository – repository-level error values.
//
// These are the errors the façade lets through to UI-facing callers.
// Connectivity failures never appear here: they are absorbed into the
// offline path. Only data-integrity failures propagate.
package repository

import "errors"

// ErrNotFound indicates the requested entity is neither known to the
// server nor present in the local cache. Offline reads can only serve
// previously cached entities; they cannot synthesize data that was never
// fetched.
var ErrNotFound = errors.New("record not found")
