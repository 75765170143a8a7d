// Package handlers defines HTTP-layer error codes used across the admin
// API. Codes are lowercase snake_case, stable, and machine-readable;
// handlers pass the most specific one to fail() together with the HTTP
// status and a human-readable message.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeValidation       = "validation_failed"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
