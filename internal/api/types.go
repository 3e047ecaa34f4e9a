// Package api defines shared types and response helpers for the HTTP adapter.
package api

// Error codes returned by the HTTP adapter.
const (
	ErrorValidation  = "validation_error"
	ErrorNotFound    = "not_found"
	ErrorUnavailable = "history_unavailable"
)

// Interface names advertised in status responses.
const (
	InterfaceStatusable = "statusable"
	InterfaceRunnable   = "runnable"
	InterfaceObservable = "observable"
)
