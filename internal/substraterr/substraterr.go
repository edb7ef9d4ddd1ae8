// Package substraterr implements the single error shape every core
// operation returns: a stable machine-readable Code plus a status-class
// mapping the HTTP adapter uses to translate it.
package substraterr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the one domain error type. No core operation panics or uses
// exceptions-as-control-flow; every fallible call returns (*T, error) and,
// on failure, error wraps an *Error.
type Error struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs an *Error with no details.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Withf constructs an *Error with a formatted message.
func Withf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches details and returns the same *Error for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Is lets errors.Is(err, substraterr.New(code, "")) compare by Code alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus maps Code to its status class. Unknown codes default to
// 500; the taxonomy's fallback is "this was not meant to reach the
// boundary uncoded."
func (e *Error) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeOf extracts Code from err if it wraps an *Error, "" otherwise.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var statusByCode = map[string]int{
	// Validation: rejected before any state change.
	"VALIDATION_REQUIRED":         http.StatusBadRequest,
	"VALIDATION_INVALID":          http.StatusBadRequest,
	"CANONICAL_HASH_MISMATCH":     http.StatusBadRequest,
	"ENVELOPE_HASH_MISMATCH":      http.StatusBadRequest,

	// Idempotency.
	"IDEMPOTENCY_KEY_CONFLICT": http.StatusConflict,

	// Authority-grant.
	"X402_AUTHORITY_GRANT_REVOKED":            http.StatusConflict,
	"X402_AUTHORITY_GRANT_EXPIRED":            http.StatusConflict,
	"X402_AUTHORITY_GRANT_NOT_ACTIVE":         http.StatusConflict,
	"X402_AUTHORITY_GRANT_PER_CALL_EXCEEDED":  http.StatusConflict,
	"X402_AUTHORITY_GRANT_TOTAL_EXCEEDED":     http.StatusConflict,
	"X402_AUTHORITY_GRANT_ACTOR_MISMATCH":     http.StatusConflict,
	"X402_AUTHORITY_GRANT_SCOPE_DENIED":       http.StatusConflict,
	"X402_INSUFFICIENT_BALANCE":               http.StatusConflict,

	// Agent lifecycle.
	"X402_AGENT_SUSPENDED": http.StatusGone,
	"X402_AGENT_THROTTLED": http.StatusTooManyRequests,

	// Gate state machine.
	"X402_GATE_NOT_FOUND":          http.StatusNotFound,
	"X402_GATE_INVALID_TRANSITION": http.StatusConflict,

	// Dispute lifecycle.
	"DISPUTE_ALREADY_OPEN":                           http.StatusConflict,
	"DISPUTE_WINDOW_EXPIRED":                         http.StatusConflict,
	"DISPUTE_INVALID_SIGNER":                         http.StatusConflict,
	"DISPUTE_HOLD_NOT_FOUND":                         http.StatusNotFound,
	"DISPUTE_HOLD_NOT_HELD":                          http.StatusConflict,
	"DISPUTE_CASE_NOT_FOUND":                         http.StatusNotFound,
	"DISPUTE_CASE_NOT_UNDER_REVIEW":                  http.StatusConflict,
	"DISPUTE_ARBITER_MISMATCH":                       http.StatusConflict,
	"DISPUTE_ARBITER_NOT_ACTIVE":                     http.StatusConflict,
	"X402_TOOL_CALL_BINDING_SOURCE_REQUIRED":         http.StatusConflict,
	"X402_TOOL_CALL_OPEN_BINDING_EVIDENCE_REQUIRED":  http.StatusConflict,
	"X402_TOOL_CALL_OPEN_BINDING_EVIDENCE_MISMATCH":  http.StatusConflict,
	"X402_TOOL_CALL_VERDICT_BINDING_EVIDENCE_MISMATCH": http.StatusConflict,
	"RELEASE_RATE_OUT_OF_RANGE":                      http.StatusBadRequest,

	// Maintenance.
	"MAINTENANCE_ALREADY_RUNNING": http.StatusConflict,

	// Signer-key.
	"SIGNER_KEY_REVOKED":    http.StatusConflict,
	"SIGNER_KEY_NOT_ACTIVE": http.StatusConflict,
	"SIGNER_KEY_NOT_FOUND":  http.StatusNotFound,

	// Integrity.
	"BUNDLE_VERIFICATION_FAILED": http.StatusUnprocessableEntity,

	// Not found / conflict fallbacks used across packages.
	"AGENT_NOT_FOUND":  http.StatusNotFound,
	"WALLET_NOT_FOUND": http.StatusNotFound,
	"GRANT_NOT_FOUND":  http.StatusNotFound,
}
