// Package errors provides the error taxonomy shared by the scrapers and the
// ingestion pipeline. All failures that cross a package boundary are either
// an *AppError carrying a stable code, or an *ExtractionError preserving the
// partial-result count of an aborted row sequence.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code (for the run API), and an
// optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an
// internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// HasCode reports whether err is (or wraps) an *AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// Scraper errors.
var (
	// ErrAuthFailed means the portal rejected the credentials, or an
	// operation was attempted on a session that never authenticated.
	// Fatal for the run, never retried.
	ErrAuthFailed = &AppError{Code: "AUTH_FAILED", Message: "Portal rejected the credentials", StatusCode: http.StatusUnauthorized}

	// ErrPortalUnavailable covers navigation and timeout failures that are
	// distinguishable from credential failure. Retried with backoff first.
	ErrPortalUnavailable = &AppError{Code: "PORTAL_UNAVAILABLE", Message: "Portal did not respond in time", StatusCode: http.StatusBadGateway}

	// ErrUnexpectedLayout means an element the integration depends on is
	// absent from a page that otherwise loaded. The portal changed shape;
	// the integration itself needs updating. Never swallowed.
	ErrUnexpectedLayout = &AppError{Code: "UNEXPECTED_LAYOUT", Message: "Portal page is missing an expected element", StatusCode: http.StatusBadGateway}

	// ErrChallengePending means the session is suspended on an MFA
	// challenge that has not been resolved yet.
	ErrChallengePending = &AppError{Code: "CHALLENGE_PENDING", Message: "Login is waiting for a challenge response", StatusCode: http.StatusConflict}
)

// Pipeline errors.
var (
	// ErrMalformedRow means a scraped or imported row could not be parsed
	// into a transaction. Row-level; the caller decides skip-and-log
	// (the default) versus abort.
	ErrMalformedRow = &AppError{Code: "MALFORMED_ROW", Message: "Row could not be parsed into a transaction", StatusCode: http.StatusUnprocessableEntity}

	// ErrStoreWrite is a per-item ingestion failure. Recorded in the run
	// report; never aborts the rest of the batch.
	ErrStoreWrite = &AppError{Code: "STORE_WRITE", Message: "Failed to write transaction to the ledger", StatusCode: http.StatusInternalServerError}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// ExtractionError terminates a row sequence after repeated row failures.
// RowsYielded counts the rows already produced; callers must treat those
// partial results as valid and resume by re-running with an adjusted
// from-date.
type ExtractionError struct {
	RowsYielded int
	Internal    error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction aborted after %d rows: %v", e.RowsYielded, e.Internal)
}

// Unwrap returns the underlying row failure.
func (e *ExtractionError) Unwrap() error { return e.Internal }
