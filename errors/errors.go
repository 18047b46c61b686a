// Package errors provides error handling for docsieve.
//
// It re-exports github.com/cockroachdb/errors (stack traces, wrapping,
// sentinel comparison via Is) and defines the sentinel errors shared by
// the backend adapters, the retry policy, and the pipeline.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
)

// Error inspection
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Sentinel errors. Wrap these with errors.Wrap to add context while
// preserving comparability through errors.Is.
var (
	// ErrTimeout indicates a remote call timed out.
	ErrTimeout = New("operation timed out")

	// ErrRateLimited indicates the remote service asked us to slow down.
	ErrRateLimited = New("rate limited")

	// ErrServerError indicates a server-side (5xx-equivalent) failure.
	ErrServerError = New("server error")

	// ErrUnavailable indicates the remote service could not be reached.
	ErrUnavailable = New("service unavailable")

	// ErrMissingCredentials indicates a backend was constructed without
	// the credentials it requires. Fatal, never retried.
	ErrMissingCredentials = New("missing credentials")

	// ErrScriptExit indicates an external backend script exited non-zero.
	// Treated as permanent: script failures are assumed deterministic for
	// a given input.
	ErrScriptExit = New("script exited with non-zero status")

	// ErrCancelled marks a document cancelled by the cancel sentinel.
	// Not a failure; the document simply produces no output.
	ErrCancelled = New("document cancelled")
)

// IsTransient reports whether err belongs to the retryable taxonomy:
// connection failures, timeouts, rate limiting, and server-side errors.
// Everything else is permanent and must not be retried.
func IsTransient(err error) bool {
	return IsAny(err, ErrTimeout, ErrRateLimited, ErrServerError, ErrUnavailable)
}
