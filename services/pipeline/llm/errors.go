// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "errors"

// Sentinel errors for generative calls. Retryability drives the
// derive package's backoff loop: rate limits, timeouts, and server
// errors retry; invalid requests and empty completions do not.
var (
	// ErrRateLimited indicates the backend rejected the call for rate
	// limiting. Retryable.
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrTimeout indicates the call exceeded its deadline. Retryable.
	ErrTimeout = errors.New("llm: request timed out")

	// ErrServerError indicates a 5xx-class backend failure. Retryable.
	ErrServerError = errors.New("llm: server error")

	// ErrInvalidRequest indicates the request itself was rejected.
	// Not retryable.
	ErrInvalidRequest = errors.New("llm: invalid request")

	// ErrEmptyCompletion indicates the backend returned no content.
	// Not retryable; the caller decides whether to re-prompt.
	ErrEmptyCompletion = errors.New("llm: empty completion")
)

// IsRetryable reports whether an error should trigger another attempt.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrServerError):
		return true
	default:
		return false
	}
}
