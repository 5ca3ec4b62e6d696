// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm abstracts the generative capability consumed by the
// derivation pipeline.
//
// Every pipeline call is scope-bounded: the prompt carries at most one
// section, one Epic, or one Feature. That rule is enforced by the
// callers (summary job and derivation stages); this package only
// provides the transport with rate limiting, timeouts, and typed
// errors classified for retry.
package llm

import (
	"context"
	"time"
)

// Default request parameters. Derivation favors low temperature: the
// pipeline's determinism guarantees come from stable ids and caching,
// but focused output reduces schema-gate rejections.
const (
	DefaultTemperature float32 = 0.2
	DefaultMaxTokens           = 1200
	DefaultTimeout             = 60 * time.Second
)

// Client is the generative backend used by the summary job and the
// derivation stages.
//
// Implementations must honor context cancellation, bound each request
// with a timeout, and map backend failures onto this package's
// sentinel errors so IsRetryable classifies them correctly.
//
// Thread Safety: implementations must be safe for concurrent use.
type Client interface {
	// Complete sends one prompt and returns the completion.
	Complete(ctx context.Context, prompt string, opts ...Option) (*Response, error)

	// Model returns the backend model identity, recorded in every
	// audit record for replayability.
	Model() string
}

// Response is a single completion result.
type Response struct {
	// Content is the generated text.
	Content string `json:"content"`

	// InputTokens and OutputTokens are the token counts reported by
	// the backend, zero when unavailable.
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// FinishReason is "stop", "length", or "error".
	FinishReason string `json:"finish_reason"`
}

type options struct {
	maxTokens   int
	temperature float32
	timeout     time.Duration
	system      string
}

func defaultOptions() *options {
	return &options{
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
	}
}

// Option configures a single request.
type Option func(*options)

// WithMaxTokens caps the completion length. Ignored when n <= 0.
func WithMaxTokens(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithTemperature sets sampling temperature. Ignored when t < 0.
func WithTemperature(t float32) Option {
	return func(o *options) {
		if t >= 0 {
			o.temperature = t
		}
	}
}

// WithTimeout bounds the request. Ignored when d <= 0.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithSystemPrompt sets the system role content for the request.
func WithSystemPrompt(s string) Option {
	return func(o *options) {
		o.system = s
	}
}

// ApplyOptions resolves options against defaults. Exported for client
// implementations.
func ApplyOptions(opts ...Option) (maxTokens int, temperature float32, timeout time.Duration, system string) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o.maxTokens, o.temperature, o.timeout, o.system
}
