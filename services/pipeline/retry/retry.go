// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retry provides exponential-backoff retry for generative calls.
//
// The policy is a plain value (max attempts, backoff schedule, jitter)
// passed explicitly to the summary job and the derivation stages, so
// tests can substitute instant schedules and retry behavior is
// verifiable in isolation. There are no ad hoc retry loops elsewhere in
// the pipeline.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrInvalidPolicy indicates a Policy that cannot be executed.
var ErrInvalidPolicy = errors.New("retry: invalid policy")

// Policy configures retry behavior with exponential backoff.
type Policy struct {
	// MaxAttempts is the maximum number of attempts including the first.
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the backoff after each attempt.
	BackoffFactor float64

	// JitterFactor is the maximum jitter as a fraction of the backoff
	// (0-1), preventing thundering-herd retries across workers.
	JitterFactor float64
}

// DefaultPolicy returns the schedule used when no configuration is set.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// Validate checks the policy is executable.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidPolicy
	}
	if p.InitialBackoff <= 0 {
		return ErrInvalidPolicy
	}
	if p.MaxBackoff < p.InitialBackoff {
		return ErrInvalidPolicy
	}
	if p.BackoffFactor < 1.0 {
		return ErrInvalidPolicy
	}
	return nil
}

// Result reports how an attempt sequence went.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int

	// TotalDuration includes waits between attempts.
	TotalDuration time.Duration

	// LastError is the final attempt's error, nil on success.
	LastError error
}

// Func is one attempt. The attempt number starts at 1.
type Func func(ctx context.Context, attempt int) error

// Do executes fn under the policy, retrying only errors the retryable
// classifier accepts. Context cancellation stops the sequence
// immediately, including mid-wait.
func Do(ctx context.Context, policy Policy, retryable func(error) bool, fn Func) (Result, error) {
	start := time.Now()
	result := Result{}
	backoff := policy.InitialBackoff

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.LastError = err
			result.TotalDuration = time.Since(start)
			return result, err
		}

		err := fn(ctx, attempt)
		if err == nil {
			result.TotalDuration = time.Since(start)
			return result, nil
		}
		result.LastError = err

		if retryable == nil || !retryable(err) {
			result.TotalDuration = time.Since(start)
			return result, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result, ctx.Err()
		case <-time.After(withJitter(backoff, policy.JitterFactor)):
		}

		backoff = next(backoff, policy.BackoffFactor, policy.MaxBackoff)
	}

	result.TotalDuration = time.Since(start)
	return result, result.LastError
}

// withJitter spreads the wait across [base*(1-j), base*(1+j)].
func withJitter(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}
	jitter := (rand.Float64()*2 - 1) * jitterFactor
	return time.Duration(float64(base) * (1.0 + jitter))
}

// next advances the backoff, capped at max.
func next(current time.Duration, factor float64, max time.Duration) time.Duration {
	n := time.Duration(float64(current) * factor)
	if n > max {
		return max
	}
	return n
}
