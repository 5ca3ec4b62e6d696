// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func instantPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), instantPolicy(3), nil, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 || result.Attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1, 1", calls, result.Attempts)
	}
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	result, err := Do(context.Background(), instantPolicy(3), func(err error) bool { return errors.Is(err, transient) },
		func(ctx context.Context, attempt int) error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 || result.Attempts != 3 {
		t.Errorf("calls = %d, attempts = %d, want 3, 3", calls, result.Attempts)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	_, err := Do(context.Background(), instantPolicy(5), func(err error) bool { return false },
		func(ctx context.Context, attempt int) error {
			calls++
			return fatal
		})
	if !errors.Is(err, fatal) {
		t.Fatalf("Do() error = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	result, err := Do(context.Background(), instantPolicy(3), func(error) bool { return true },
		func(ctx context.Context, attempt int) error {
			calls++
			return transient
		})
	if !errors.Is(err, transient) {
		t.Fatalf("Do() error = %v, want %v", err, transient)
	}
	if calls != 3 || result.Attempts != 3 {
		t.Errorf("calls = %d, attempts = %d, want 3, 3", calls, result.Attempts)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, instantPolicy(3), func(error) bool { return true },
		func(ctx context.Context, attempt int) error {
			calls++
			return errors.New("transient")
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"zero attempts", Policy{MaxAttempts: 0, InitialBackoff: time.Second, MaxBackoff: time.Minute, BackoffFactor: 2}, true},
		{"max below initial", Policy{MaxAttempts: 3, InitialBackoff: time.Minute, MaxBackoff: time.Second, BackoffFactor: 2}, true},
		{"shrinking factor", Policy{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: time.Minute, BackoffFactor: 0.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNextCapsAtMax(t *testing.T) {
	got := next(20*time.Second, 2.0, 30*time.Second)
	if got != 30*time.Second {
		t.Errorf("next() = %v, want 30s", got)
	}
}
