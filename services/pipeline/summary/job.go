// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package summary

import (
	"context"
	"sync"

	"github.com/AleutianAI/muse-pipeline/pkg/logging"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/retry"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/section"
)

// Job runs section summarization with caching and retry. Concurrent
// requests for the same cache key are collapsed: only one performs the
// model call, the rest wait and read the cached result.
type Job struct {
	summarizer Summarizer
	cache      *Cache
	policy     retry.Policy
	retryable  func(error) bool
	log        *logging.Logger

	mu    sync.Mutex
	inFly map[string]*sync.Mutex
}

// NewJob builds a summary job. A nil logger is replaced with a discard
// logger.
func NewJob(summarizer Summarizer, cache *Cache, policy retry.Policy, retryable func(error) bool, log *logging.Logger) *Job {
	if log == nil {
		log = logging.Discard()
	}
	return &Job{
		summarizer: summarizer,
		cache:      cache,
		policy:     policy,
		retryable:  retryable,
		log:        log,
		inFly:      make(map[string]*sync.Mutex),
	}
}

// Run returns the summary for the section, from cache when the content
// is unchanged since a previous successful run. Failures are returned
// as *SummarizeError and never cached.
func (j *Job) Run(ctx context.Context, sec section.Section) (SectionSummary, error) {
	key := CacheKey(sec.ID, sec.Content)

	if cached, ok := j.cache.Get(key); ok {
		return cached, nil
	}

	keyLock := j.lockFor(key)
	keyLock.Lock()
	defer keyLock.Unlock()

	// Another worker may have filled the entry while we waited.
	if cached, ok := j.cache.Get(key); ok {
		return cached, nil
	}

	var ex Extraction
	result, err := retry.Do(ctx, j.policy, j.retryable, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			j.log.Warn("retrying section summary",
				"section_id", sec.ID, "attempt", attempt)
		}
		var callErr error
		ex, callErr = j.summarizer.Summarize(ctx, sec.Title, sec.Content)
		return callErr
	})
	if err != nil {
		return SectionSummary{}, &SummarizeError{SectionID: sec.ID, Err: err}
	}

	out := Normalize(sec.ID, ex)
	j.cache.Set(key, out)
	j.log.Debug("section summarized",
		"section_id", sec.ID, "attempts", result.Attempts,
		"obligations", len(out.Obligations))
	return out, nil
}

// RunAll summarizes sections in order. The first failure aborts the
// batch so a broken model endpoint does not burn the remaining calls.
func (j *Job) RunAll(ctx context.Context, sections []section.Section) ([]SectionSummary, error) {
	out := make([]SectionSummary, 0, len(sections))
	for _, sec := range sections {
		s, err := j.Run(ctx, sec)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (j *Job) lockFor(key string) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()
	if m, ok := j.inFly[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	j.inFly[key] = m
	return m
}
