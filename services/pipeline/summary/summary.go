// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package summary extracts scoped section summaries from a governance
// document. A summary is bounded to exactly one section's content and
// carries the obligations, actors, constraints, and references found
// there. Summaries are cached by section identity plus content hash so
// a re-run over an unchanged section never touches the model again.
package summary

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySection indicates a summarize request with no content.
var ErrEmptySection = errors.New("summary: section content is empty")

// SectionSummary is the normalized extraction for one section.
//
// The four lists are trimmed and deduplicated, with empty entries
// dropped, so that two runs over identical content produce
// byte-identical summaries.
type SectionSummary struct {
	// SectionID is the deterministic identifier of the source section.
	SectionID string `json:"section_id" yaml:"section_id"`

	// Obligations are the requirement statements the section imposes.
	Obligations []string `json:"obligations" yaml:"obligations"`

	// Actors are the roles or systems the section names.
	Actors []string `json:"actors" yaml:"actors"`

	// Constraints are limits, deadlines, and thresholds.
	Constraints []string `json:"constraints" yaml:"constraints"`

	// References are citations of other sections, documents, or
	// external standards.
	References []string `json:"references" yaml:"references"`

	// Cached reports whether this summary was served from the cache
	// without a model call.
	Cached bool `json:"cached" yaml:"cached"`
}

// Clone returns a deep copy so callers cannot mutate cached entries.
func (s SectionSummary) Clone() SectionSummary {
	out := s
	out.Obligations = append([]string(nil), s.Obligations...)
	out.Actors = append([]string(nil), s.Actors...)
	out.Constraints = append([]string(nil), s.Constraints...)
	out.References = append([]string(nil), s.References...)
	return out
}

// Extraction is a raw model extraction before normalization.
type Extraction struct {
	Obligations []string
	Actors      []string
	Constraints []string
	References  []string
}

// Normalize produces the stable form of an extraction for the given
// section: entries trimmed, empties dropped, order-preserving
// deduplication applied to each list.
func Normalize(sectionID string, ex Extraction) SectionSummary {
	return SectionSummary{
		SectionID:   sectionID,
		Obligations: normalizeList(ex.Obligations),
		Actors:      normalizeList(ex.Actors),
		Constraints: normalizeList(ex.Constraints),
		References:  normalizeList(ex.References),
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, item := range in {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// SummarizeError wraps a summarization failure with the section it
// belongs to. It unwraps to the underlying model error so retryability
// classification survives.
type SummarizeError struct {
	SectionID string
	Err       error
}

func (e *SummarizeError) Error() string {
	return fmt.Sprintf("summarize section %s: %v", e.SectionID, e.Err)
}

func (e *SummarizeError) Unwrap() error {
	return e.Err
}
