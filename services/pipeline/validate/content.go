// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validate gates pipeline entry on content sufficiency.
//
// The content gate is a pure function: it never returns a Go error and
// never aborts on the first problem. All applicable failures accumulate
// so a caller can report everything wrong with a document at once. The
// orchestrator decides whether an invalid result aborts the run.
package validate

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/document"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/section"
)

// Issue codes reported by the content gate.
const (
	CodeContentTooShort   = "content_too_short"
	CodeNoHeadings        = "no_headings"
	CodePlaceholderMarker = "placeholder_marker"
)

// Issue is one structured validation failure.
type Issue struct {
	// Code is a stable machine-readable identifier.
	Code string `json:"code"`

	// Message describes the failure for humans.
	Message string `json:"message"`

	// Suggestion tells the author how to fix the document.
	Suggestion string `json:"suggestion"`
}

// Result is the outcome of the content gate.
type Result struct {
	// IsValid is true when Issues is empty.
	IsValid bool `json:"is_valid"`

	// Issues lists every applicable failure, never just the first.
	Issues []Issue `json:"issues,omitempty"`

	// ContentLength is the body length in bytes, front matter excluded.
	ContentLength int `json:"content_length"`

	// HeadingCount is the number of markdown headings found.
	HeadingCount int `json:"heading_count"`
}

// Content checks a document body for sufficiency.
//
// Inputs:
//   - body: Raw text; a leading YAML front-matter block is excluded
//     from the length measurement.
//   - minLength: Minimum body length in bytes.
//   - placeholderMarkers: Case-insensitive substrings that mark the
//     document as unfinished.
//
// Outputs:
//   - Result: Accumulated findings. Never panics, never errors.
func Content(body string, minLength int, placeholderMarkers []string) Result {
	stripped := string(document.StripFrontMatter([]byte(body)))

	result := Result{
		ContentLength: len(strings.TrimSpace(stripped)),
		HeadingCount:  countHeadings(stripped),
	}

	if result.ContentLength < minLength {
		result.Issues = append(result.Issues, Issue{
			Code: CodeContentTooShort,
			Message: fmt.Sprintf("document body is %d bytes, minimum is %d",
				result.ContentLength, minLength),
			Suggestion: "add substantive content before deriving planning artifacts",
		})
	}

	if result.HeadingCount == 0 {
		result.Issues = append(result.Issues, Issue{
			Code:       CodeNoHeadings,
			Message:    "no markdown headings found",
			Suggestion: "structure the document with # headings so it can be sectioned",
		})
	}

	lower := strings.ToLower(stripped)
	for _, marker := range placeholderMarkers {
		if marker == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(marker)) {
			result.Issues = append(result.Issues, Issue{
				Code:       CodePlaceholderMarker,
				Message:    fmt.Sprintf("placeholder marker %q present", marker),
				Suggestion: "replace placeholder text with real content",
			})
		}
	}

	result.IsValid = len(result.Issues) == 0
	return result
}

// countHeadings counts markdown headings via the same parser the
// splitter uses, so headings inside code fences are not counted.
func countHeadings(body string) int {
	if strings.TrimSpace(body) == "" {
		return 0
	}
	count := 0
	root := section.Parse(text.NewReader([]byte(body)))
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if _, ok := n.(*ast.Heading); ok {
				count++
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return count
}
