// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package derive

import (
	"context"
	"errors"

	"github.com/AleutianAI/muse-pipeline/pkg/logging"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/llm"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/retry"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/summary"
)

// Retryable classifies errors the derivation stages retry: transient
// model failures, undecodable completions, and schema-gated rejects.
// All three often succeed on a regenerated attempt.
func Retryable(err error) bool {
	var schema *SchemaError
	return llm.IsRetryable(err) || errors.Is(err, ErrMalformedCompletion) || errors.As(err, &schema)
}

// BoundaryConfig controls the thematic pre-pass for large documents.
type BoundaryConfig struct {
	// Enabled turns the pre-pass on.
	Enabled bool

	// MinSections is the section count above which the pre-pass runs.
	// At or below it the single whole-document path is always used.
	MinSections int
}

// EpicStage derives Epics from a document's section summaries. Raw
// document text never enters this stage.
type EpicStage struct {
	gen      Generator
	policy   retry.Policy
	boundary BoundaryConfig
	log      *logging.Logger
}

// NewEpicStage builds the epic stage. A nil logger is replaced with a
// discard logger.
func NewEpicStage(gen Generator, policy retry.Policy, boundary BoundaryConfig, log *logging.Logger) *EpicStage {
	if log == nil {
		log = logging.Discard()
	}
	return &EpicStage{gen: gen, policy: policy, boundary: boundary, log: log}
}

// candidateOutcome is the result of deriving one boundary span. Exactly
// one of epic or err is meaningful.
type candidateOutcome struct {
	epic Epic
	err  error
}

// Derive returns the Epic set for the document. For non-empty input
// the result is never empty: if the boundary pre-pass fails, returns
// zero spans, or every candidate span fails, the stage falls back to
// deriving exactly one Epic over the whole document.
func (s *EpicStage) Derive(ctx context.Context, documentID string, summaries []summary.SectionSummary) ([]Epic, error) {
	if len(summaries) == 0 {
		return nil, &DerivationError{Stage: StageEpic, ParentID: documentID, Err: ErrNoSections}
	}

	known := sectionIDSet(summaries)

	if s.boundary.Enabled && len(summaries) > s.boundary.MinSections {
		if epics, ok := s.deriveBySpans(ctx, documentID, summaries, known); ok {
			return epics, nil
		}
		s.log.Warn("boundary pre-pass produced no epics, falling back to whole document",
			"document_id", documentID)
	}

	epic, err := s.deriveOne(ctx, documentID, summaries, known, "", 1, allSectionIDs(summaries))
	if err != nil {
		return nil, &DerivationError{Stage: StageEpic, ParentID: documentID, Err: err}
	}
	return []Epic{epic}, nil
}

// deriveBySpans runs the pre-pass and folds per-candidate outcomes.
// It reports ok=false when the whole-document fallback should run
// instead: boundary detection failed, returned zero spans, or no
// candidate succeeded.
func (s *EpicStage) deriveBySpans(ctx context.Context, documentID string, summaries []summary.SectionSummary, known map[string]struct{}) ([]Epic, bool) {
	var spans []Span
	_, err := retry.Do(ctx, s.policy, Retryable, func(ctx context.Context, attempt int) error {
		var callErr error
		spans, callErr = s.gen.ProposeBoundaries(ctx, summaries)
		return callErr
	})
	if err != nil || len(spans) == 0 {
		if err != nil {
			s.log.Warn("boundary detection failed", "document_id", documentID, "error", err)
		}
		return nil, false
	}

	bySection := make(map[string]summary.SectionSummary, len(summaries))
	for _, sum := range summaries {
		bySection[sum.SectionID] = sum
	}

	outcomes := make([]candidateOutcome, 0, len(spans))
	ordinal := 0
	for _, span := range spans {
		scoped := make([]summary.SectionSummary, 0, len(span.SectionIDs))
		for _, sid := range span.SectionIDs {
			if sum, ok := bySection[sid]; ok {
				scoped = append(scoped, sum)
			}
		}
		if len(scoped) == 0 {
			outcomes = append(outcomes, candidateOutcome{err: ErrNoSections})
			continue
		}
		ordinal++
		epic, derr := s.deriveOne(ctx, documentID, scoped, known, span.Title, ordinal, span.SectionIDs)
		if derr != nil {
			ordinal--
			outcomes = append(outcomes, candidateOutcome{err: derr})
			continue
		}
		outcomes = append(outcomes, candidateOutcome{epic: epic})
	}

	epics := make([]Epic, 0, len(outcomes))
	for i, o := range outcomes {
		if o.err != nil {
			s.log.Warn("boundary candidate failed, continuing with remaining spans",
				"document_id", documentID, "span", spans[i].Title, "error", o.err)
			continue
		}
		epics = append(epics, o.epic)
	}
	if len(epics) == 0 {
		return nil, false
	}
	return epics, true
}

// deriveOne generates and gates a single Epic over the given scope.
func (s *EpicStage) deriveOne(ctx context.Context, documentID string, scoped []summary.SectionSummary, known map[string]struct{}, focus string, ordinal int, sourceSections []string) (Epic, error) {
	var draft EpicDraft
	_, err := retry.Do(ctx, s.policy, Retryable, func(ctx context.Context, attempt int) error {
		var callErr error
		draft, callErr = s.gen.GenerateEpic(ctx, scoped, focus)
		return callErr
	})
	if err != nil {
		return Epic{}, err
	}

	epic := Epic{
		EpicID:          EpicID(documentID, ordinal),
		Objective:       draft.Objective,
		SuccessCriteria: draft.SuccessCriteria,
		SourceSections:  dedupeKnown(sourceSections, known),
	}
	if err := CheckEpic(epic, known); err != nil {
		return Epic{}, err
	}
	return epic, nil
}

func sectionIDSet(summaries []summary.SectionSummary) map[string]struct{} {
	set := make(map[string]struct{}, len(summaries))
	for _, s := range summaries {
		set[s.SectionID] = struct{}{}
	}
	return set
}

func allSectionIDs(summaries []summary.SectionSummary) []string {
	ids := make([]string, len(summaries))
	for i, s := range summaries {
		ids[i] = s.SectionID
	}
	return ids
}

// dedupeKnown keeps ids the stage actually saw, preserving order.
func dedupeKnown(ids []string, known map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
