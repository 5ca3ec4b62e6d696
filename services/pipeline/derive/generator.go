// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package derive

import (
	"context"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/summary"
)

// Span is a proposed thematic boundary over a document's sections,
// produced by the optional pre-pass for large documents.
type Span struct {
	Title      string   `json:"title"`
	SectionIDs []string `json:"section_ids"`
}

// EpicDraft is a model-produced Epic before id assignment and gating.
type EpicDraft struct {
	Objective       string   `json:"objective"`
	SuccessCriteria []string `json:"success_criteria"`
}

// SubfeatureDraft is a nested feature proposal inside a FeatureDraft.
type SubfeatureDraft struct {
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	AcceptanceCriteria   []string `json:"acceptance_criteria"`
	GovernanceReferences []string `json:"governance_references"`
}

// FeatureDraft is a model-produced Feature before id assignment. A
// draft with Subfeatures owns no Stories directly.
type FeatureDraft struct {
	Title                string            `json:"title"`
	Description          string            `json:"description"`
	AcceptanceCriteria   []string          `json:"acceptance_criteria"`
	GovernanceReferences []string          `json:"governance_references"`
	Subfeatures          []SubfeatureDraft `json:"subfeatures,omitempty"`
}

// StoryDraft is a model-produced Story before id assignment.
type StoryDraft struct {
	Role                 string   `json:"role"`
	Capability           string   `json:"capability"`
	Benefit              string   `json:"benefit"`
	AcceptanceCriteria   []string `json:"acceptance_criteria"`
	GovernanceReferences []string `json:"governance_references"`
}

// Generator is the generative capability behind the derivation stages.
// Each method is strictly bounded to the input it receives; an
// implementation must never reach for the full document where only
// summaries or one artifact are passed.
type Generator interface {
	// ProposeBoundaries groups sections into thematic spans. Returning
	// zero spans is not an error; the epic stage falls back to a
	// single whole-document Epic.
	ProposeBoundaries(ctx context.Context, summaries []summary.SectionSummary) ([]Span, error)

	// GenerateEpic derives one Epic objective from the given
	// summaries. focus names the thematic span being derived, or is
	// empty for the whole document.
	GenerateEpic(ctx context.Context, summaries []summary.SectionSummary, focus string) (EpicDraft, error)

	// GenerateFeatures derives Features for exactly one Epic. The
	// document text is passed for citation only.
	GenerateFeatures(ctx context.Context, epic Epic, documentText string) ([]FeatureDraft, error)

	// GenerateStories derives Stories for exactly one Feature.
	GenerateStories(ctx context.Context, feature Feature, documentText string) ([]StoryDraft, error)
}
