// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package derive turns section summaries into the planning hierarchy:
// Epics from a document's summaries, Features from one Epic, Stories
// from one Feature. Every generative call is bounded to its stated
// input and every returned shape is gated against the artifact schema
// before it is accepted.
package derive

import "fmt"

// Epic is a top-level objective derived from a document or one
// thematic span within it.
type Epic struct {
	EpicID          string   `json:"epic_id" yaml:"epic_id" validate:"required"`
	Objective       string   `json:"objective" yaml:"objective" validate:"required,min=12"`
	SuccessCriteria []string `json:"success_criteria" yaml:"success_criteria" validate:"required,min=1,dive,min=1"`
	SourceSections  []string `json:"source_sections" yaml:"source_sections" validate:"required,min=1,dive,min=1"`
}

// Feature is a capability supporting an Epic. A Feature with
// ParentFeatureID set is a Sub-Feature; it owns Stories in place of
// its parent.
type Feature struct {
	FeatureID            string   `json:"feature_id" yaml:"feature_id" validate:"required"`
	EpicID               string   `json:"epic_id" yaml:"epic_id" validate:"required"`
	ParentFeatureID      string   `json:"parent_feature_id,omitempty" yaml:"parent_feature_id,omitempty"`
	Title                string   `json:"title" yaml:"title" validate:"required,min=3"`
	Description          string   `json:"description" yaml:"description" validate:"required,min=12"`
	AcceptanceCriteria   []string `json:"acceptance_criteria" yaml:"acceptance_criteria" validate:"required,min=1,dive,min=1"`
	GovernanceReferences []string `json:"governance_references" yaml:"governance_references" validate:"required,min=1,dive,min=1"`
}

// IsSubfeature reports whether the feature is nested under another.
func (f Feature) IsSubfeature() bool {
	return f.ParentFeatureID != ""
}

// Story is a testable requirement derived from exactly one Feature,
// phrased as role / capability / benefit. Stories are append-only once
// created.
type Story struct {
	StoryID              string   `json:"story_id" yaml:"story_id" validate:"required"`
	FeatureID            string   `json:"feature_id" yaml:"feature_id" validate:"required"`
	EpicID               string   `json:"epic_id" yaml:"epic_id" validate:"required"`
	Role                 string   `json:"role" yaml:"role" validate:"required"`
	Capability           string   `json:"capability" yaml:"capability" validate:"required,min=8"`
	Benefit              string   `json:"benefit" yaml:"benefit" validate:"required,min=8"`
	AcceptanceCriteria   []string `json:"acceptance_criteria" yaml:"acceptance_criteria" validate:"required,min=1,dive,min=1"`
	GovernanceReferences []string `json:"governance_references" yaml:"governance_references" validate:"required,min=1,dive,min=1"`
}

// EpicID derives the stable identifier for the nth Epic of a document.
// Ordinals are 1-based and rendered with two digits.
func EpicID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s-epic-%02d", documentID, ordinal)
}

// FeatureID derives the identifier for the nth Feature of an Epic.
func FeatureID(epicID string, ordinal int) string {
	return fmt.Sprintf("%s-feature-%02d", epicID, ordinal)
}

// SubfeatureID derives the identifier for the nth Sub-Feature of a
// parent Feature.
func SubfeatureID(parentFeatureID string, ordinal int) string {
	return fmt.Sprintf("%s-subfeature-%02d", parentFeatureID, ordinal)
}

// StoryID derives the identifier for the nth Story of a Feature.
func StoryID(featureID string, ordinal int) string {
	return fmt.Sprintf("%s-story-%02d", featureID, ordinal)
}
