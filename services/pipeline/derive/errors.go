// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package derive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSections indicates epic derivation was asked to run over
	// zero section summaries.
	ErrNoSections = errors.New("derive: no section summaries")

	// ErrMalformedCompletion indicates the model reply could not be
	// decoded into the expected artifact shape. Worth one more attempt.
	ErrMalformedCompletion = errors.New("derive: malformed completion")

	// ErrTooManyFeatures indicates the model returned more Features
	// for one Epic than the hierarchy permits.
	ErrTooManyFeatures = errors.New("derive: more than 5 features for epic")

	// ErrStoryCount indicates a Story batch outside the 1-5 range.
	ErrStoryCount = errors.New("derive: story count outside 1-5")
)

// Stage names used in error reporting.
const (
	StageEpic    = "epic"
	StageFeature = "feature"
	StageStory   = "story"
)

// FieldIssue is one schema violation on one field.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SchemaError reports that a derived artifact failed shape validation.
// It carries field-level detail so callers can log exactly what the
// model got wrong. Artifacts that fail schema gating are never
// persisted.
type SchemaError struct {
	Stage      string
	ArtifactID string
	Fields     []FieldIssue
}

func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return fmt.Sprintf("derive: %s artifact %s failed schema validation: %s",
		e.Stage, e.ArtifactID, strings.Join(parts, "; "))
}

// DerivationError wraps a stage failure with the lineage it belongs
// to. ParentID is the document id for the epic stage, the epic id for
// the feature stage, and the feature id for the story stage.
type DerivationError struct {
	Stage    string
	ParentID string
	Err      error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("derive: %s stage for %s: %v", e.Stage, e.ParentID, e.Err)
}

func (e *DerivationError) Unwrap() error {
	return e.Err
}
