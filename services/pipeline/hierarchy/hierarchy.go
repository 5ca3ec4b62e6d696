// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package hierarchy checks structural integrity of a derived artifact
// set. Validation is a pure function: it accumulates every violation
// instead of stopping at the first, so one run reports the complete
// state of the hierarchy.
package hierarchy

import (
	"fmt"
	"regexp"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/derive"
)

// Violation codes.
const (
	CodeNoFeatures       = "NO_FEATURES"
	CodeSingleFeature    = "SINGLE_FEATURE"
	CodeTooManyFeatures  = "TOO_MANY_FEATURES"
	CodeMixedChildren    = "MIXED_CHILDREN"
	CodeChildlessFeature = "CHILDLESS_FEATURE"
	CodeBadSubfeatureID  = "BAD_SUBFEATURE_ID"
	CodeOrphanFeature    = "ORPHAN_FEATURE"
	CodeOrphanSubfeature = "ORPHAN_SUBFEATURE"
	CodeOrphanStory      = "ORPHAN_STORY"
)

// Issue is one structural finding, warning or error.
type Issue struct {
	Code       string `json:"code"`
	ArtifactID string `json:"artifact_id"`
	Message    string `json:"message"`
}

// Result is the accumulated outcome of a hierarchy check. Valid is
// false when Errors is non-empty; warnings alone do not invalidate.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

var subfeatureOrdinal = regexp.MustCompile(`^subfeature-\d{2}$`)

// Validate checks the full artifact set. All checks run; nothing
// short-circuits.
func Validate(epics []derive.Epic, features []derive.Feature, stories []derive.Story) Result {
	r := Result{}

	epicSet := make(map[string]struct{}, len(epics))
	for _, e := range epics {
		epicSet[e.EpicID] = struct{}{}
	}
	featureSet := make(map[string]derive.Feature, len(features))
	for _, f := range features {
		featureSet[f.FeatureID] = f
	}

	// Ownership maps for the exactly-one-of check.
	subfeaturesOf := make(map[string]int)
	storiesOf := make(map[string]int)
	for _, f := range features {
		if f.IsSubfeature() {
			subfeaturesOf[f.ParentFeatureID]++
		}
	}
	for _, s := range stories {
		storiesOf[s.FeatureID]++
	}

	// Feature count per Epic, counting top-level features only.
	topLevelOf := make(map[string]int, len(epics))
	for _, f := range features {
		if !f.IsSubfeature() {
			topLevelOf[f.EpicID]++
		}
	}
	for _, e := range epics {
		switch n := topLevelOf[e.EpicID]; {
		case n == 0:
			r.Errors = append(r.Errors, Issue{
				Code:       CodeNoFeatures,
				ArtifactID: e.EpicID,
				Message:    "epic has no features",
			})
		case n == 1:
			r.Warnings = append(r.Warnings, Issue{
				Code:       CodeSingleFeature,
				ArtifactID: e.EpicID,
				Message:    "epic has a single feature; consider merging it upward",
			})
		case n > 5:
			r.Errors = append(r.Errors, Issue{
				Code:       CodeTooManyFeatures,
				ArtifactID: e.EpicID,
				Message:    fmt.Sprintf("epic has %d features, maximum is 5", n),
			})
		}
	}

	for _, f := range features {
		hasSubs := subfeaturesOf[f.FeatureID] > 0
		hasStories := storiesOf[f.FeatureID] > 0
		switch {
		case hasSubs && hasStories:
			r.Errors = append(r.Errors, Issue{
				Code:       CodeMixedChildren,
				ArtifactID: f.FeatureID,
				Message:    "feature owns both subfeatures and direct stories",
			})
		case !hasSubs && !hasStories:
			r.Errors = append(r.Errors, Issue{
				Code:       CodeChildlessFeature,
				ArtifactID: f.FeatureID,
				Message:    "feature owns neither subfeatures nor stories",
			})
		}

		if f.IsSubfeature() {
			if _, ok := featureSet[f.ParentFeatureID]; !ok {
				r.Errors = append(r.Errors, Issue{
					Code:       CodeOrphanSubfeature,
					ArtifactID: f.FeatureID,
					Message:    fmt.Sprintf("parent feature %s does not exist", f.ParentFeatureID),
				})
			}
			if !validSubfeatureID(f.FeatureID, f.ParentFeatureID) {
				r.Errors = append(r.Errors, Issue{
					Code:       CodeBadSubfeatureID,
					ArtifactID: f.FeatureID,
					Message:    fmt.Sprintf("id does not match %s-subfeature-NN", f.ParentFeatureID),
				})
			}
		} else if _, ok := epicSet[f.EpicID]; !ok {
			r.Errors = append(r.Errors, Issue{
				Code:       CodeOrphanFeature,
				ArtifactID: f.FeatureID,
				Message:    fmt.Sprintf("epic %s does not exist", f.EpicID),
			})
		}
	}

	for _, s := range stories {
		if _, ok := featureSet[s.FeatureID]; !ok {
			r.Errors = append(r.Errors, Issue{
				Code:       CodeOrphanStory,
				ArtifactID: s.StoryID,
				Message:    fmt.Sprintf("feature %s does not exist", s.FeatureID),
			})
		}
	}

	r.Valid = len(r.Errors) == 0
	return r
}

// validSubfeatureID requires the exact <parent>-subfeature-NN form.
func validSubfeatureID(id, parentID string) bool {
	prefix := parentID + "-"
	if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
		return false
	}
	return subfeatureOrdinal.MatchString(id[len(prefix):])
}
