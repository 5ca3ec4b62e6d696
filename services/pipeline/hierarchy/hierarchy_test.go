// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hierarchy

import (
	"testing"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/derive"
)

func epic(id string) derive.Epic {
	return derive.Epic{EpicID: id}
}

func feature(id, epicID string) derive.Feature {
	return derive.Feature{FeatureID: id, EpicID: epicID}
}

func subfeature(id, parentID, epicID string) derive.Feature {
	return derive.Feature{FeatureID: id, EpicID: epicID, ParentFeatureID: parentID}
}

func story(id, featureID string) derive.Story {
	return derive.Story{StoryID: id, FeatureID: featureID}
}

func hasCode(issues []Issue, code, artifactID string) bool {
	for _, i := range issues {
		if i.Code == code && i.ArtifactID == artifactID {
			return true
		}
	}
	return false
}

func TestValidateHealthyHierarchy(t *testing.T) {
	epics := []derive.Epic{epic("p-e1")}
	features := []derive.Feature{
		feature("p-e1-feature-01", "p-e1"),
		feature("p-e1-feature-02", "p-e1"),
	}
	stories := []derive.Story{
		story("p-e1-feature-01-story-01", "p-e1-feature-01"),
		story("p-e1-feature-02-story-01", "p-e1-feature-02"),
	}

	r := Validate(epics, features, stories)
	if !r.Valid {
		t.Fatalf("Valid = false, errors: %+v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("Warnings = %+v, want none", r.Warnings)
	}
}

func TestValidateSubfeatureOwnership(t *testing.T) {
	// Parent owns subfeatures only; each subfeature owns a story.
	epics := []derive.Epic{epic("p-e1")}
	features := []derive.Feature{
		feature("p-e1-f1", "p-e1"),
		feature("p-e1-f2", "p-e1"),
		subfeature("p-e1-f1-subfeature-01", "p-e1-f1", "p-e1"),
		subfeature("p-e1-f1-subfeature-02", "p-e1-f1", "p-e1"),
	}
	stories := []derive.Story{
		story("s1", "p-e1-f1-subfeature-01"),
		story("s2", "p-e1-f1-subfeature-02"),
		story("s3", "p-e1-f2"),
	}

	r := Validate(epics, features, stories)
	if !r.Valid {
		t.Fatalf("Valid = false, errors: %+v", r.Errors)
	}
}

func TestValidateFeatureCountPerEpic(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		wantCode string
		warning  bool
	}{
		{"zero is error", 0, CodeNoFeatures, false},
		{"one is warning", 1, CodeSingleFeature, true},
		{"five is ok", 5, "", false},
		{"six is error", 6, CodeTooManyFeatures, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			epics := []derive.Epic{epic("p-e1")}
			var features []derive.Feature
			var stories []derive.Story
			for i := 0; i < tt.count; i++ {
				fid := derive.FeatureID("p-e1", i+1)
				features = append(features, feature(fid, "p-e1"))
				stories = append(stories, story(derive.StoryID(fid, 1), fid))
			}

			r := Validate(epics, features, stories)
			if tt.wantCode == "" {
				if !r.Valid {
					t.Fatalf("Valid = false, errors: %+v", r.Errors)
				}
				return
			}
			issues := r.Errors
			if tt.warning {
				issues = r.Warnings
				if !r.Valid {
					t.Fatalf("warning case should stay valid, errors: %+v", r.Errors)
				}
			} else if r.Valid {
				t.Fatal("Valid = true, want false")
			}
			if !hasCode(issues, tt.wantCode, "p-e1") {
				t.Errorf("missing %s for p-e1 in %+v", tt.wantCode, issues)
			}
		})
	}
}

func TestValidateMixedAndChildlessFeatures(t *testing.T) {
	epics := []derive.Epic{epic("p-e1")}
	features := []derive.Feature{
		feature("p-e1-f1", "p-e1"), // owns both
		feature("p-e1-f2", "p-e1"), // owns neither
		subfeature("p-e1-f1-subfeature-01", "p-e1-f1", "p-e1"),
	}
	stories := []derive.Story{
		story("s1", "p-e1-f1"),
		story("s2", "p-e1-f1-subfeature-01"),
	}

	r := Validate(epics, features, stories)
	if r.Valid {
		t.Fatal("Valid = true, want false")
	}
	if !hasCode(r.Errors, CodeMixedChildren, "p-e1-f1") {
		t.Errorf("missing MIXED_CHILDREN for p-e1-f1: %+v", r.Errors)
	}
	if !hasCode(r.Errors, CodeChildlessFeature, "p-e1-f2") {
		t.Errorf("missing CHILDLESS_FEATURE for p-e1-f2: %+v", r.Errors)
	}
}

func TestValidateSubfeatureIDFormat(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"p-e1-f1-subfeature-01", true},
		{"p-e1-f1-subfeature-1", false},
		{"p-e1-f1-subfeature-001", false},
		{"p-e1-f1-sub-01", false},
		{"p-e1-f2-subfeature-01", false}, // wrong parent prefix
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := validSubfeatureID(tt.id, "p-e1-f1"); got != tt.valid {
				t.Errorf("validSubfeatureID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}

func TestValidateOrphansReportedIndividually(t *testing.T) {
	features := []derive.Feature{
		feature("f-orphan", "missing-epic"),
		subfeature("sf-orphan-subfeature-01", "missing-parent", "missing-epic"),
	}
	stories := []derive.Story{
		story("s-orphan", "missing-feature"),
	}
	// Give the orphans children so only orphan errors are relevant here.
	stories = append(stories,
		story("s1", "f-orphan"),
		story("s2", "sf-orphan-subfeature-01"),
	)

	r := Validate(nil, features, stories)
	if r.Valid {
		t.Fatal("Valid = true, want false")
	}
	if !hasCode(r.Errors, CodeOrphanFeature, "f-orphan") {
		t.Errorf("missing ORPHAN_FEATURE: %+v", r.Errors)
	}
	if !hasCode(r.Errors, CodeOrphanSubfeature, "sf-orphan-subfeature-01") {
		t.Errorf("missing ORPHAN_SUBFEATURE: %+v", r.Errors)
	}
	if !hasCode(r.Errors, CodeOrphanStory, "s-orphan") {
		t.Errorf("missing ORPHAN_STORY: %+v", r.Errors)
	}
}

func TestValidateAccumulatesAllChecks(t *testing.T) {
	// One epic with zero features and one orphan story: both findings
	// must appear in a single pass.
	r := Validate([]derive.Epic{epic("p-e1")}, nil, []derive.Story{story("s1", "nope")})
	if len(r.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2: %+v", len(r.Errors), r.Errors)
	}
}
