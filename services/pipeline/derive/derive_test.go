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
	"fmt"
	"testing"
	"time"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/llm"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/retry"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/summary"
)

const docText = "Operators must retain audit records for seven years per section 4.2. Quarterly reports are due to the oversight board."

func instantPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func makeSummaries(n int) []summary.SectionSummary {
	out := make([]summary.SectionSummary, n)
	for i := range out {
		out[i] = summary.SectionSummary{
			SectionID:   summarySectionID(i),
			Obligations: []string{"retain records for seven years"},
		}
	}
	return out
}

func summarySectionID(i int) string {
	return fmt.Sprintf("doc-abc-s%02d-x", i)
}

func validEpicDraft() EpicDraft {
	return EpicDraft{
		Objective:       "Establish a compliant record retention program",
		SuccessCriteria: []string{"All audit records retained for seven years"},
	}
}

func validFeatureDraft() FeatureDraft {
	return FeatureDraft{
		Title:              "Retention scheduler",
		Description:        "Schedule retention and purge of audit records.",
		AcceptanceCriteria: []string{"Records older than seven years are purged within one day"},
		GovernanceReferences: []string{
			"retain audit records for seven years",
		},
	}
}

func validStoryDraft() StoryDraft {
	return StoryDraft{
		Role:               "compliance officer",
		Capability:         "view the retention status of any record",
		Benefit:            "verify the seven year obligation is met",
		AcceptanceCriteria: []string{"Retention status is visible for every stored record"},
		GovernanceReferences: []string{
			"Quarterly reports are due to the oversight board",
		},
	}
}

type fakeGenerator struct {
	spans        []Span
	spansErr     error
	epicDrafts   map[string]EpicDraft // keyed by focus, "" for whole document
	epicErrs     map[string]error
	featureDraft []FeatureDraft
	featureSeq   [][]FeatureDraft // consumed one batch per call when set
	featureErr   error
	storyDraft   []StoryDraft
	storyErr     error

	epicCalls     int
	boundaryCalls int
	featureCalls  int
}

func (f *fakeGenerator) ProposeBoundaries(ctx context.Context, summaries []summary.SectionSummary) ([]Span, error) {
	f.boundaryCalls++
	return f.spans, f.spansErr
}

func (f *fakeGenerator) GenerateEpic(ctx context.Context, summaries []summary.SectionSummary, focus string) (EpicDraft, error) {
	f.epicCalls++
	if err, ok := f.epicErrs[focus]; ok && err != nil {
		return EpicDraft{}, err
	}
	if d, ok := f.epicDrafts[focus]; ok {
		return d, nil
	}
	return validEpicDraft(), nil
}

func (f *fakeGenerator) GenerateFeatures(ctx context.Context, epic Epic, documentText string) ([]FeatureDraft, error) {
	f.featureCalls++
	if len(f.featureSeq) > 0 {
		batch := f.featureSeq[0]
		f.featureSeq = f.featureSeq[1:]
		return batch, nil
	}
	return f.featureDraft, f.featureErr
}

func (f *fakeGenerator) GenerateStories(ctx context.Context, feature Feature, documentText string) ([]StoryDraft, error) {
	return f.storyDraft, f.storyErr
}

func TestIDDerivation(t *testing.T) {
	if got := EpicID("doc-abc", 1); got != "doc-abc-epic-01" {
		t.Errorf("EpicID = %q", got)
	}
	if got := FeatureID("doc-abc-epic-01", 2); got != "doc-abc-epic-01-feature-02" {
		t.Errorf("FeatureID = %q", got)
	}
	if got := SubfeatureID("doc-abc-epic-01-feature-02", 1); got != "doc-abc-epic-01-feature-02-subfeature-01" {
		t.Errorf("SubfeatureID = %q", got)
	}
	if got := StoryID("doc-abc-epic-01-feature-02", 3); got != "doc-abc-epic-01-feature-02-story-03" {
		t.Errorf("StoryID = %q", got)
	}
}

func TestEpicStageEmptyInput(t *testing.T) {
	stage := NewEpicStage(&fakeGenerator{}, instantPolicy(), BoundaryConfig{}, nil)
	_, err := stage.Derive(context.Background(), "doc-abc", nil)
	if !errors.Is(err, ErrNoSections) {
		t.Fatalf("Derive() error = %v, want ErrNoSections", err)
	}
}

func TestEpicStageSinglePath(t *testing.T) {
	fake := &fakeGenerator{}
	stage := NewEpicStage(fake, instantPolicy(), BoundaryConfig{}, nil)
	summaries := makeSummaries(3)

	epics, err := stage.Derive(context.Background(), "doc-abc", summaries)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if len(epics) != 1 {
		t.Fatalf("len(epics) = %d, want 1", len(epics))
	}
	if epics[0].EpicID != "doc-abc-epic-01" {
		t.Errorf("EpicID = %q", epics[0].EpicID)
	}
	if len(epics[0].SourceSections) != 3 {
		t.Errorf("SourceSections = %v, want all 3", epics[0].SourceSections)
	}
	if fake.boundaryCalls != 0 {
		t.Errorf("boundary pre-pass ran for a small document")
	}
}

func TestEpicStageBoundaryPath(t *testing.T) {
	summaries := makeSummaries(14)
	fake := &fakeGenerator{
		spans: []Span{
			{Title: "retention", SectionIDs: []string{summaries[0].SectionID, summaries[1].SectionID}},
			{Title: "reporting", SectionIDs: []string{summaries[2].SectionID}},
		},
	}
	stage := NewEpicStage(fake, instantPolicy(), BoundaryConfig{Enabled: true, MinSections: 12}, nil)

	epics, err := stage.Derive(context.Background(), "doc-abc", summaries)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if len(epics) != 2 {
		t.Fatalf("len(epics) = %d, want 2", len(epics))
	}
	if epics[0].EpicID != "doc-abc-epic-01" || epics[1].EpicID != "doc-abc-epic-02" {
		t.Errorf("epic ids = %q, %q", epics[0].EpicID, epics[1].EpicID)
	}
	if len(epics[0].SourceSections) != 2 || len(epics[1].SourceSections) != 1 {
		t.Errorf("source sections not scoped to spans: %v / %v",
			epics[0].SourceSections, epics[1].SourceSections)
	}
}

func TestEpicStagePartialCandidateFailure(t *testing.T) {
	summaries := makeSummaries(14)
	fake := &fakeGenerator{
		spans: []Span{
			{Title: "retention", SectionIDs: []string{summaries[0].SectionID}},
			{Title: "reporting", SectionIDs: []string{summaries[1].SectionID}},
		},
		epicErrs: map[string]error{"retention": llm.ErrInvalidRequest},
	}
	stage := NewEpicStage(fake, instantPolicy(), BoundaryConfig{Enabled: true, MinSections: 12}, nil)

	epics, err := stage.Derive(context.Background(), "doc-abc", summaries)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if len(epics) != 1 {
		t.Fatalf("len(epics) = %d, want 1 surviving candidate", len(epics))
	}
	if epics[0].EpicID != "doc-abc-epic-01" {
		t.Errorf("surviving candidate should take the first ordinal, got %q", epics[0].EpicID)
	}
}

func TestEpicStageAllCandidatesFailFallsBack(t *testing.T) {
	summaries := makeSummaries(14)
	fake := &fakeGenerator{
		spans: []Span{
			{Title: "retention", SectionIDs: []string{summaries[0].SectionID}},
		},
		epicErrs: map[string]error{"retention": llm.ErrInvalidRequest},
	}
	stage := NewEpicStage(fake, instantPolicy(), BoundaryConfig{Enabled: true, MinSections: 12}, nil)

	epics, err := stage.Derive(context.Background(), "doc-abc", summaries)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if len(epics) != 1 {
		t.Fatalf("len(epics) = %d, want 1 from whole-document fallback", len(epics))
	}
	if len(epics[0].SourceSections) != len(summaries) {
		t.Errorf("fallback epic should cover all sections, got %d", len(epics[0].SourceSections))
	}
}

func TestEpicStageBoundaryErrorFallsBack(t *testing.T) {
	fake := &fakeGenerator{spansErr: llm.ErrInvalidRequest}
	stage := NewEpicStage(fake, instantPolicy(), BoundaryConfig{Enabled: true, MinSections: 12}, nil)

	epics, err := stage.Derive(context.Background(), "doc-abc", makeSummaries(14))
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if len(epics) != 1 {
		t.Fatalf("len(epics) = %d, want 1", len(epics))
	}
}

func testEpic() Epic {
	return Epic{
		EpicID:          "doc-abc-epic-01",
		Objective:       "Establish a compliant record retention program",
		SuccessCriteria: []string{"All audit records retained for seven years"},
		SourceSections:  []string{"doc-abc-s00-x"},
	}
}

func TestFeatureStageAssignsIDs(t *testing.T) {
	draft := validFeatureDraft()
	draft.Subfeatures = []SubfeatureDraft{{
		Title:                "Purge worker",
		Description:          "Background purge of expired audit records.",
		AcceptanceCriteria:   []string{"Expired records are deleted in the next purge cycle"},
		GovernanceReferences: []string{"retain audit records for seven years"},
	}}
	fake := &fakeGenerator{featureDraft: []FeatureDraft{draft}}
	stage := NewFeatureStage(fake, instantPolicy(), nil, nil)

	features, err := stage.Derive(context.Background(), testEpic(), docText)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("len(features) = %d, want parent + subfeature", len(features))
	}
	if features[0].FeatureID != "doc-abc-epic-01-feature-01" {
		t.Errorf("parent id = %q", features[0].FeatureID)
	}
	if features[1].FeatureID != "doc-abc-epic-01-feature-01-subfeature-01" {
		t.Errorf("subfeature id = %q", features[1].FeatureID)
	}
	if features[1].ParentFeatureID != features[0].FeatureID {
		t.Errorf("ParentFeatureID = %q", features[1].ParentFeatureID)
	}
}

func TestFeatureStageRejectsOversizedBatch(t *testing.T) {
	drafts := make([]FeatureDraft, 6)
	for i := range drafts {
		drafts[i] = validFeatureDraft()
	}
	stage := NewFeatureStage(&fakeGenerator{featureDraft: drafts}, instantPolicy(), nil, nil)

	_, err := stage.Derive(context.Background(), testEpic(), docText)
	if !errors.Is(err, ErrTooManyFeatures) {
		t.Fatalf("Derive() error = %v, want ErrTooManyFeatures", err)
	}
}

func TestFeatureStageSchemaGating(t *testing.T) {
	draft := validFeatureDraft()
	draft.AcceptanceCriteria = []string{"works as expected"}
	stage := NewFeatureStage(&fakeGenerator{featureDraft: []FeatureDraft{draft}}, instantPolicy(), nil, nil)

	_, err := stage.Derive(context.Background(), testEpic(), docText)
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("Derive() error = %v, want *SchemaError", err)
	}
	if len(serr.Fields) == 0 {
		t.Fatal("SchemaError should carry field-level detail")
	}
	if serr.Fields[0].Field != "acceptance_criteria[0]" {
		t.Errorf("Field = %q", serr.Fields[0].Field)
	}
}

func TestFeatureStageRegeneratesOnSchemaReject(t *testing.T) {
	bad := validFeatureDraft()
	bad.AcceptanceCriteria = []string{"works as expected"}
	fake := &fakeGenerator{featureSeq: [][]FeatureDraft{
		{bad},
		{validFeatureDraft()},
	}}
	stage := NewFeatureStage(fake, instantPolicy(), nil, nil)

	features, err := stage.Derive(context.Background(), testEpic(), docText)
	if err != nil {
		t.Fatalf("Derive() error = %v, want regenerated batch to pass", err)
	}
	if len(features) != 1 {
		t.Fatalf("len(features) = %d, want 1", len(features))
	}
	if fake.featureCalls != 2 {
		t.Errorf("generator calls = %d, want 2", fake.featureCalls)
	}
}

func TestFeatureStageUntraceableReference(t *testing.T) {
	draft := validFeatureDraft()
	draft.GovernanceReferences = []string{"citation that appears nowhere"}
	stage := NewFeatureStage(&fakeGenerator{featureDraft: []FeatureDraft{draft}}, instantPolicy(), nil, nil)

	_, err := stage.Derive(context.Background(), testEpic(), docText)
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("Derive() error = %v, want *SchemaError", err)
	}
}

func testFeature() Feature {
	return Feature{
		FeatureID:            "doc-abc-epic-01-feature-01",
		EpicID:               "doc-abc-epic-01",
		Title:                "Retention scheduler",
		Description:          "Schedule retention and purge of audit records.",
		AcceptanceCriteria:   []string{"Records older than seven years are purged within one day"},
		GovernanceReferences: []string{"retain audit records for seven years"},
	}
}

func TestStoryStageAssignsIDs(t *testing.T) {
	fake := &fakeGenerator{storyDraft: []StoryDraft{validStoryDraft(), validStoryDraft()}}
	stage := NewStoryStage(fake, instantPolicy(), nil, nil)

	stories, err := stage.Derive(context.Background(), testFeature(), docText)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if len(stories) != 2 {
		t.Fatalf("len(stories) = %d, want 2", len(stories))
	}
	if stories[0].StoryID != "doc-abc-epic-01-feature-01-story-01" {
		t.Errorf("StoryID = %q", stories[0].StoryID)
	}
	if stories[1].StoryID != "doc-abc-epic-01-feature-01-story-02" {
		t.Errorf("StoryID = %q", stories[1].StoryID)
	}
	if stories[0].EpicID != "doc-abc-epic-01" {
		t.Errorf("EpicID = %q", stories[0].EpicID)
	}
}

func TestStoryStageCountBounds(t *testing.T) {
	tests := []struct {
		name  string
		count int
		ok    bool
	}{
		{"zero", 0, false},
		{"one", 1, true},
		{"five", 5, true},
		{"six", 6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drafts := make([]StoryDraft, tt.count)
			for i := range drafts {
				drafts[i] = validStoryDraft()
			}
			stage := NewStoryStage(&fakeGenerator{storyDraft: drafts}, instantPolicy(), nil, nil)
			_, err := stage.Derive(context.Background(), testFeature(), docText)
			if tt.ok && err != nil {
				t.Fatalf("Derive() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrStoryCount) {
				t.Fatalf("Derive() error = %v, want ErrStoryCount", err)
			}
		})
	}
}

func TestRetryableClassification(t *testing.T) {
	if !Retryable(ErrMalformedCompletion) {
		t.Error("malformed completions should be retryable")
	}
	if !Retryable(llm.ErrRateLimited) {
		t.Error("rate limiting should be retryable")
	}
	if !Retryable(&SchemaError{Stage: StageFeature}) {
		t.Error("schema rejects should regenerate")
	}
	if Retryable(llm.ErrInvalidRequest) {
		t.Error("invalid requests should not be retryable")
	}
}

func TestStripFences(t *testing.T) {
	in := "```json\n{\"spans\":[]}\n```"
	if got := stripFences(in); got != "{\"spans\":[]}" {
		t.Errorf("stripFences() = %q", got)
	}
	if got := stripFences("{\"a\":1}"); got != "{\"a\":1}" {
		t.Errorf("stripFences() plain = %q", got)
	}
}
