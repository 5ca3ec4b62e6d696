// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package derive

import (
	"context"

	"github.com/AleutianAI/muse-pipeline/pkg/logging"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/retry"
)

// Story fan-out bounds per Feature.
const (
	minStoriesPerFeature = 1
	maxStoriesPerFeature = 5
)

// StoryStage derives Stories for one Feature at a time.
type StoryStage struct {
	gen        Generator
	policy     retry.Policy
	sectionIDs map[string]struct{}
	log        *logging.Logger
}

// NewStoryStage builds the story stage.
func NewStoryStage(gen Generator, policy retry.Policy, sectionIDs map[string]struct{}, log *logging.Logger) *StoryStage {
	if log == nil {
		log = logging.Discard()
	}
	return &StoryStage{gen: gen, policy: policy, sectionIDs: sectionIDs, log: log}
}

// Derive returns the gated Story list for the Feature. The batch is
// rejected whole on any schema failure or a count outside 1-5; schema
// rejects regenerate the batch under the retry policy.
func (s *StoryStage) Derive(ctx context.Context, feature Feature, documentText string) ([]Story, error) {
	var stories []Story
	_, err := retry.Do(ctx, s.policy, Retryable, func(ctx context.Context, attempt int) error {
		drafts, callErr := s.gen.GenerateStories(ctx, feature, documentText)
		if callErr != nil {
			return callErr
		}
		if len(drafts) < minStoriesPerFeature || len(drafts) > maxStoriesPerFeature {
			return ErrStoryCount
		}

		built := make([]Story, 0, len(drafts))
		for i, draft := range drafts {
			story := Story{
				StoryID:              StoryID(feature.FeatureID, i+1),
				FeatureID:            feature.FeatureID,
				EpicID:               feature.EpicID,
				Role:                 draft.Role,
				Capability:           draft.Capability,
				Benefit:              draft.Benefit,
				AcceptanceCriteria:   draft.AcceptanceCriteria,
				GovernanceReferences: draft.GovernanceReferences,
			}
			if err := CheckStory(story, documentText, s.sectionIDs); err != nil {
				return err
			}
			built = append(built, story)
		}
		stories = built
		return nil
	})
	if err != nil {
		return nil, &DerivationError{Stage: StageStory, ParentID: feature.FeatureID, Err: err}
	}

	s.log.Debug("stories derived", "feature_id", feature.FeatureID, "count", len(stories))
	return stories, nil
}
