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

// maxFeaturesPerEpic caps the Feature fan-out of one Epic.
const maxFeaturesPerEpic = 5

// FeatureStage derives Features for one Epic at a time. The document
// text is used only to verify the governance citations the model
// returns.
type FeatureStage struct {
	gen        Generator
	policy     retry.Policy
	sectionIDs map[string]struct{}
	log        *logging.Logger
}

// NewFeatureStage builds the feature stage. sectionIDs holds the
// document's valid section ids for reference checks.
func NewFeatureStage(gen Generator, policy retry.Policy, sectionIDs map[string]struct{}, log *logging.Logger) *FeatureStage {
	if log == nil {
		log = logging.Discard()
	}
	return &FeatureStage{gen: gen, policy: policy, sectionIDs: sectionIDs, log: log}
}

// Derive returns the gated Feature list for the Epic, Sub-Features
// flattened in after their parents. Any schema failure rejects the
// whole batch and regenerates it under the retry policy; partial
// feature sets are never returned. Batch atomicity keeps the
// positional ids stable.
func (s *FeatureStage) Derive(ctx context.Context, epic Epic, documentText string) ([]Feature, error) {
	var features []Feature
	_, err := retry.Do(ctx, s.policy, Retryable, func(ctx context.Context, attempt int) error {
		drafts, callErr := s.gen.GenerateFeatures(ctx, epic, documentText)
		if callErr != nil {
			return callErr
		}
		if len(drafts) > maxFeaturesPerEpic {
			return ErrTooManyFeatures
		}
		built, gateErr := s.assemble(epic, drafts, documentText)
		if gateErr != nil {
			return gateErr
		}
		features = built
		return nil
	})
	if err != nil {
		return nil, &DerivationError{Stage: StageFeature, ParentID: epic.EpicID, Err: err}
	}

	s.log.Debug("features derived", "epic_id", epic.EpicID, "count", len(features))
	return features, nil
}

// assemble assigns positional ids and gates every draft, parents
// before their sub-features.
func (s *FeatureStage) assemble(epic Epic, drafts []FeatureDraft, documentText string) ([]Feature, error) {
	features := make([]Feature, 0, len(drafts))
	for i, draft := range drafts {
		parent := Feature{
			FeatureID:            FeatureID(epic.EpicID, i+1),
			EpicID:               epic.EpicID,
			Title:                draft.Title,
			Description:          draft.Description,
			AcceptanceCriteria:   draft.AcceptanceCriteria,
			GovernanceReferences: draft.GovernanceReferences,
		}
		if err := CheckFeature(parent, documentText, s.sectionIDs); err != nil {
			return nil, err
		}
		features = append(features, parent)

		for j, sub := range draft.Subfeatures {
			child := Feature{
				FeatureID:            SubfeatureID(parent.FeatureID, j+1),
				EpicID:               epic.EpicID,
				ParentFeatureID:      parent.FeatureID,
				Title:                sub.Title,
				Description:          sub.Description,
				AcceptanceCriteria:   sub.AcceptanceCriteria,
				GovernanceReferences: sub.GovernanceReferences,
			}
			if err := CheckFeature(child, documentText, s.sectionIDs); err != nil {
				return nil, err
			}
			features = append(features, child)
		}
	}
	return features, nil
}
