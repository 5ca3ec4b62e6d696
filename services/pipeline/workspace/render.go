// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workspace

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/derive"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/prompt"
)

// Artifact files are markdown with a YAML front matter block carrying
// the machine-readable fields, same shape as persisted documents.

func renderFrontMatter(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		// All artifact types are plain structs; Marshal cannot fail on
		// them. Keep the file parseable regardless.
		return "---\n---\n\n"
	}
	return fmt.Sprintf("---\n%s---\n\n", data)
}

func renderList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func renderEpic(e derive.Epic) string {
	var b strings.Builder
	b.WriteString(renderFrontMatter(struct {
		EpicID         string   `yaml:"epic_id"`
		SourceSections []string `yaml:"source_sections"`
	}{e.EpicID, e.SourceSections}))
	fmt.Fprintf(&b, "# Epic %s\n\n%s\n\n", e.EpicID, e.Objective)
	renderList(&b, "Success Criteria", e.SuccessCriteria)
	return b.String()
}

func renderFeature(f derive.Feature) string {
	var b strings.Builder
	b.WriteString(renderFrontMatter(struct {
		FeatureID       string `yaml:"feature_id"`
		EpicID          string `yaml:"epic_id"`
		ParentFeatureID string `yaml:"parent_feature_id,omitempty"`
	}{f.FeatureID, f.EpicID, f.ParentFeatureID}))
	fmt.Fprintf(&b, "# %s\n\n%s\n\n", f.Title, f.Description)
	renderList(&b, "Acceptance Criteria", f.AcceptanceCriteria)
	renderList(&b, "Governance References", f.GovernanceReferences)
	return b.String()
}

func renderStory(s derive.Story) string {
	var b strings.Builder
	b.WriteString(renderFrontMatter(struct {
		StoryID   string `yaml:"story_id"`
		FeatureID string `yaml:"feature_id"`
		EpicID    string `yaml:"epic_id"`
	}{s.StoryID, s.FeatureID, s.EpicID}))
	fmt.Fprintf(&b, "# Story %s\n\nAs a %s, I want to %s, so that I can %s.\n\n",
		s.StoryID, s.Role, s.Capability, s.Benefit)
	renderList(&b, "Acceptance Criteria", s.AcceptanceCriteria)
	renderList(&b, "Governance References", s.GovernanceReferences)
	return b.String()
}

func renderPrompt(p prompt.Prompt) string {
	var b strings.Builder
	// No timestamp in the file: re-deriving an unchanged story must
	// reproduce identical bytes. Generation time lives in the registry
	// record.
	b.WriteString(renderFrontMatter(struct {
		PromptID string `yaml:"prompt_id"`
		StoryID  string `yaml:"story_id"`
		Role     string `yaml:"role"`
		Task     string `yaml:"task"`
	}{p.PromptID, p.StoryID, p.Role, p.Task}))
	b.WriteString(p.Content)
	return b.String()
}
