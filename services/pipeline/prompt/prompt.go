// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt generates execution prompts from Stories. A prompt
// points an implementing agent at its Story by id; it never copies the
// Story's content, so the Story file stays the single source of truth.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/derive"
)

// ErrMissingStoryID indicates a generation request for an unidentified
// Story.
var ErrMissingStoryID = errors.New("prompt: story id is empty")

// DefaultRole is the implementer role addressed by generated prompts.
const DefaultRole = "implementation engineer"

// Prompt is an execution artifact for one Story. Immutable once
// generated; re-running generation for the same Story produces an
// identical Prompt apart from GeneratedAt.
type Prompt struct {
	PromptID    string    `json:"prompt_id" yaml:"prompt_id"`
	StoryID     string    `json:"story_id" yaml:"story_id"`
	Content     string    `json:"content" yaml:"content"`
	Role        string    `json:"role" yaml:"role"`
	Task        string    `json:"task" yaml:"task"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// ID derives the prompt identifier from its Story.
func ID(storyID string) string {
	return storyID + "-prompt"
}

// Generator renders execution prompts. The zero value uses DefaultRole
// and time.Now.
type Generator struct {
	// Role overrides the implementer role in generated prompts.
	Role string

	// Now supplies the generation timestamp; nil means time.Now. Tests
	// use a fixed clock.
	Now func() time.Time
}

// Generate renders the Prompt for one Story. The content references
// the Story by id only and instructs the implementer to load it from
// the workspace.
func (g *Generator) Generate(story derive.Story) (Prompt, error) {
	if story.StoryID == "" {
		return Prompt{}, ErrMissingStoryID
	}

	role := g.Role
	if role == "" {
		role = DefaultRole
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	task := fmt.Sprintf("Implement story %s", story.StoryID)
	var b strings.Builder
	fmt.Fprintf(&b, "You are an %s.\n\n", role)
	fmt.Fprintf(&b, "Load story %s from the workspace and implement it exactly as written.\n", story.StoryID)
	b.WriteString("Satisfy every acceptance criterion listed in the story before marking it done.\n")
	b.WriteString("Cite the story's governance references in your change description.\n")

	return Prompt{
		PromptID:    ID(story.StoryID),
		StoryID:     story.StoryID,
		Content:     b.String(),
		Role:        role,
		Task:        task,
		GeneratedAt: now().UTC(),
	}, nil
}

// GenerateAll renders one Prompt per Story, in order.
func (g *Generator) GenerateAll(stories []derive.Story) ([]Prompt, error) {
	out := make([]Prompt, 0, len(stories))
	for _, s := range stories {
		p, err := g.Generate(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
