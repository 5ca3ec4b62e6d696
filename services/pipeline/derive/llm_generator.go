// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package derive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/llm"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/summary"
)

const (
	boundarySystemPrompt = `You group governance document sections into thematic spans for planning.
Given section summaries, propose between 1 and 6 spans. Every section id must
appear in exactly one span. Respond with JSON only:
{"spans":[{"title":"...","section_ids":["..."]}]}`

	epicSystemPrompt = `You derive one planning Epic from governance section summaries.
Use only the summaries provided. Respond with JSON only:
{"objective":"...","success_criteria":["..."]}
Each success criterion must be concrete and measurable.`

	featureSystemPrompt = `You derive planning Features for exactly one Epic.
Return between 1 and 5 features. Cite the governance document: each feature's
governance_references must quote identifiers or phrases that appear verbatim in
the document text. A feature may carry subfeatures instead of being
implemented directly. Respond with JSON only:
{"features":[{"title":"...","description":"...","acceptance_criteria":["..."],
"governance_references":["..."],"subfeatures":[]}]}`

	storySystemPrompt = `You derive user Stories for exactly one planning Feature.
Return between 1 and 5 stories as role / capability / benefit. Cite the
governance document in governance_references. Respond with JSON only:
{"stories":[{"role":"...","capability":"...","benefit":"...",
"acceptance_criteria":["..."],"governance_references":["..."]}]}`
)

// LLMGenerator implements Generator on top of a chat model, one JSON
// request per stage call.
type LLMGenerator struct {
	client    llm.Client
	maxTokens int
	opts      []llm.Option
}

// NewLLMGenerator wraps a model client for artifact derivation. Extra
// options (request timeout, for example) apply to every call.
func NewLLMGenerator(client llm.Client, opts ...llm.Option) *LLMGenerator {
	return &LLMGenerator{
		client:    client,
		maxTokens: 4096,
		opts:      opts,
	}
}

func (g *LLMGenerator) complete(ctx context.Context, system, prompt string, out any) error {
	callOpts := append([]llm.Option{
		llm.WithSystemPrompt(system),
		llm.WithMaxTokens(g.maxTokens),
		llm.WithTemperature(0.2),
	}, g.opts...)
	resp, err := g.client.Complete(ctx, prompt, callOpts...)
	if err != nil {
		return err
	}
	payload := stripFences(resp.Content)
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCompletion, err)
	}
	return nil
}

// ProposeBoundaries implements Generator.
func (g *LLMGenerator) ProposeBoundaries(ctx context.Context, summaries []summary.SectionSummary) ([]Span, error) {
	var parsed struct {
		Spans []Span `json:"spans"`
	}
	if err := g.complete(ctx, boundarySystemPrompt, renderSummaries(summaries), &parsed); err != nil {
		return nil, err
	}
	return parsed.Spans, nil
}

// GenerateEpic implements Generator.
func (g *LLMGenerator) GenerateEpic(ctx context.Context, summaries []summary.SectionSummary, focus string) (EpicDraft, error) {
	var b strings.Builder
	if focus != "" {
		fmt.Fprintf(&b, "Focus this span only: %s\n\n", focus)
	}
	b.WriteString(renderSummaries(summaries))

	var draft EpicDraft
	if err := g.complete(ctx, epicSystemPrompt, b.String(), &draft); err != nil {
		return EpicDraft{}, err
	}
	return draft, nil
}

// GenerateFeatures implements Generator.
func (g *LLMGenerator) GenerateFeatures(ctx context.Context, epic Epic, documentText string) ([]FeatureDraft, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Epic %s\nObjective: %s\nSuccess criteria:\n", epic.EpicID, epic.Objective)
	for _, c := range epic.SuccessCriteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	fmt.Fprintf(&b, "\nGovernance document (for citation only):\n%s", documentText)

	var parsed struct {
		Features []FeatureDraft `json:"features"`
	}
	if err := g.complete(ctx, featureSystemPrompt, b.String(), &parsed); err != nil {
		return nil, err
	}
	return parsed.Features, nil
}

// GenerateStories implements Generator.
func (g *LLMGenerator) GenerateStories(ctx context.Context, feature Feature, documentText string) ([]StoryDraft, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Feature %s\nTitle: %s\nDescription: %s\nAcceptance criteria:\n",
		feature.FeatureID, feature.Title, feature.Description)
	for _, c := range feature.AcceptanceCriteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	fmt.Fprintf(&b, "\nGovernance document (for citation only):\n%s", documentText)

	var parsed struct {
		Stories []StoryDraft `json:"stories"`
	}
	if err := g.complete(ctx, storySystemPrompt, b.String(), &parsed); err != nil {
		return nil, err
	}
	return parsed.Stories, nil
}

// renderSummaries flattens section summaries into the prompt form.
func renderSummaries(summaries []summary.SectionSummary) string {
	var b strings.Builder
	for _, s := range summaries {
		fmt.Fprintf(&b, "Section %s\n", s.SectionID)
		writeList(&b, "Obligations", s.Obligations)
		writeList(&b, "Actors", s.Actors)
		writeList(&b, "Constraints", s.Constraints)
		writeList(&b, "References", s.References)
		b.WriteString("\n")
	}
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s:\n", label)
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

// stripFences removes a markdown code fence wrapper if the model added
// one around its JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
