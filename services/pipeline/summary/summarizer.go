// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/llm"
)

// Summarizer extracts the structured lists from one section's text.
// Implementations must not consult anything beyond the text passed in.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (Extraction, error)
}

const summarizeSystemPrompt = `You extract structured requirements from governance document sections.
You are given exactly one section. Use only the text provided.
Respond with four labeled blocks, one item per line, a dash before each item:

OBLIGATIONS:
- ...
ACTORS:
- ...
CONSTRAINTS:
- ...
REFERENCES:
- ...

If a block has no items, emit the label followed by "- none".`

// LLMSummarizer implements Summarizer on top of a chat model.
type LLMSummarizer struct {
	client    llm.Client
	maxTokens int
	opts      []llm.Option
}

// NewLLMSummarizer wraps a model client for section extraction. Extra
// options (request timeout, for example) apply to every call.
func NewLLMSummarizer(client llm.Client, opts ...llm.Option) *LLMSummarizer {
	return &LLMSummarizer{
		client:    client,
		maxTokens: 1024,
		opts:      opts,
	}
}

// Summarize sends the single section to the model and parses the
// labeled blocks out of the reply.
func (s *LLMSummarizer) Summarize(ctx context.Context, title, content string) (Extraction, error) {
	if strings.TrimSpace(content) == "" {
		return Extraction{}, ErrEmptySection
	}

	prompt := fmt.Sprintf("Section title: %s\n\nSection content:\n%s", title, content)
	opts := append([]llm.Option{
		llm.WithSystemPrompt(summarizeSystemPrompt),
		llm.WithMaxTokens(s.maxTokens),
		llm.WithTemperature(0),
	}, s.opts...)
	resp, err := s.client.Complete(ctx, prompt, opts...)
	if err != nil {
		return Extraction{}, err
	}
	return parseExtraction(resp.Content), nil
}

// parseExtraction reads the labeled block format. Unknown lines outside
// a block are ignored; "none" placeholder items are dropped.
func parseExtraction(text string) Extraction {
	var ex Extraction
	var current *[]string

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.EqualFold(trimmed, "OBLIGATIONS:"):
			current = &ex.Obligations
		case strings.EqualFold(trimmed, "ACTORS:"):
			current = &ex.Actors
		case strings.EqualFold(trimmed, "CONSTRAINTS:"):
			current = &ex.Constraints
		case strings.EqualFold(trimmed, "REFERENCES:"):
			current = &ex.References
		case strings.HasPrefix(trimmed, "-"):
			if current == nil {
				continue
			}
			item := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
			if item == "" || strings.EqualFold(item, "none") {
				continue
			}
			*current = append(*current, item)
		}
	}
	return ex
}
