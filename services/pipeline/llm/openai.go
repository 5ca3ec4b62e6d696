// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/muse-pipeline/pkg/logging"
)

// OpenAIClient implements Client on the OpenAI chat completion API.
//
// A token-bucket rate limiter smooths request bursts below the
// backend's rate limit so the worker pool can fan out without tripping
// 429s on every run.
//
// Thread Safety: safe for concurrent use.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewOpenAIClient creates a client from the environment.
//
// OPENAI_API_KEY is required (falling back to the container secret at
// /run/secrets/openai_api_key). The model name comes from the pipeline
// configuration.
func NewOpenAIClient(model string, requestsPerSecond float64, logger *logging.Logger) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		data, err := os.ReadFile(secretPath)
		if err != nil {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY not set and secret missing at %s",
				ErrInvalidRequest, secretPath)
		}
		apiKey = strings.TrimSpace(string(data))
		logger.Info("read OpenAI API key from container secret")
	}
	if model == "" {
		model = openai.GPT4oMini
		logger.Warn("model not configured, defaulting", "model", model)
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}

	logger.Info("initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}, nil
}

// Model returns the configured model identity.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, opts ...Option) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidRequest)
	}

	maxTokens, temperature, timeout, system := ApplyOptions(opts...)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               c.model,
		Messages:            messages,
		Temperature:         temperature,
		MaxCompletionTokens: maxTokens,
	})
	if err != nil {
		return nil, c.classify(err, ctx)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.logger.Warn("OpenAI returned no usable choices", "model", c.model)
		return nil, ErrEmptyCompletion
	}

	choice := resp.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// classify maps transport failures onto the package's sentinel errors.
func (c *OpenAIClient) classify(err error, ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrServerError, err)
		case apiErr.HTTPStatusCode >= 400:
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	// Network-level failures are treated as retryable server trouble.
	return fmt.Errorf("%w: %v", ErrServerError, err)
}
