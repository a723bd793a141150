// Copyright 2025 Partner Opportunity Intelligence Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package openaicompat provides a model invoker backed by any
// OpenAI-compatible chat-completion endpoint, used for local development
// when Bedrock is unavailable.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/pipeline"
	"github.com/your-org/opportunity-intelligence/internal/resilience"
)

// Client wraps the go-openai client behind the pipeline's model-invoker
// interface.
type Client struct {
	client *openai.Client
	logger *zap.Logger
}

// NewClient creates a chat-completion invoker. baseURL may point at any
// OpenAI-compatible endpoint; empty means the default API.
func NewClient(apiKey, baseURL string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}, nil
}

// Converse maps the pipeline's converse request onto a chat completion:
// one system message plus one user message.
func (c *Client) Converse(ctx context.Context, req pipeline.ConverseRequest) (*pipeline.ConverseResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserMessage,
	})

	c.logger.Debug("Creating chat completion",
		zap.String("model", req.ModelID),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Float64("temperature", float64(req.Temperature)))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.ModelID,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, c.classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from model %s", req.ModelID)
	}

	return &pipeline.ConverseResponse{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// classifyError marks rate-limit and server errors as retryable; everything
// else is terminal.
func (c *Client) classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			retryAfter := time.Duration(0)
			if apiErr.RetryAfter != nil {
				retryAfter = time.Duration(*apiErr.RetryAfter) * time.Second
			}
			return &resilience.RetryableError{
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
				RetryAfter: retryAfter,
				Err:        err,
			}
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return &resilience.RetryableError{
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
				Err:        err,
			}
		default:
			return fmt.Errorf("chat completion error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
	}
	return fmt.Errorf("chat completion failed: %w", err)
}
