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

// Package bedrock wraps the Bedrock runtime Converse API behind the
// pipeline's model-invoker interface.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/pipeline"
	"github.com/your-org/opportunity-intelligence/internal/resilience"
)

// throttleRetryDelay is the delay hint attached to throttling errors; the
// service does not report a retry-after for Converse.
const throttleRetryDelay = 2 * time.Second

// ConverseAPI is the subset of the Bedrock runtime client the wrapper uses,
// narrowed so tests can substitute a fake.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client invokes Bedrock chat completions for the pipeline.
type Client struct {
	api    ConverseAPI
	logger *zap.Logger
}

// NewClient creates a Bedrock model invoker.
func NewClient(api ConverseAPI, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, logger: logger}
}

// Converse sends one system message and one user message to the requested
// model and returns the concatenated text of the reply. Throttling and
// service errors are classified as retryable; validation rejections
// (including oversized requests) are terminal.
func (c *Client) Converse(ctx context.Context, req pipeline.ConverseRequest) (*pipeline.ConverseResponse, error) {
	if req.ModelID == "" {
		return nil, fmt.Errorf("model id is required")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.ModelID),
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: req.UserMessage},
				},
			},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
			Temperature: aws.Float32(req.Temperature),
		},
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.System},
		}
	}

	c.logger.Debug("Invoking Bedrock Converse",
		zap.String("model_id", req.ModelID),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Float64("temperature", float64(req.Temperature)),
		zap.Int("user_message_length", len(req.UserMessage)))

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return nil, c.classifyError(err)
	}

	message, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected converse output type %T", out.Output)
	}

	var parts []string
	for _, block := range message.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			parts = append(parts, text.Value)
		}
	}
	text := strings.Join(parts, "\n")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("model %s returned no text content", req.ModelID)
	}

	resp := &pipeline.ConverseResponse{Text: text}
	if out.Usage != nil {
		resp.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		resp.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}

	c.logger.Debug("Bedrock Converse completed",
		zap.String("model_id", req.ModelID),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
		zap.Int("response_length", len(resp.Text)))

	return resp, nil
}

// classifyError maps service errors onto the retry taxonomy. Throttling,
// internal and model-timeout errors are transient; validation errors (the
// service rejects oversized or malformed requests this way) are not.
func (c *Client) classifyError(err error) error {
	var throttled *brtypes.ThrottlingException
	if errors.As(err, &throttled) {
		return &resilience.RetryableError{
			StatusCode: 429,
			Message:    aws.ToString(throttled.Message),
			RetryAfter: throttleRetryDelay,
			Err:        err,
		}
	}

	var serverErr *brtypes.InternalServerException
	if errors.As(err, &serverErr) {
		return &resilience.RetryableError{
			StatusCode: 500,
			Message:    aws.ToString(serverErr.Message),
			Err:        err,
		}
	}

	var modelTimeout *brtypes.ModelTimeoutException
	if errors.As(err, &modelTimeout) {
		return &resilience.RetryableError{
			StatusCode: 504,
			Message:    aws.ToString(modelTimeout.Message),
			Err:        err,
		}
	}

	var notReady *brtypes.ModelNotReadyException
	if errors.As(err, &notReady) {
		return &resilience.RetryableError{
			StatusCode: 503,
			Message:    aws.ToString(notReady.Message),
			Err:        err,
		}
	}

	var validation *brtypes.ValidationException
	if errors.As(err, &validation) {
		return fmt.Errorf("bedrock rejected the request: %s: %w", aws.ToString(validation.Message), err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("bedrock error %s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
	}

	return fmt.Errorf("bedrock converse failed: %w", err)
}
