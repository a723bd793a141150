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

// Package prompts resolves versioned prompt templates from Bedrock prompt
// management and fills their named placeholders.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	batypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/resilience"
)

// Template is a resolved prompt: system instructions, a user-message
// template with {{name}} placeholders, and the model it targets.
type Template struct {
	ID           string
	Variant      string
	ModelID      string
	System       string
	UserTemplate string
}

// Store is the prompt store interface consumed by the pipeline. Templates
// are fetched fresh per request; caching is a collaborator concern.
type Store interface {
	GetTemplate(ctx context.Context, promptID, variant string) (*Template, error)
}

// NotFoundError is returned when the backing store has no prompt with the
// requested identifier. It is pipeline-fatal: without a template nothing can
// be generated.
type NotFoundError struct {
	PromptID string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("prompt %q not found", e.PromptID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// GetPromptAPI is the subset of the Bedrock Agent client used by the
// resolver, narrowed so tests can substitute a fake.
type GetPromptAPI interface {
	GetPrompt(ctx context.Context, params *bedrockagent.GetPromptInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetPromptOutput, error)
}

// Resolver fetches prompt templates from Bedrock prompt management.
type Resolver struct {
	api    GetPromptAPI
	logger *zap.Logger
}

// NewResolver creates a resolver backed by the given Bedrock Agent client.
func NewResolver(api GetPromptAPI, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{api: api, logger: logger}
}

// GetTemplate fetches the prompt with the given identifier and selects the
// named variant (or the first variant when variant is empty). Both TEXT and
// CHAT template configurations are supported: a TEXT template becomes the
// user template with no system text, a CHAT template contributes its system
// blocks and first user message.
func (r *Resolver) GetTemplate(ctx context.Context, promptID, variant string) (*Template, error) {
	out, err := r.api.GetPrompt(ctx, &bedrockagent.GetPromptInput{
		PromptIdentifier: aws.String(promptID),
	})
	if err != nil {
		var notFound *batypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, &NotFoundError{PromptID: promptID, Err: err}
		}
		var throttled *batypes.ThrottlingException
		if errors.As(err, &throttled) {
			return nil, &resilience.RetryableError{
				StatusCode: 429,
				Message:    aws.ToString(throttled.Message),
				Err:        err,
			}
		}
		var serverErr *batypes.InternalServerException
		if errors.As(err, &serverErr) {
			return nil, &resilience.RetryableError{
				StatusCode: 500,
				Message:    aws.ToString(serverErr.Message),
				Err:        err,
			}
		}
		return nil, fmt.Errorf("failed to fetch prompt %q: %w", promptID, err)
	}

	if len(out.Variants) == 0 {
		return nil, &NotFoundError{PromptID: promptID, Err: fmt.Errorf("prompt has no variants")}
	}

	chosen := out.Variants[0]
	if variant != "" {
		found := false
		for _, v := range out.Variants {
			if aws.ToString(v.Name) == variant {
				chosen = v
				found = true
				break
			}
		}
		if !found {
			r.logger.Warn("Prompt variant not found, using first variant",
				zap.String("prompt_id", promptID),
				zap.String("requested_variant", variant),
				zap.String("selected_variant", aws.ToString(chosen.Name)))
		}
	}

	tmpl := &Template{
		ID:      promptID,
		Variant: aws.ToString(chosen.Name),
		ModelID: aws.ToString(chosen.ModelId),
	}

	switch cfg := chosen.TemplateConfiguration.(type) {
	case *batypes.PromptTemplateConfigurationMemberText:
		tmpl.UserTemplate = aws.ToString(cfg.Value.Text)
	case *batypes.PromptTemplateConfigurationMemberChat:
		var system []string
		for _, block := range cfg.Value.System {
			if text, ok := block.(*batypes.SystemContentBlockMemberText); ok {
				system = append(system, text.Value)
			}
		}
		tmpl.System = strings.Join(system, "\n")
		for _, msg := range cfg.Value.Messages {
			if msg.Role != batypes.ConversationRoleUser {
				continue
			}
			var parts []string
			for _, block := range msg.Content {
				if text, ok := block.(*batypes.ContentBlockMemberText); ok {
					parts = append(parts, text.Value)
				}
			}
			tmpl.UserTemplate = strings.Join(parts, "\n")
			break
		}
	default:
		return nil, fmt.Errorf("prompt %q has unsupported template configuration", promptID)
	}

	if strings.TrimSpace(tmpl.UserTemplate) == "" {
		return nil, fmt.Errorf("prompt %q resolved to an empty user template", promptID)
	}

	r.logger.Debug("Prompt template resolved",
		zap.String("prompt_id", promptID),
		zap.String("variant", tmpl.Variant),
		zap.String("model_id", tmpl.ModelID),
		zap.Int("system_length", len(tmpl.System)),
		zap.Int("template_length", len(tmpl.UserTemplate)))

	return tmpl, nil
}
