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

package prompts

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	batypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/resilience"
)

type fakePromptAPI struct {
	output *bedrockagent.GetPromptOutput
	err    error
}

func (f *fakePromptAPI) GetPrompt(ctx context.Context, params *bedrockagent.GetPromptInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetPromptOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func textVariant(name, modelID, text string) batypes.PromptVariant {
	return batypes.PromptVariant{
		Name:    aws.String(name),
		ModelId: aws.String(modelID),
		TemplateConfiguration: &batypes.PromptTemplateConfigurationMemberText{
			Value: batypes.TextPromptTemplateConfiguration{Text: aws.String(text)},
		},
	}
}

func TestGetTemplateTextVariant(t *testing.T) {
	api := &fakePromptAPI{output: &bedrockagent.GetPromptOutput{
		Variants: []batypes.PromptVariant{
			textVariant("prod", "anthropic.claude-v2", "Generate SQL for {{CustomerName}}"),
		},
	}}

	resolver := NewResolver(api, zap.NewNop())
	tmpl, err := resolver.GetTemplate(context.Background(), "query-prompt", "")
	require.NoError(t, err)

	assert.Equal(t, "query-prompt", tmpl.ID)
	assert.Equal(t, "prod", tmpl.Variant)
	assert.Equal(t, "anthropic.claude-v2", tmpl.ModelID)
	assert.Equal(t, "Generate SQL for {{CustomerName}}", tmpl.UserTemplate)
	assert.Empty(t, tmpl.System)
}

func TestGetTemplateSelectsNamedVariant(t *testing.T) {
	api := &fakePromptAPI{output: &bedrockagent.GetPromptOutput{
		Variants: []batypes.PromptVariant{
			textVariant("draft", "model-a", "draft template"),
			textVariant("prod", "model-b", "prod template"),
		},
	}}

	resolver := NewResolver(api, zap.NewNop())
	tmpl, err := resolver.GetTemplate(context.Background(), "query-prompt", "prod")
	require.NoError(t, err)

	assert.Equal(t, "prod", tmpl.Variant)
	assert.Equal(t, "prod template", tmpl.UserTemplate)
}

func TestGetTemplateUnknownVariantFallsBackToFirst(t *testing.T) {
	api := &fakePromptAPI{output: &bedrockagent.GetPromptOutput{
		Variants: []batypes.PromptVariant{
			textVariant("draft", "model-a", "draft template"),
		},
	}}

	resolver := NewResolver(api, zap.NewNop())
	tmpl, err := resolver.GetTemplate(context.Background(), "query-prompt", "missing")
	require.NoError(t, err)

	assert.Equal(t, "draft", tmpl.Variant)
}

func TestGetTemplateChatVariant(t *testing.T) {
	api := &fakePromptAPI{output: &bedrockagent.GetPromptOutput{
		Variants: []batypes.PromptVariant{
			{
				Name:    aws.String("prod"),
				ModelId: aws.String("model-c"),
				TemplateConfiguration: &batypes.PromptTemplateConfigurationMemberChat{
					Value: batypes.ChatPromptTemplateConfiguration{
						System: []batypes.SystemContentBlock{
							&batypes.SystemContentBlockMemberText{Value: "You are a SQL assistant."},
						},
						Messages: []batypes.Message{
							{
								Role: batypes.ConversationRoleUser,
								Content: []batypes.ContentBlock{
									&batypes.ContentBlockMemberText{Value: "Analyze {{oppName}}"},
								},
							},
						},
					},
				},
			},
		},
	}}

	resolver := NewResolver(api, zap.NewNop())
	tmpl, err := resolver.GetTemplate(context.Background(), "analysis-prompt", "")
	require.NoError(t, err)

	assert.Equal(t, "You are a SQL assistant.", tmpl.System)
	assert.Equal(t, "Analyze {{oppName}}", tmpl.UserTemplate)
}

func TestGetTemplateNotFound(t *testing.T) {
	api := &fakePromptAPI{err: &batypes.ResourceNotFoundException{Message: aws.String("no such prompt")}}

	resolver := NewResolver(api, zap.NewNop())
	_, err := resolver.GetTemplate(context.Background(), "missing-prompt", "")
	require.Error(t, err)

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing-prompt", notFound.PromptID)
}

func TestGetTemplateNoVariants(t *testing.T) {
	api := &fakePromptAPI{output: &bedrockagent.GetPromptOutput{}}

	resolver := NewResolver(api, zap.NewNop())
	_, err := resolver.GetTemplate(context.Background(), "empty-prompt", "")

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestGetTemplateEmptyUserTemplate(t *testing.T) {
	api := &fakePromptAPI{output: &bedrockagent.GetPromptOutput{
		Variants: []batypes.PromptVariant{
			textVariant("prod", "model-a", "   "),
		},
	}}

	resolver := NewResolver(api, zap.NewNop())
	_, err := resolver.GetTemplate(context.Background(), "blank-prompt", "")
	assert.Error(t, err)
}

func TestGetTemplateThrottlingIsRetryable(t *testing.T) {
	api := &fakePromptAPI{err: &batypes.ThrottlingException{Message: aws.String("too many requests")}}

	resolver := NewResolver(api, zap.NewNop())
	_, err := resolver.GetTemplate(context.Background(), "query-prompt", "")
	require.Error(t, err)

	assert.True(t, resilience.IsRetryable(err))
	var notFound *NotFoundError
	assert.False(t, errors.As(err, &notFound))
}

func TestGetTemplateInternalServerErrorIsRetryable(t *testing.T) {
	api := &fakePromptAPI{err: &batypes.InternalServerException{Message: aws.String("internal failure")}}

	resolver := NewResolver(api, zap.NewNop())
	_, err := resolver.GetTemplate(context.Background(), "query-prompt", "")
	require.Error(t, err)

	assert.True(t, resilience.IsRetryable(err))
}

func TestGetTemplateOtherErrorWrapped(t *testing.T) {
	api := &fakePromptAPI{err: errors.New("connection reset")}

	resolver := NewResolver(api, zap.NewNop())
	_, err := resolver.GetTemplate(context.Background(), "query-prompt", "")
	require.Error(t, err)

	var notFound *NotFoundError
	assert.False(t, errors.As(err, &notFound))
	assert.Contains(t, err.Error(), "query-prompt")
}
