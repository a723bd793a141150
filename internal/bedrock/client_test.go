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

package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/pipeline"
	"github.com/your-org/opportunity-intelligence/internal/resilience"
)

type fakeConverseAPI struct {
	output *bedrockruntime.ConverseOutput
	err    error
	input  *bedrockruntime.ConverseInput
}

func (f *fakeConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func converseOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: text},
				},
			},
		},
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(100),
			OutputTokens: aws.Int32(50),
		},
	}
}

func TestConverseHappyPath(t *testing.T) {
	api := &fakeConverseAPI{output: converseOutput(`{"sql_query": "SELECT 1"}`)}
	client := NewClient(api, zap.NewNop())

	resp, err := client.Converse(context.Background(), pipeline.ConverseRequest{
		ModelID:     "anthropic.claude-v2",
		System:      "You generate SQL.",
		UserMessage: "Generate a query",
		MaxTokens:   1024,
		Temperature: 0.0,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"sql_query": "SELECT 1"}`, resp.Text)
	assert.Equal(t, 100, resp.InputTokens)
	assert.Equal(t, 50, resp.OutputTokens)

	require.NotNil(t, api.input)
	assert.Equal(t, "anthropic.claude-v2", aws.ToString(api.input.ModelId))
	require.Len(t, api.input.System, 1)
	require.Len(t, api.input.Messages, 1)
	assert.Equal(t, int32(1024), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestConverseRequiresModelID(t *testing.T) {
	client := NewClient(&fakeConverseAPI{}, zap.NewNop())
	_, err := client.Converse(context.Background(), pipeline.ConverseRequest{UserMessage: "hi"})
	assert.Error(t, err)
}

func TestConverseJoinsMultipleTextBlocks(t *testing.T) {
	api := &fakeConverseAPI{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: "first"},
					&brtypes.ContentBlockMemberText{Value: "second"},
				},
			},
		},
	}}
	client := NewClient(api, zap.NewNop())

	resp, err := client.Converse(context.Background(), pipeline.ConverseRequest{ModelID: "m", UserMessage: "x"})
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", resp.Text)
}

func TestConverseEmptyReplyIsError(t *testing.T) {
	api := &fakeConverseAPI{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: "   "},
			}},
		},
	}}
	client := NewClient(api, zap.NewNop())

	_, err := client.Converse(context.Background(), pipeline.ConverseRequest{ModelID: "m", UserMessage: "x"})
	assert.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}

func TestConverseErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		apiErr    error
		retryable bool
		status    int
	}{
		{
			name:      "throttling is retryable",
			apiErr:    &brtypes.ThrottlingException{Message: aws.String("rate exceeded")},
			retryable: true,
			status:    429,
		},
		{
			name:      "internal server error is retryable",
			apiErr:    &brtypes.InternalServerException{Message: aws.String("oops")},
			retryable: true,
			status:    500,
		},
		{
			name:      "model timeout is retryable",
			apiErr:    &brtypes.ModelTimeoutException{Message: aws.String("slow")},
			retryable: true,
			status:    504,
		},
		{
			name:      "model not ready is retryable",
			apiErr:    &brtypes.ModelNotReadyException{Message: aws.String("warming up")},
			retryable: true,
			status:    503,
		},
		{
			name:      "validation rejection is terminal",
			apiErr:    &brtypes.ValidationException{Message: aws.String("input too long")},
			retryable: false,
		},
		{
			name:      "unknown error is terminal",
			apiErr:    errors.New("dial tcp: connection refused"),
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(&fakeConverseAPI{err: tt.apiErr}, zap.NewNop())

			_, err := client.Converse(context.Background(), pipeline.ConverseRequest{ModelID: "m", UserMessage: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, resilience.IsRetryable(err))

			if tt.retryable {
				var retryable *resilience.RetryableError
				require.True(t, errors.As(err, &retryable))
				assert.Equal(t, tt.status, retryable.StatusCode)
			}
		})
	}
}
