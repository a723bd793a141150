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

package openaicompat

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/resilience"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "", zap.NewNop())
	assert.Error(t, err)

	client, err := NewClient("sk-test", "", zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNewClientCustomEndpoint(t *testing.T) {
	client, err := NewClient("sk-test", "http://localhost:11434/v1", zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestClassifyError(t *testing.T) {
	client, err := NewClient("sk-test", "", zap.NewNop())
	require.NoError(t, err)

	retryAfter := 3

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "rate limit is retryable",
			err:       &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limited", RetryAfter: &retryAfter},
			retryable: true,
		},
		{
			name:      "server error is retryable",
			err:       &openai.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "bad gateway"},
			retryable: true,
		},
		{
			name:      "bad request is terminal",
			err:       &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "context too long"},
			retryable: false,
		},
		{
			name:      "plain error is terminal",
			err:       errors.New("connection refused"),
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := client.classifyError(tt.err)
			assert.Equal(t, tt.retryable, resilience.IsRetryable(classified))
		})
	}
}

func TestClassifyErrorCarriesRetryAfter(t *testing.T) {
	client, err := NewClient("sk-test", "", zap.NewNop())
	require.NoError(t, err)

	retryAfter := 7
	classified := client.classifyError(&openai.APIError{
		HTTPStatusCode: http.StatusTooManyRequests,
		Message:        "rate limited",
		RetryAfter:     &retryAfter,
	})

	var retryable *resilience.RetryableError
	require.True(t, errors.As(classified, &retryable))
	assert.Equal(t, 7*time.Second, retryable.RetryAfter)
}
