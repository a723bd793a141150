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

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:  time.Millisecond,
		MaxRetries: 3,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestWithExponentialBackoffSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := WithExponentialBackoff(context.Background(), zap.NewNop(), fastConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoffRetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := WithExponentialBackoff(context.Background(), zap.NewNop(), fastConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &RetryableError{StatusCode: 429, Message: "throttled"}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithExponentialBackoffStopsOnTerminalError(t *testing.T) {
	calls := 0
	terminal := errors.New("bad input")
	err := WithExponentialBackoff(context.Background(), zap.NewNop(), fastConfig(), func(ctx context.Context) error {
		calls++
		return terminal
	})

	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoffExhaustsRetries(t *testing.T) {
	calls := 0
	err := WithExponentialBackoff(context.Background(), zap.NewNop(), fastConfig(), func(ctx context.Context) error {
		calls++
		return &RetryableError{StatusCode: 503, Message: "unavailable"}
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls) // initial attempt plus three retries
	assert.Contains(t, err.Error(), "after 4 attempts")

	var retryable *RetryableError
	assert.True(t, errors.As(err, &retryable))
}

func TestWithExponentialBackoffHonorsRetryAfterHint(t *testing.T) {
	hint := 60 * time.Millisecond

	calls := 0
	start := time.Now()
	err := WithExponentialBackoff(context.Background(), zap.NewNop(), fastConfig(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &RetryableError{StatusCode: 429, Message: "throttled", RetryAfter: hint}
		}
		return nil
	})
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, elapsed, hint, "retry fired before the service's retry-after hint")
}

func TestWithExponentialBackoffHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := WithExponentialBackoff(ctx, zap.NewNop(), BackoffConfig{
		BaseDelay:  time.Hour,
		MaxRetries: 3,
		Multiplier: 2.0,
	}, func(ctx context.Context) error {
		calls++
		cancel()
		return &RetryableError{StatusCode: 429, Message: "throttled"}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoffCustomRetryOn(t *testing.T) {
	sentinel := errors.New("retry me")
	cfg := fastConfig()
	cfg.RetryOnFunc = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	err := WithExponentialBackoff(context.Background(), zap.NewNop(), cfg, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return sentinel
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))

	assert.True(t, IsRetryable(&RetryableError{StatusCode: 429}))

	wrapped := errors.Join(errors.New("outer"), &RetryableError{StatusCode: 503})
	assert.True(t, IsRetryable(wrapped))
}
