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

// Package athena executes generated SQL against Athena with
// poll-until-complete semantics and returns the tabular result.
package athena

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	atypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/pipeline"
	"github.com/your-org/opportunity-intelligence/internal/resilience"
)

// DefaultPollInterval is the status polling cadence.
const DefaultPollInterval = 1 * time.Second

// API is the subset of the Athena client used by the executor, narrowed so
// tests can substitute a fake.
type API interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

// Config locates the dataset and bounds execution.
type Config struct {
	Database       string
	Catalog        string
	OutputLocation string
	Workgroup      string
	PollInterval   time.Duration
}

// Client implements the pipeline's QueryExecutor against Athena.
type Client struct {
	api    API
	cfg    Config
	logger *zap.Logger
}

// NewClient creates an Athena-backed query executor.
func NewClient(api API, cfg Config, logger *zap.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, cfg: cfg, logger: logger}
}

// Execute submits the SQL, polls the execution until it reaches a terminal
// state and fetches the full result set. The caller bounds the wait through
// ctx; hitting the deadline yields a DatasetExecutionError with Timeout set.
func (c *Client) Execute(ctx context.Context, sql string) (*pipeline.ResultSet, error) {
	executionID, err := c.start(ctx, sql)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Athena query started",
		zap.String("execution_id", executionID),
		zap.Int("sql_length", len(sql)))

	if err := c.waitForCompletion(ctx, executionID); err != nil {
		return nil, err
	}

	return c.fetchResults(ctx, executionID)
}

func (c *Client) start(ctx context.Context, sql string) (string, error) {
	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &atypes.QueryExecutionContext{
			Database: aws.String(c.cfg.Database),
		},
	}
	if c.cfg.Catalog != "" {
		input.QueryExecutionContext.Catalog = aws.String(c.cfg.Catalog)
	}
	if c.cfg.OutputLocation != "" {
		input.ResultConfiguration = &atypes.ResultConfiguration{
			OutputLocation: aws.String(c.cfg.OutputLocation),
		}
	}
	if c.cfg.Workgroup != "" {
		input.WorkGroup = aws.String(c.cfg.Workgroup)
	}

	out, err := c.api.StartQueryExecution(ctx, input)
	if err != nil {
		return "", c.classifyError("start query execution", err)
	}
	return aws.ToString(out.QueryExecutionId), nil
}

func (c *Client) waitForCompletion(ctx context.Context, executionID string) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		out, err := c.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(executionID),
		})
		if err != nil {
			return c.classifyError("poll query status", err)
		}

		status := out.QueryExecution.Status
		switch status.State {
		case atypes.QueryExecutionStateSucceeded:
			return nil
		case atypes.QueryExecutionStateFailed, atypes.QueryExecutionStateCancelled:
			reason := aws.ToString(status.StateChangeReason)
			if reason == "" {
				reason = string(status.State)
			}
			return &pipeline.DatasetExecutionError{Reason: reason}
		}

		select {
		case <-ctx.Done():
			return &pipeline.DatasetExecutionError{
				Reason:  fmt.Sprintf("query %s still %s at deadline", executionID, status.State),
				Timeout: true,
				Err:     ctx.Err(),
			}
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchResults(ctx context.Context, executionID string) (*pipeline.ResultSet, error) {
	rs := &pipeline.ResultSet{}
	var nextToken *string

	for {
		out, err := c.api.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(executionID),
			NextToken:        nextToken,
		})
		if err != nil {
			return nil, c.classifyError("fetch query results", err)
		}

		if out.ResultSet != nil {
			for _, row := range out.ResultSet.Rows {
				values := make([]string, len(row.Data))
				for i, datum := range row.Data {
					values[i] = aws.ToString(datum.VarCharValue)
				}
				rs.Rows = append(rs.Rows, values)
			}
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	c.logger.Debug("Athena results fetched",
		zap.String("execution_id", executionID),
		zap.Int("row_count", len(rs.Rows)))

	return rs, nil
}

// classifyError marks Athena throttling as retryable and wraps everything
// else with the failed operation.
func (c *Client) classifyError(operation string, err error) error {
	var throttled *atypes.TooManyRequestsException
	if errors.As(err, &throttled) {
		return &resilience.RetryableError{
			StatusCode: 429,
			Message:    aws.ToString(throttled.Message),
			Err:        err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &pipeline.DatasetExecutionError{
			Reason:  operation + " exceeded the query timeout",
			Timeout: true,
			Err:     err,
		}
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}
