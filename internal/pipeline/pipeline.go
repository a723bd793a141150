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

package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/metrics"
	"github.com/your-org/opportunity-intelligence/internal/prompts"
	"github.com/your-org/opportunity-intelligence/internal/resilience"
)

const (
	// DefaultQueryMaxTokens bounds the query-generation model output.
	DefaultQueryMaxTokens = 1024
	// DefaultAnalysisMaxTokens bounds the long-form analysis output.
	DefaultAnalysisMaxTokens = 4096
)

// Stage names used in logs and metrics.
const (
	StagePromptResolution   = "prompt_resolution"
	StageQueryGeneration    = "query_generation"
	StageDatasetExecution   = "dataset_execution"
	StageAnalysisGeneration = "analysis_generation"
)

// Options configures a Pipeline beyond its collaborators.
type Options struct {
	QueryPromptID     string
	AnalysisPromptID  string
	PromptVariant     string
	QueryMaxTokens    int
	AnalysisMaxTokens int
	Retry             resilience.BackoffConfig
}

// Pipeline drives the opportunity-analysis flow. It is stateless across
// invocations; concurrent Analyze calls are independent.
type Pipeline struct {
	prompts  prompts.Store
	invoker  ModelInvoker
	executor QueryExecutor
	logger   *zap.Logger

	queryPromptID     string
	analysisPromptID  string
	promptVariant     string
	queryMaxTokens    int
	analysisMaxTokens int
	retry             resilience.BackoffConfig
}

// New constructs a pipeline with injected collaborators. Zero-valued options
// fall back to defaults.
func New(store prompts.Store, invoker ModelInvoker, executor QueryExecutor, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueryMaxTokens <= 0 {
		opts.QueryMaxTokens = DefaultQueryMaxTokens
	}
	if opts.AnalysisMaxTokens <= 0 {
		opts.AnalysisMaxTokens = DefaultAnalysisMaxTokens
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.BaseDelay == 0 {
		opts.Retry = resilience.DefaultBackoffConfig()
	}

	return &Pipeline{
		prompts:           store,
		invoker:           invoker,
		executor:          executor,
		logger:            logger,
		queryPromptID:     opts.QueryPromptID,
		analysisPromptID:  opts.AnalysisPromptID,
		promptVariant:     opts.PromptVariant,
		queryMaxTokens:    opts.QueryMaxTokens,
		analysisMaxTokens: opts.AnalysisMaxTokens,
		retry:             opts.Retry,
	}
}

// Analyze runs the full pipeline for one opportunity. Stages run strictly
// in sequence. Stage failures with a defined fallback produce a complete
// response with FallbackMode set; only input validation and prompt
// resolution fail the call outright.
func (p *Pipeline) Analyze(ctx context.Context, input OpportunityInput, settings Settings) (*Response, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	settings = normalizeSettings(settings)

	start := time.Now()
	fallbackMode := false
	var fallbackReasons []string

	queryTmpl, err := p.resolveTemplate(ctx, p.queryPromptID)
	if err != nil {
		metrics.AnalyzeRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	sql := p.runQueryGeneration(ctx, input, queryTmpl, &fallbackMode, &fallbackReasons)
	records := p.runDatasetExecution(ctx, sql, settings, &fallbackMode, &fallbackReasons)

	serialized := SerializeRecords(records)
	payload, truncated := ShapePayload(serialized, settings.TruncationLimit, settings.EnableTruncation)

	analysisTmpl, err := p.resolveTemplate(ctx, p.analysisPromptID)
	if err != nil {
		metrics.AnalyzeRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	sections, parsedMetrics, analysisText := p.runAnalysisGeneration(ctx, input, payload, analysisTmpl, settings, &fallbackMode, &fallbackReasons)

	resp := assemble(assembleInput{
		sections:       sections,
		metrics:        parsedMetrics,
		sql:            sql,
		rawDataset:     serialized,
		rawAnalysis:    analysisText,
		rowCount:       len(records),
		payloadBytes:   len(payload),
		truncated:      truncated,
		settings:       settings,
		fallbackMode:   fallbackMode,
		fallbackReason: strings.Join(fallbackReasons, "; "),
	})

	outcome := "success"
	if fallbackMode {
		outcome = "fallback"
	}
	metrics.AnalyzeRequests.WithLabelValues(outcome).Inc()
	metrics.AnalyzeDuration.Observe(time.Since(start).Seconds())

	p.logger.Info("Opportunity analysis completed",
		zap.String("customer", input.CustomerName),
		zap.String("region", input.Region),
		zap.Int("row_count", len(records)),
		zap.Bool("truncated", truncated),
		zap.Bool("fallback_mode", fallbackMode),
		zap.Duration("duration", time.Since(start)))

	return resp, nil
}

// resolveTemplate fetches a prompt template, retrying transient store
// failures. A missing prompt is fatal and never falls back.
func (p *Pipeline) resolveTemplate(ctx context.Context, promptID string) (*prompts.Template, error) {
	stageStart := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StagePromptResolution).Observe(time.Since(stageStart).Seconds())
	}()

	var tmpl *prompts.Template
	err := p.withRetry(ctx, func(ctx context.Context) error {
		var stageErr error
		tmpl, stageErr = p.prompts.GetTemplate(ctx, promptID, p.promptVariant)
		return stageErr
	})
	if err != nil {
		p.logger.Error("Prompt resolution failed",
			zap.String("prompt_id", promptID),
			zap.Error(err))
		return nil, err
	}
	return tmpl, nil
}

func (p *Pipeline) runQueryGeneration(ctx context.Context, input OpportunityInput, tmpl *prompts.Template, fallbackMode *bool, reasons *[]string) string {
	stageStart := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageQueryGeneration).Observe(time.Since(stageStart).Seconds())
	}()

	var sql string
	err := p.withRetry(ctx, func(ctx context.Context) error {
		var stageErr error
		sql, stageErr = p.generateQuery(ctx, input, tmpl)
		return stageErr
	})
	if err != nil {
		p.logger.Warn("Query generation failed, substituting fallback SQL", zap.Error(err))
		metrics.FallbackTotal.WithLabelValues(StageQueryGeneration).Inc()
		*fallbackMode = true
		*reasons = append(*reasons, "query generation: "+err.Error())
		return FallbackSQL
	}
	return sql
}

func (p *Pipeline) runDatasetExecution(ctx context.Context, sql string, settings Settings, fallbackMode *bool, reasons *[]string) []Record {
	stageStart := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageDatasetExecution).Observe(time.Since(stageStart).Seconds())
	}()

	var records []Record
	err := p.withRetry(ctx, func(ctx context.Context) error {
		var stageErr error
		records, stageErr = p.executeDataset(ctx, sql, settings)
		return stageErr
	})
	if err != nil {
		p.logger.Warn("Dataset execution failed, continuing with empty dataset", zap.Error(err))
		metrics.FallbackTotal.WithLabelValues(StageDatasetExecution).Inc()
		*fallbackMode = true
		*reasons = append(*reasons, "dataset execution: "+err.Error())
		return []Record{}
	}
	return records
}

func (p *Pipeline) runAnalysisGeneration(ctx context.Context, input OpportunityInput, payload string, tmpl *prompts.Template, settings Settings, fallbackMode *bool, reasons *[]string) (Sections, Metrics, string) {
	stageStart := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageAnalysisGeneration).Observe(time.Since(stageStart).Seconds())
	}()

	var analysisText string
	err := p.withRetry(ctx, func(ctx context.Context) error {
		var stageErr error
		analysisText, stageErr = p.generateAnalysis(ctx, input, payload, tmpl, settings)
		return stageErr
	})
	if err != nil {
		p.logger.Warn("Analysis generation failed, substituting fallback analysis", zap.Error(err))
		metrics.FallbackTotal.WithLabelValues(StageAnalysisGeneration).Inc()
		*fallbackMode = true
		*reasons = append(*reasons, "analysis generation: "+err.Error())
		sections, m := fallbackAnalysis(input)
		return sections, m, ""
	}

	sections, m := ParseAnalysis(analysisText)
	return sections, m, analysisText
}

// withRetry applies the pipeline's backoff policy to one stage invocation.
// Only errors marked transient by the clients are retried; parse and
// validation failures surface immediately.
func (p *Pipeline) withRetry(ctx context.Context, fn resilience.RetryFunc) error {
	cfg := p.retry
	cfg.RetryOnFunc = resilience.IsRetryable
	return resilience.WithExponentialBackoff(ctx, p.logger, cfg, fn)
}

// normalizeSettings fills zero-valued numeric fields with the pipeline
// defaults. EnableTruncation is taken as given: a false bool is
// indistinguishable from an unset one, so callers wanting the default of
// true must start from DefaultSettings().
func normalizeSettings(s Settings) Settings {
	defaults := DefaultSettings()
	if s.SQLQueryLimit <= 0 {
		s.SQLQueryLimit = defaults.SQLQueryLimit
	}
	if s.TruncationLimit <= 0 {
		s.TruncationLimit = defaults.TruncationLimit
	}
	if s.QueryTimeout <= 0 {
		s.QueryTimeout = defaults.QueryTimeout
	}
	if s.AnalysisTimeout <= 0 {
		s.AnalysisTimeout = defaults.AnalysisTimeout
	}
	return s
}
