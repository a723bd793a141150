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

package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/config"
	"github.com/your-org/opportunity-intelligence/internal/health"
	"github.com/your-org/opportunity-intelligence/internal/history"
	"github.com/your-org/opportunity-intelligence/internal/pipeline"
	"github.com/your-org/opportunity-intelligence/internal/prompts"
	"github.com/your-org/opportunity-intelligence/internal/resilience"
)

// Per-request override headers. Values out of range fall back to the
// configured defaults.
const (
	headerSQLQueryLimit    = "x-sql-query-limit"
	headerTruncationLimit  = "x-truncation-limit"
	headerEnableTruncation = "x-enable-truncation"
	headerRequestID        = "X-Request-ID"
)

const requestIDKey = "request_id"

// fallbackRateWindow is the trailing invocation count over which the
// history endpoint reports the fallback rate.
const fallbackRateWindow = 100

type server struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	history  *history.Store
	health   *health.Manager
	logger   *zap.Logger
}

func newServer(cfg *config.Config, p *pipeline.Pipeline, store *history.Store, healthMgr *health.Manager, logger *zap.Logger) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &server{
		cfg:      cfg,
		pipeline: p,
		history:  store,
		health:   healthMgr,
		logger:   logger,
	}
}

func (s *server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestIDMiddleware())

	router.POST("/api/analyze", s.handleAnalyze)
	router.GET("/api/history", s.handleHistory)
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// requestIDMiddleware attaches a request id to every request, reusing the
// caller's X-Request-ID when present.
func (s *server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(headerRequestID, requestID)
		c.Next()
	}
}

// handleAnalyze runs the full analysis pipeline for one opportunity. A
// response with fallbackMode set is still a 200; only invalid input, missing
// prompts and infrastructure failures surface as errors.
func (s *server) handleAnalyze(c *gin.Context) {
	requestID := c.GetString(requestIDKey)
	startTime := time.Now()

	var input pipeline.OpportunityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		s.logger.Warn("Failed to parse analyze request",
			zap.String(requestIDKey, requestID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, resilience.ErrorResponse{
			Error:     "Invalid request format: " + err.Error(),
			Code:      string(resilience.ErrorCodeBadRequest),
			RequestID: requestID,
			Timestamp: time.Now(),
		})
		return
	}

	settings := s.settingsFromHeaders(c)

	s.logger.Info("Analyze request received",
		zap.String(requestIDKey, requestID),
		zap.String("customer", input.CustomerName),
		zap.String("region", input.Region),
		zap.Int("sql_query_limit", settings.SQLQueryLimit),
		zap.Int("truncation_limit", settings.TruncationLimit),
		zap.Bool("enable_truncation", settings.EnableTruncation))

	requestTimeout := time.Duration(s.cfg.Pipeline.RequestTimeoutSeconds) * time.Second

	var resp *pipeline.Response
	err := resilience.WithTimeout(c.Request.Context(), requestTimeout, s.logger, func(ctx context.Context) error {
		var runErr error
		resp, runErr = s.pipeline.Analyze(ctx, input, settings)
		return runErr
	})
	if err != nil {
		s.writeError(c, requestID, err)
		return
	}

	s.recordInvocation(requestID, input, resp, time.Since(startTime))

	c.JSON(http.StatusOK, resp)
}

// handleHistory lists recent invocations, newest first.
func (s *server) handleHistory(c *gin.Context) {
	requestID := c.GetString(requestIDKey)

	if s.history == nil {
		c.JSON(http.StatusNotFound, resilience.ErrorResponse{
			Error:     "Invocation history is disabled",
			Code:      string(resilience.ErrorCodeNotFound),
			RequestID: requestID,
			Timestamp: time.Now(),
		})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	invocations, err := s.history.RecentInvocations(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list invocation history",
			zap.String(requestIDKey, requestID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, resilience.ErrorResponse{
			Error:     "Failed to list invocation history",
			Code:      string(resilience.ErrorCodeInternalError),
			RequestID: requestID,
			Timestamp: time.Now(),
		})
		return
	}

	// The rate is advisory; a failure to compute it does not fail the listing.
	rate, err := s.history.FallbackRate(c.Request.Context(), fallbackRateWindow)
	if err != nil {
		s.logger.Warn("Failed to compute fallback rate",
			zap.String(requestIDKey, requestID),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"invocations":   invocations,
		"count":         len(invocations),
		"fallback_rate": rate,
	})
}

func (s *server) handleHealth(c *gin.Context) {
	result := s.health.Check(c.Request.Context())

	statusCode := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, result)
}

// settingsFromHeaders layers per-request header overrides on top of the
// configured pipeline defaults.
func (s *server) settingsFromHeaders(c *gin.Context) pipeline.Settings {
	settings := pipeline.Settings{
		SQLQueryLimit:    s.cfg.Pipeline.SQLQueryLimit,
		TruncationLimit:  s.cfg.Pipeline.TruncationLimit,
		EnableTruncation: s.cfg.Pipeline.EnableTruncation,
		QueryTimeout:     time.Duration(s.cfg.Pipeline.QueryTimeoutSeconds) * time.Second,
		AnalysisTimeout:  time.Duration(s.cfg.Pipeline.AnalysisTimeoutSeconds) * time.Second,
	}

	if raw := c.GetHeader(headerSQLQueryLimit); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			settings.SQLQueryLimit = parsed
		} else {
			s.logger.Warn("Ignoring invalid sql query limit header", zap.String("value", raw))
		}
	}
	if raw := c.GetHeader(headerTruncationLimit); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			settings.TruncationLimit = parsed
		} else {
			s.logger.Warn("Ignoring invalid truncation limit header", zap.String("value", raw))
		}
	}
	if raw := c.GetHeader(headerEnableTruncation); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			settings.EnableTruncation = parsed
		} else {
			s.logger.Warn("Ignoring invalid truncation toggle header", zap.String("value", raw))
		}
	}

	return settings
}

// writeError maps pipeline failures onto the HTTP error taxonomy.
func (s *server) writeError(c *gin.Context, requestID string, err error) {
	var validationErr *pipeline.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, resilience.ErrorResponse{
			Error:     validationErr.Error(),
			Code:      string(resilience.ErrorCodeBadRequest),
			RequestID: requestID,
			Timestamp: time.Now(),
		})
		return
	}

	var notFoundErr *prompts.NotFoundError
	if errors.As(err, &notFoundErr) {
		s.logger.Error("Prompt template not found",
			zap.String(requestIDKey, requestID),
			zap.String("prompt_id", notFoundErr.PromptID))
		c.JSON(http.StatusNotFound, resilience.ErrorResponse{
			Error:     notFoundErr.Error(),
			Code:      string(resilience.ErrorCodeNotFound),
			RequestID: requestID,
			Timestamp: time.Now(),
		})
		return
	}

	var svcErr *resilience.ServiceError
	if errors.As(err, &svcErr) {
		s.logger.Error("Analyze request failed",
			zap.String(requestIDKey, requestID),
			zap.String("code", string(svcErr.Code)),
			zap.Error(err))
		c.JSON(svcErr.StatusCode, svcErr.ToErrorResponse(requestID))
		return
	}

	s.logger.Error("Analyze request failed",
		zap.String(requestIDKey, requestID),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, resilience.ErrorResponse{
		Error:     "Analysis failed: " + err.Error(),
		Code:      string(resilience.ErrorCodeInternalError),
		RequestID: requestID,
		Timestamp: time.Now(),
	})
}

// recordInvocation persists the run outcome. History failures are logged,
// never surfaced to the caller.
func (s *server) recordInvocation(requestID string, input pipeline.OpportunityInput, resp *pipeline.Response, duration time.Duration) {
	if s.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.history.RecordInvocation(ctx, history.Invocation{
		RequestID:       requestID,
		CustomerName:    input.CustomerName,
		Region:          input.Region,
		OpportunityName: input.OpportunityName,
		GeneratedSQL:    resp.Debug.SQLQuery,
		RowCount:        resp.Debug.RowCount,
		FallbackMode:    resp.FallbackMode,
		FallbackReason:  resp.FallbackReason,
		DurationMS:      duration.Milliseconds(),
	})
	if err != nil {
		s.logger.Warn("Failed to record invocation",
			zap.String(requestIDKey, requestID),
			zap.Error(err))
	}
}
