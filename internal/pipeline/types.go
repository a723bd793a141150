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

// Package pipeline implements the opportunity-analysis orchestration pipeline:
// query generation, dataset execution, payload shaping, analysis generation and
// response assembly. Each stage feeds the next; external collaborators (prompt
// store, model invoker, query executor) are injected as interfaces.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// OpportunityInput describes the sales opportunity under analysis.
// CustomerName, Region, CloseDate, OpportunityName and Description are
// required; the remaining fields provide optional business context.
type OpportunityInput struct {
	CustomerName    string `json:"customerName" binding:"required"`
	Region          string `json:"region" binding:"required"`
	CloseDate       string `json:"closeDate" binding:"required"`
	OpportunityName string `json:"opportunityName" binding:"required"`
	Description     string `json:"description" binding:"required"`
	Industry        string `json:"industry,omitempty"`
	CustomerSegment string `json:"customerSegment,omitempty"`
	PartnerName     string `json:"partnerName,omitempty"`
	ActivityFocus   string `json:"activityFocus,omitempty"`
	MigrationPhase  string `json:"migrationPhase,omitempty"`
	BusinessLinks   string `json:"businessLinks,omitempty"`
}

// Settings are the caller-tunable knobs that shape payload size and stage
// deadlines. They flow from request headers and configuration into every
// stage that bounds the data handed to the model.
type Settings struct {
	SQLQueryLimit    int
	TruncationLimit  int
	EnableTruncation bool
	QueryTimeout     time.Duration
	AnalysisTimeout  time.Duration
}

const (
	// DefaultSQLQueryLimit caps generated queries that carry no LIMIT clause.
	DefaultSQLQueryLimit = 200
	// DefaultTruncationLimit bounds the serialized dataset payload in bytes.
	DefaultTruncationLimit = 500_000
	// DefaultQueryTimeout bounds the dataset execution stage.
	DefaultQueryTimeout = 60 * time.Second
	// DefaultAnalysisTimeout bounds the analysis generation stage.
	DefaultAnalysisTimeout = 4 * time.Minute
)

// DefaultSettings returns the pipeline defaults used when the caller supplies
// no overrides.
func DefaultSettings() Settings {
	return Settings{
		SQLQueryLimit:    DefaultSQLQueryLimit,
		TruncationLimit:  DefaultTruncationLimit,
		EnableTruncation: true,
		QueryTimeout:     DefaultQueryTimeout,
		AnalysisTimeout:  DefaultAnalysisTimeout,
	}
}

// Record is one dataset row keyed by column name. Columns preserves the
// header order so serialization is stable; field identity is by name.
type Record struct {
	Columns []string
	Values  map[string]string
}

// MarshalJSON emits the record as an object with fields in header order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Values[col])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ResultSet is the wire-format result of a dataset query: the first row is
// the column header row, every subsequent row is data.
type ResultSet struct {
	Rows [][]string
}

// Sections holds the named narrative blocks parsed out of the analysis text.
type Sections struct {
	Methodology     string `json:"methodology"`
	Findings        string `json:"findings"`
	RiskFactors     string `json:"riskFactors"`
	SimilarProjects string `json:"similarProjects"`
	Rationale       string `json:"rationale"`
}

// Confidence levels attached to the generated analysis.
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// Metrics are the headline figures extracted from the analysis text.
type Metrics struct {
	PredictedARR             string `json:"predictedArr"`
	PredictedMRR             string `json:"predictedMrr"`
	LaunchDate               string `json:"launchDate"`
	PredictedProjectDuration string `json:"predictedProjectDuration"`
	Confidence               string `json:"confidence"`
	ConfidenceScore          int    `json:"confidenceScore"`
	TopServices              string `json:"topServices"`
}

// Debug carries the raw artifacts of a pipeline run for diagnosis.
type Debug struct {
	SQLQuery        string `json:"sqlQuery"`
	QueryResults    string `json:"queryResults"`
	AnalysisText    string `json:"analysisText"`
	RowCount        int    `json:"rowCount"`
	PayloadBytes    int    `json:"payloadBytes"`
	Truncated       bool   `json:"truncated"`
	TruncationLimit int    `json:"truncationLimit"`
	SQLQueryLimit   int    `json:"sqlQueryLimit"`
}

// Response is the caller-facing result. Every narrative section and metric
// field is always populated; FallbackMode is false only when every stage
// completed without triggering its fallback path.
type Response struct {
	Methodology     string  `json:"methodology"`
	Findings        string  `json:"findings"`
	RiskFactors     string  `json:"riskFactors"`
	SimilarProjects string  `json:"similarProjects"`
	Rationale       string  `json:"rationale"`
	Metrics         Metrics `json:"metrics"`
	FallbackMode    bool    `json:"fallbackMode"`
	FallbackReason  string  `json:"fallbackReason,omitempty"`
	Debug           Debug   `json:"debug"`
}

// ConverseRequest is a single chat-completion request: one system message and
// one user message against the given model.
type ConverseRequest struct {
	ModelID     string
	System      string
	UserMessage string
	MaxTokens   int
	Temperature float32
}

// ConverseResponse is the model's reply plus token accounting.
type ConverseResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// ModelInvoker is the LLM chat-completion interface consumed by the query
// generation and analysis generation stages.
type ModelInvoker interface {
	Converse(ctx context.Context, req ConverseRequest) (*ConverseResponse, error)
}

// QueryExecutor submits SQL to the external query-execution service and
// returns the tabular result once the execution reaches a terminal state.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) (*ResultSet, error)
}
