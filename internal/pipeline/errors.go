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

import "fmt"

// ValidationError rejects malformed opportunity input at the boundary,
// before the pipeline starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid opportunity input: field %q: %s", e.Field, e.Message)
}

// QueryGenerationError signals that the model output could not be parsed
// into a SQL statement, or that the model call itself failed terminally.
// It is recoverable: the pipeline substitutes FallbackSQL and continues.
type QueryGenerationError struct {
	RawPreview string
	Err        error
}

func (e *QueryGenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query generation failed: %v", e.Err)
	}
	return fmt.Sprintf("query generation failed: no sql_query envelope in model output (first %d chars: %q)", len(e.RawPreview), e.RawPreview)
}

func (e *QueryGenerationError) Unwrap() error { return e.Err }

// DatasetExecutionError signals a terminal query-execution failure,
// including the per-stage timeout. Recoverable: the pipeline continues with
// an empty dataset.
type DatasetExecutionError struct {
	Reason  string
	Timeout bool
	Err     error
}

func (e *DatasetExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("dataset execution timed out: %s", e.Reason)
	}
	return fmt.Sprintf("dataset execution failed: %s", e.Reason)
}

func (e *DatasetExecutionError) Unwrap() error { return e.Err }

// AnalysisGenerationError signals that the analysis model call failed.
// Recoverable: the pipeline substitutes the static fallback analysis.
type AnalysisGenerationError struct {
	Err error
}

func (e *AnalysisGenerationError) Error() string {
	return fmt.Sprintf("analysis generation failed: %v", e.Err)
}

func (e *AnalysisGenerationError) Unwrap() error { return e.Err }
