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

// Section placeholder text used when the parser could not locate a section.
// The response never carries an empty or null section.
const (
	placeholderMethodology     = "Methodology not available"
	placeholderFindings        = "Findings not available"
	placeholderRiskFactors     = "Risk factors not available"
	placeholderSimilarProjects = "Similar projects not available"
	placeholderNoProjects      = "No comparable projects were found for this opportunity"
	placeholderRationale       = "Rationale not available"
	placeholderMetric          = "Not available"
)

// assembleInput collects everything the assembler merges into the response.
type assembleInput struct {
	sections       Sections
	metrics        Metrics
	sql            string
	rawDataset     string
	rawAnalysis    string
	rowCount       int
	payloadBytes   int
	truncated      bool
	settings       Settings
	fallbackMode   bool
	fallbackReason string
}

// assemble merges parsed sections, metrics and debug artifacts into the
// caller-facing response, substituting explicit placeholders for anything
// the parser could not locate.
func assemble(in assembleInput) *Response {
	sections := in.sections
	if sections.Methodology == "" {
		sections.Methodology = placeholderMethodology
	}
	if sections.Findings == "" {
		sections.Findings = placeholderFindings
	}
	if sections.RiskFactors == "" {
		sections.RiskFactors = placeholderRiskFactors
	}
	if sections.SimilarProjects == "" {
		if in.rowCount == 0 {
			sections.SimilarProjects = placeholderNoProjects
		} else {
			sections.SimilarProjects = placeholderSimilarProjects
		}
	}
	if sections.Rationale == "" {
		sections.Rationale = placeholderRationale
	}

	metrics := in.metrics
	if metrics.PredictedARR == "" {
		metrics.PredictedARR = placeholderMetric
	}
	if metrics.PredictedMRR == "" {
		metrics.PredictedMRR = placeholderMetric
	}
	if metrics.LaunchDate == "" {
		metrics.LaunchDate = placeholderMetric
	}
	if metrics.PredictedProjectDuration == "" {
		metrics.PredictedProjectDuration = placeholderMetric
	}
	if metrics.Confidence == "" {
		metrics.Confidence = ConfidenceLow
	}
	if metrics.TopServices == "" {
		metrics.TopServices = placeholderMetric
	}

	return &Response{
		Methodology:     sections.Methodology,
		Findings:        sections.Findings,
		RiskFactors:     sections.RiskFactors,
		SimilarProjects: sections.SimilarProjects,
		Rationale:       sections.Rationale,
		Metrics:         metrics,
		FallbackMode:    in.fallbackMode,
		FallbackReason:  in.fallbackReason,
		Debug: Debug{
			SQLQuery:        in.sql,
			QueryResults:    in.rawDataset,
			AnalysisText:    in.rawAnalysis,
			RowCount:        in.rowCount,
			PayloadBytes:    in.payloadBytes,
			Truncated:       in.truncated,
			TruncationLimit: in.settings.TruncationLimit,
			SQLQueryLimit:   in.settings.SQLQueryLimit,
		},
	}
}

// fallbackAnalysis is the static substitute returned when the analysis model
// call fails. The caller always receives a displayable result; FallbackMode
// marks it as synthetic.
func fallbackAnalysis(input OpportunityInput) (Sections, Metrics) {
	sections := Sections{
		Methodology: "Analysis based on historical project data for comparable opportunities in the selected region. " +
			"The live analysis service was unavailable, so standard estimates are shown.",
		Findings: fmt.Sprintf("Opportunity %q for customer %q matches the profile of mid-sized engagements in %s. "+
			"Standard estimates applied pending a successful live analysis.",
			input.OpportunityName, input.CustomerName, input.Region),
		RiskFactors: "Live analysis unavailable; estimates carry reduced confidence. " +
			"Re-run the analysis before relying on these figures.",
		SimilarProjects: placeholderNoProjects,
		Rationale: "The analysis service could not be reached, so this result was produced from fixed heuristics " +
			"rather than the retrieved dataset.",
	}

	metrics := Metrics{
		PredictedARR:             "$120,000",
		PredictedMRR:             "$10,000",
		LaunchDate:               placeholderMetric,
		PredictedProjectDuration: "6 months",
		Confidence:               ConfidenceLow,
		ConfidenceScore:          25,
		TopServices:              placeholderMetric,
	}

	return sections, metrics
}
