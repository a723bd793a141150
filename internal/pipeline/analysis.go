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
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/prompts"
)

// maxHeaderLineLength bounds how long a line may be and still count as a
// section header; real headers are short.
const maxHeaderLineLength = 80

// sectionSynonyms maps each narrative section to the header strings the
// model is known to emit. Matching is case-insensitive and tolerant of
// markdown decoration; this is a best-effort adapter over free text, not a
// strict parser.
var sectionSynonyms = []struct {
	name     string
	synonyms []string
}{
	{"methodology", []string{"METHODOLOGY", "ANALYSIS METHODOLOGY", "APPROACH"}},
	{"findings", []string{"FINDINGS", "KEY FINDINGS", "DETAILED FINDINGS", "DETAILED ANALYSIS"}},
	{"riskFactors", []string{"RISK FACTORS", "RISKS", "RISK ASSESSMENT"}},
	{"similarProjects", []string{"SIMILAR PROJECTS", "SIMILAR PROJECT ANALYSIS", "COMPARABLE PROJECTS", "HISTORICAL MATCHES"}},
	{"rationale", []string{"RATIONALE", "PREDICTION RATIONALE", "REASONING", "ANALYSIS RATIONALE"}},
}

// Metric lines are matched anywhere in the text, independent of section
// layout, so they survive a model that deviates from the expected format.
var (
	arrPattern        = regexp.MustCompile(`(?im)^\W*(?:PREDICTED[_ ]?ARR|ANNUAL RECURRING REVENUE)\W*[:=]\s*(\$?[\d,.]+\s?[KMB]?)`)
	mrrPattern        = regexp.MustCompile(`(?im)^\W*(?:PREDICTED[_ ]?MRR|MONTHLY RECURRING REVENUE)\W*[:=]\s*(\$?[\d,.]+\s?[KMB]?)`)
	launchPattern     = regexp.MustCompile(`(?im)^\W*(?:LAUNCH[_ ]?DATE|PROJECT[_ ]?START)\W*[:=]\s*([^\n*]+)`)
	durationPattern   = regexp.MustCompile(`(?im)^\W*(?:PREDICTED[_ ]?PROJECT[_ ]?DURATION|PROJECT[_ ]?DURATION|DURATION)\W*[:=]\s*([^\n*]+)`)
	confidencePattern = regexp.MustCompile(`(?i)CONFIDENCE(?:[_ ]?(?:LEVEL|RATING))?\W*[:=]?\s*(HIGH|MEDIUM|LOW)`)
	scorePattern      = regexp.MustCompile(`(?i)CONFIDENCE[_ ]?SCORE\W*[:=]\s*(\d{1,3})`)
	servicesPattern   = regexp.MustCompile(`(?im)^\W*TOP[_ ]?(?:AWS[_ ]?)?SERVICES\W*[:=]\s*([^\n]+)`)
)

// generateAnalysis fills the analysis prompt with the opportunity fields and
// the shaped dataset payload, then asks the model for the narrative with a
// larger output budget than query generation.
func (p *Pipeline) generateAnalysis(ctx context.Context, input OpportunityInput, payload string, tmpl *prompts.Template, settings Settings) (string, error) {
	fields := input.promptFields()
	fields["queryResults"] = payload

	userMessage := prompts.Fill(tmpl.UserTemplate, fields)

	ctx, cancel := context.WithTimeout(ctx, settings.AnalysisTimeout)
	defer cancel()

	resp, err := p.invoker.Converse(ctx, ConverseRequest{
		ModelID:     tmpl.ModelID,
		System:      tmpl.System,
		UserMessage: userMessage,
		MaxTokens:   p.analysisMaxTokens,
		Temperature: 0.0,
	})
	if err != nil {
		return "", &AnalysisGenerationError{Err: err}
	}

	p.logger.Debug("Analysis generated",
		zap.Int("analysis_length", len(resp.Text)),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens))

	return resp.Text, nil
}

// ParseAnalysis scans the free-form analysis text line by line, maintaining
// a current-section cursor. Lines before the first recognized header
// accumulate into an overview bucket that backs the methodology section when
// no explicit methodology header appears. Metrics are extracted by targeted
// pattern matches over the whole text.
func ParseAnalysis(text string) (Sections, Metrics) {
	buckets := map[string][]string{}
	current := "overview"

	for _, line := range strings.Split(text, "\n") {
		if name, ok := matchSectionHeader(line); ok {
			current = name
			continue
		}
		buckets[current] = append(buckets[current], line)
	}

	sections := Sections{
		Methodology:     collapse(buckets["methodology"]),
		Findings:        collapse(buckets["findings"]),
		RiskFactors:     collapse(buckets["riskFactors"]),
		SimilarProjects: collapse(buckets["similarProjects"]),
		Rationale:       collapse(buckets["rationale"]),
	}
	if sections.Methodology == "" {
		sections.Methodology = collapse(buckets["overview"])
	}

	return sections, extractMetrics(text)
}

// matchSectionHeader reports whether the line is a recognized section
// header, after stripping markdown decoration and trailing punctuation.
func matchSectionHeader(line string) (string, bool) {
	stripped := strings.TrimSpace(line)
	if stripped == "" || len(stripped) > maxHeaderLineLength {
		return "", false
	}
	stripped = strings.Trim(stripped, "#*=- \t")
	stripped = strings.TrimSuffix(strings.TrimSpace(stripped), ":")
	upper := strings.ToUpper(strings.TrimSpace(stripped))
	if upper == "" {
		return "", false
	}

	for _, section := range sectionSynonyms {
		for _, synonym := range section.synonyms {
			if upper == synonym || strings.HasPrefix(upper, synonym+":") {
				return section.name, true
			}
		}
	}
	return "", false
}

func collapse(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractMetrics(text string) Metrics {
	m := Metrics{}

	if match := arrPattern.FindStringSubmatch(text); match != nil {
		m.PredictedARR = strings.TrimSpace(match[1])
	}
	if match := mrrPattern.FindStringSubmatch(text); match != nil {
		m.PredictedMRR = strings.TrimSpace(match[1])
	}
	if match := launchPattern.FindStringSubmatch(text); match != nil {
		m.LaunchDate = strings.TrimSpace(match[1])
	}
	if match := durationPattern.FindStringSubmatch(text); match != nil {
		m.PredictedProjectDuration = strings.TrimSpace(match[1])
	}
	if match := confidencePattern.FindStringSubmatch(text); match != nil {
		m.Confidence = strings.ToUpper(match[1])
	}
	if match := scorePattern.FindStringSubmatch(text); match != nil {
		if score, err := strconv.Atoi(match[1]); err == nil && score >= 0 && score <= 100 {
			m.ConfidenceScore = score
		}
	}
	if match := servicesPattern.FindStringSubmatch(text); match != nil {
		m.TopServices = strings.TrimSpace(match[1])
	}

	return m
}
