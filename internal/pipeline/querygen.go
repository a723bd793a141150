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
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/opportunity-intelligence/internal/prompts"
)

// FallbackSQL is the deterministic substitute used when query generation
// fails terminally, so downstream stages always receive some statement.
const FallbackSQL = "SELECT 'Error generating query'"

// rawPreviewLength bounds the diagnostic excerpt carried by a parse failure.
const rawPreviewLength = 200

var sqlEnvelopePattern = regexp.MustCompile(`\{\s*"sql_query"\s*:`)

type queryEnvelope struct {
	SQLQuery string `json:"sql_query"`
}

// generateQuery fills the query-generation prompt with the opportunity
// fields and asks the model for a SQL statement at temperature zero.
func (p *Pipeline) generateQuery(ctx context.Context, input OpportunityInput, tmpl *prompts.Template) (string, error) {
	userMessage := prompts.Fill(tmpl.UserTemplate, input.promptFields())

	resp, err := p.invoker.Converse(ctx, ConverseRequest{
		ModelID:     tmpl.ModelID,
		System:      tmpl.System,
		UserMessage: userMessage,
		MaxTokens:   p.queryMaxTokens,
		Temperature: 0.0,
	})
	if err != nil {
		return "", &QueryGenerationError{Err: err}
	}

	sql, err := ParseQueryEnvelope(resp.Text)
	if err != nil {
		return "", err
	}

	p.logger.Debug("Query generated",
		zap.Int("sql_length", len(sql)),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens))

	return sql, nil
}

// ParseQueryEnvelope extracts the SQL statement from the model's JSON
// envelope {"sql_query": "..."}. It first attempts a direct unmarshal of the
// full text, then a best-effort recovery scan for an envelope embedded in
// prose, and finally fails with a QueryGenerationError carrying a short
// excerpt of the raw text.
func ParseQueryEnvelope(raw string) (string, error) {
	var env queryEnvelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &env); err == nil {
		if sql, ok := validSQL(env.SQLQuery); ok {
			return sql, nil
		}
	}

	// Models sometimes wrap the envelope in explanatory prose. Scan for the
	// envelope start and decode just that fragment; the decoder stops at the
	// end of the first complete JSON value, ignoring trailing text.
	if loc := sqlEnvelopePattern.FindStringIndex(raw); loc != nil {
		env = queryEnvelope{}
		dec := json.NewDecoder(strings.NewReader(raw[loc[0]:]))
		if err := dec.Decode(&env); err == nil {
			if sql, ok := validSQL(env.SQLQuery); ok {
				return sql, nil
			}
		}
	}

	preview := raw
	if len(preview) > rawPreviewLength {
		preview = preview[:rawPreviewLength]
	}
	return "", &QueryGenerationError{RawPreview: preview}
}

// validSQL accepts only non-empty SELECT statements.
func validSQL(sql string) (string, bool) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return "", false
	}
	return sql, true
}
