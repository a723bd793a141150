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
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var limitClausePattern = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\b`)

// EnsureLimit appends a LIMIT clause derived from rowCap when the statement
// has none. An existing LIMIT is authoritative and left untouched; when it
// diverges from the configured cap the divergence is logged.
func EnsureLimit(sql string, rowCap int, logger *zap.Logger) string {
	if logger == nil {
		logger = zap.NewNop()
	}

	if match := limitClausePattern.FindStringSubmatch(sql); match != nil {
		existing, err := strconv.Atoi(match[1])
		if err == nil && existing != rowCap {
			logger.Warn("Generated SQL carries its own LIMIT, leaving as-is",
				zap.Int("query_limit", existing),
				zap.Int("configured_limit", rowCap))
		}
		return sql
	}

	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	return fmt.Sprintf("%s LIMIT %d", trimmed, rowCap)
}

// Reshape converts the columnar wire format (header row + data rows) into
// named records. The header row is consumed: R data rows yield exactly R
// records, each keyed by the header columns in order. An empty result set
// yields an empty slice, not an error.
func Reshape(rs *ResultSet) []Record {
	if rs == nil || len(rs.Rows) == 0 {
		return []Record{}
	}

	headers := rs.Rows[0]
	records := make([]Record, 0, len(rs.Rows)-1)
	for _, row := range rs.Rows[1:] {
		values := make(map[string]string, len(headers))
		for i, col := range headers {
			if i < len(row) {
				values[col] = row[i]
			} else {
				values[col] = ""
			}
		}
		records = append(records, Record{Columns: headers, Values: values})
	}
	return records
}

// executeDataset bounds the generated SQL, runs it against the query
// executor and reshapes the result into records.
func (p *Pipeline) executeDataset(ctx context.Context, sql string, settings Settings) ([]Record, error) {
	bounded := EnsureLimit(sql, settings.SQLQueryLimit, p.logger)

	ctx, cancel := context.WithTimeout(ctx, settings.QueryTimeout)
	defer cancel()

	rs, err := p.executor.Execute(ctx, bounded)
	if err != nil {
		var de *DatasetExecutionError
		if !errors.As(err, &de) {
			err = &DatasetExecutionError{Reason: err.Error(), Err: err}
		}
		return nil, err
	}

	records := Reshape(rs)
	p.logger.Debug("Dataset retrieved",
		zap.Int("record_count", len(records)),
		zap.String("sql", bounded))
	return records, nil
}
