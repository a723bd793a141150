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
	"encoding/json"
	"strings"
)

// TruncationMarker is appended to a shortened payload so the analysis model
// knows it did not see the complete dataset.
const TruncationMarker = "\n... [dataset truncated]"

// SerializeRecords renders the dataset as a JSON array with fields in
// header order. An empty dataset serializes to "[]".
func SerializeRecords(records []Record) string {
	if len(records) == 0 {
		return "[]"
	}
	data, err := json.Marshal(records)
	if err != nil {
		// Record marshaling only fails on invalid string data, which the
		// wire format cannot produce.
		return "[]"
	}
	return string(data)
}

// ShapePayload bounds the serialized dataset to the truncation limit. When
// truncation is enabled and the payload exceeds the limit, it is cut back to
// the last complete record boundary within the limit and the truncation
// marker is appended. A payload that already carries the marker is returned
// unchanged, so shaping is idempotent. When disabled, the payload passes
// through at any size.
func ShapePayload(serialized string, limit int, enabled bool) (string, bool) {
	if !enabled {
		return serialized, false
	}
	if strings.HasSuffix(serialized, TruncationMarker) {
		return serialized, true
	}
	if limit <= 0 || len(serialized) <= limit {
		return serialized, false
	}

	window := serialized[:limit]
	if cut := strings.LastIndex(window, "},"); cut >= 0 {
		return serialized[:cut+1] + "]" + TruncationMarker, true
	}

	// No record boundary within the limit: hard cut. The marker still tells
	// the model the payload is partial.
	return window + TruncationMarker, true
}
