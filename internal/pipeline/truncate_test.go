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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRecordsEmpty(t *testing.T) {
	assert.Equal(t, "[]", SerializeRecords(nil))
	assert.Equal(t, "[]", SerializeRecords([]Record{}))
}

func TestSerializeRecordsPreservesColumnOrder(t *testing.T) {
	records := []Record{
		{
			Columns: []string{"zeta", "alpha", "mid"},
			Values:  map[string]string{"zeta": "1", "alpha": "2", "mid": "3"},
		},
	}

	serialized := SerializeRecords(records)
	assert.Equal(t, `[{"zeta":"1","alpha":"2","mid":"3"}]`, serialized)
}

func TestSerializeRecordsIsValidJSON(t *testing.T) {
	records := []Record{
		{Columns: []string{"customer"}, Values: map[string]string{"customer": `quoted "name"`}},
	}

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal([]byte(SerializeRecords(records)), &decoded))
	assert.Equal(t, `quoted "name"`, decoded[0]["customer"])
}

func TestShapePayloadUnderLimit(t *testing.T) {
	payload, truncated := ShapePayload(`[{"a":"1"}]`, 1000, true)
	assert.Equal(t, `[{"a":"1"}]`, payload)
	assert.False(t, truncated)
}

func TestShapePayloadDisabledPassthrough(t *testing.T) {
	big := strings.Repeat("x", 10_000)
	payload, truncated := ShapePayload(big, 100, false)
	assert.Equal(t, big, payload)
	assert.False(t, truncated)
}

func TestShapePayloadCutsAtRecordBoundary(t *testing.T) {
	serialized := `[{"a":"1"},{"a":"2"},{"a":"3"}]`
	limit := 15 // inside the second record

	payload, truncated := ShapePayload(serialized, limit, true)
	assert.True(t, truncated)
	assert.True(t, strings.HasSuffix(payload, TruncationMarker))

	// The kept portion before the marker must still be a complete JSON array.
	body := strings.TrimSuffix(payload, TruncationMarker)
	var decoded []map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Len(t, decoded, 1)
}

func TestShapePayloadHardCutWithoutBoundary(t *testing.T) {
	serialized := `[{"a":"` + strings.Repeat("x", 100) + `"}]`
	payload, truncated := ShapePayload(serialized, 20, true)

	assert.True(t, truncated)
	assert.True(t, strings.HasSuffix(payload, TruncationMarker))
	assert.Equal(t, serialized[:20]+TruncationMarker, payload)
}

func TestShapePayloadIdempotent(t *testing.T) {
	serialized := `[{"a":"1"},{"a":"2"},{"a":"3"},{"a":"4"}]`

	first, truncated := ShapePayload(serialized, 25, true)
	require.True(t, truncated)

	second, truncated := ShapePayload(first, 25, true)
	assert.True(t, truncated)
	assert.Equal(t, first, second)
}
