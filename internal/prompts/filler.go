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

package prompts

import (
	"regexp"
	"strings"
)

// MissingFieldSentinel replaces placeholders that have no corresponding
// field value, so template syntax never leaks into a model prompt.
const MissingFieldSentinel = "Not specified"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Fill substitutes every {{name}} placeholder in template with the matching
// field value. Missing or blank fields become the sentinel string; no raw
// {{...}} token survives in the output. Fill is deterministic and pure.
func Fill(template string, fields map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := fields[name]; ok && strings.TrimSpace(value) != "" {
			return value
		}
		return MissingFieldSentinel
	})
}
