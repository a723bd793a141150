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
	"strings"
	"time"
)

// CloseDateLayout is the calendar-date format required for CloseDate.
const CloseDateLayout = "2006-01-02"

// Validate checks the required fields of the opportunity input. Only format
// validity matters here; whether the close date lies in the future is a
// caller/UI concern.
func (in *OpportunityInput) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"customerName", in.CustomerName},
		{"region", in.Region},
		{"closeDate", in.CloseDate},
		{"opportunityName", in.OpportunityName},
		{"description", in.Description},
	}

	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.field, Message: "must not be empty"}
		}
	}

	if _, err := time.Parse(CloseDateLayout, strings.TrimSpace(in.CloseDate)); err != nil {
		return &ValidationError{Field: "closeDate", Message: "must be a calendar date in YYYY-MM-DD format"}
	}

	return nil
}

// promptFields maps the opportunity onto the named placeholders used by the
// prompt templates. Optional fields map to empty strings and are replaced by
// the filler's sentinel.
func (in *OpportunityInput) promptFields() map[string]string {
	return map[string]string{
		"CustomerName":    strings.TrimSpace(in.CustomerName),
		"region":          strings.TrimSpace(in.Region),
		"closeDate":       strings.TrimSpace(in.CloseDate),
		"oppName":         strings.TrimSpace(in.OpportunityName),
		"oppDescription":  strings.TrimSpace(in.Description),
		"industry":        strings.TrimSpace(in.Industry),
		"customerSegment": strings.TrimSpace(in.CustomerSegment),
		"partnerName":     strings.TrimSpace(in.PartnerName),
		"activityFocus":   strings.TrimSpace(in.ActivityFocus),
		"migrationPhase":  strings.TrimSpace(in.MigrationPhase),
		"businessLinks":   strings.TrimSpace(in.BusinessLinks),
	}
}
