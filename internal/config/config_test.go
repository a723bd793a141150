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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithOptions(LoadOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, ProviderBedrock, cfg.Bedrock.Provider)
	assert.Equal(t, "AwsDataCatalog", cfg.Athena.Catalog)
	assert.Equal(t, 200, cfg.Pipeline.SQLQueryLimit)
	assert.Equal(t, 500000, cfg.Pipeline.TruncationLimit)
	assert.True(t, cfg.Pipeline.EnableTruncation)
	assert.Equal(t, 60, cfg.Pipeline.QueryTimeoutSeconds)
	assert.Equal(t, 240, cfg.Pipeline.AnalysisTimeoutSeconds)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.History.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
bedrock:
  provider: bedrock
  query_prompt_id: qp-123
  analysis_prompt_id: ap-456
athena:
  database: partner_opportunities
pipeline:
  sql_query_limit: 50
  truncation_limit: 1000
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qp-123", cfg.Bedrock.QueryPromptID)
	assert.Equal(t, "ap-456", cfg.Bedrock.AnalysisPromptID)
	assert.Equal(t, "partner_opportunities", cfg.Athena.Database)
	assert.Equal(t, 50, cfg.Pipeline.SQLQueryLimit)
	assert.Equal(t, 1000, cfg.Pipeline.TruncationLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
bedrock:
  query_prompt_id: from-file
  analysis_prompt_id: ap-456
athena:
  database: partner_opportunities
`)

	t.Setenv("QUERY_PROMPT_ID", "from-env")
	t.Setenv("ATHENA_DATABASE", "env_db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Bedrock.QueryPromptID)
	assert.Equal(t, "env_db", cfg.Athena.Database)
}

func TestValidationMissingPromptIDs(t *testing.T) {
	path := writeConfigFile(t, `
athena:
  database: partner_opportunities
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query_prompt_id")
	assert.Contains(t, err.Error(), "analysis_prompt_id")
}

func TestValidationOpenAIProviderRequiresKey(t *testing.T) {
	path := writeConfigFile(t, `
bedrock:
  provider: openai
  query_prompt_id: qp
  analysis_prompt_id: ap
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai_api_key")
}

func TestValidationRejectsUnknownProvider(t *testing.T) {
	path := writeConfigFile(t, `
bedrock:
  provider: hallucinated
  query_prompt_id: qp
  analysis_prompt_id: ap
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider")
}

func TestValidationRejectsBadLimits(t *testing.T) {
	path := writeConfigFile(t, `
bedrock:
  query_prompt_id: qp
  analysis_prompt_id: ap
athena:
  database: db
pipeline:
  sql_query_limit: -5
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sql_query_limit")
}

func TestValidationSkippedWhenDisabled(t *testing.T) {
	cfg, err := LoadWithOptions(LoadOptions{
		ConfigPath:       filepath.Join(t.TempDir(), "missing.yaml"),
		ValidateRequired: false,
	})
	require.NoError(t, err)
	assert.Empty(t, cfg.Bedrock.QueryPromptID)
}

func TestMaskSensitiveValues(t *testing.T) {
	cfg := &Config{}
	cfg.Bedrock.OpenAIAPIKey = "sk-abcdef1234567890"

	masked := cfg.MaskSensitiveValues()
	assert.True(t, strings.HasPrefix(masked.Bedrock.OpenAIAPIKey, "sk-abcde"))
	assert.Contains(t, masked.Bedrock.OpenAIAPIKey, "*")
	assert.NotContains(t, masked.Bedrock.OpenAIAPIKey, "1234567890")

	// Original untouched.
	assert.Equal(t, "sk-abcdef1234567890", cfg.Bedrock.OpenAIAPIKey)
}

func TestMaskShortValueFully(t *testing.T) {
	cfg := &Config{}
	cfg.Bedrock.OpenAIAPIKey = "short"

	masked := cfg.MaskSensitiveValues()
	assert.Equal(t, "*****", masked.Bedrock.OpenAIAPIKey)
}
