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

// Package config loads the service configuration from file and environment.
// The configuration object is built once at process start and passed by
// reference into the pipeline's entry point, so tests can substitute fakes
// without touching the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Provider names for the model invoker.
const (
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
)

// Config represents the complete application configuration.
type Config struct {
	AWS      AWSConfig      `mapstructure:"aws"`
	Bedrock  BedrockConfig  `mapstructure:"bedrock"`
	Athena   AthenaConfig   `mapstructure:"athena"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	History  HistoryConfig  `mapstructure:"history"`
}

// AWSConfig contains shared AWS settings.
type AWSConfig struct {
	Region string `mapstructure:"region"`
}

// BedrockConfig selects the model provider and the prompt templates.
type BedrockConfig struct {
	Provider         string `mapstructure:"provider"`
	QueryPromptID    string `mapstructure:"query_prompt_id"`
	AnalysisPromptID string `mapstructure:"analysis_prompt_id"`
	PromptVariant    string `mapstructure:"prompt_variant"`
	OpenAIAPIKey     string `mapstructure:"openai_api_key"`
	OpenAIEndpoint   string `mapstructure:"openai_endpoint"`
}

// AthenaConfig locates the opportunity dataset.
type AthenaConfig struct {
	Database       string `mapstructure:"database"`
	Catalog        string `mapstructure:"catalog"`
	OutputLocation string `mapstructure:"output_location"`
	Workgroup      string `mapstructure:"workgroup"`
	PollIntervalMS int    `mapstructure:"poll_interval_ms"`
}

// PipelineConfig holds the default pipeline settings; per-request header
// overrides are applied on top of these.
type PipelineConfig struct {
	SQLQueryLimit          int  `mapstructure:"sql_query_limit"`
	TruncationLimit        int  `mapstructure:"truncation_limit"`
	EnableTruncation       bool `mapstructure:"enable_truncation"`
	QueryTimeoutSeconds    int  `mapstructure:"query_timeout_seconds"`
	AnalysisTimeoutSeconds int  `mapstructure:"analysis_timeout_seconds"`
	RequestTimeoutSeconds  int  `mapstructure:"request_timeout_seconds"`
	QueryMaxTokens         int  `mapstructure:"query_max_tokens"`
	AnalysisMaxTokens      int  `mapstructure:"analysis_max_tokens"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// HistoryConfig controls the invocation history store.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading.
type LoadOptions struct {
	ConfigPath       string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{ConfigPath: configPath, ValidateRequired: true})
}

// LoadWithOptions loads configuration with additional options. A missing
// config file is not an error; defaults and environment variables are
// sufficient to run.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	setConfigFile(v, opts.ConfigPath)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("OPPORTUNITY_INTEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("aws.region", "us-east-1")

	v.SetDefault("bedrock.provider", ProviderBedrock)
	v.SetDefault("bedrock.prompt_variant", "")
	v.SetDefault("bedrock.openai_endpoint", "")

	v.SetDefault("athena.catalog", "AwsDataCatalog")
	v.SetDefault("athena.workgroup", "primary")
	v.SetDefault("athena.poll_interval_ms", 1000)

	v.SetDefault("pipeline.sql_query_limit", 200)
	v.SetDefault("pipeline.truncation_limit", 500000)
	v.SetDefault("pipeline.enable_truncation", true)
	v.SetDefault("pipeline.query_timeout_seconds", 60)
	v.SetDefault("pipeline.analysis_timeout_seconds", 240)
	v.SetDefault("pipeline.request_timeout_seconds", 300)
	v.SetDefault("pipeline.query_max_tokens", 1024)
	v.SetDefault("pipeline.analysis_max_tokens", 4096)

	v.SetDefault("server.port", "8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.db_path", "./history.db")
}

func setConfigFile(v *viper.Viper, configPath string) {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		v.SetConfigFile(envPath)
		return
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
}

// setEnvironmentMappings maps the conventional environment variables onto
// config keys.
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"AWS_REGION":             "aws.region",
		"MODEL_PROVIDER":         "bedrock.provider",
		"QUERY_PROMPT_ID":        "bedrock.query_prompt_id",
		"ANALYSIS_PROMPT_ID":     "bedrock.analysis_prompt_id",
		"PROMPT_VARIANT":         "bedrock.prompt_variant",
		"OPENAI_API_KEY":         "bedrock.openai_api_key",
		"OPENAI_ENDPOINT":        "bedrock.openai_endpoint",
		"ATHENA_DATABASE":        "athena.database",
		"ATHENA_CATALOG":         "athena.catalog",
		"ATHENA_OUTPUT_LOCATION": "athena.output_location",
		"ATHENA_WORKGROUP":       "athena.workgroup",
		"HISTORY_DB_PATH":        "history.db_path",
		"PORT":                   "server.port",
		"LOG_LEVEL":              "logging.level",
		"LOG_FORMAT":             "logging.format",
		"LOG_OUTPUT":             "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

func validateConfig(config *Config) error {
	var errs []ValidationError

	if config.AWS.Region == "" {
		errs = append(errs, ValidationError{
			Field:   "aws.region",
			Message: "AWS region is required. Set via config file or AWS_REGION environment variable",
		})
	}

	switch config.Bedrock.Provider {
	case ProviderBedrock:
		// Prompt store and dataset both live in AWS.
		if config.Athena.Database == "" {
			errs = append(errs, ValidationError{
				Field:   "athena.database",
				Message: "Athena database is required. Set via config file or ATHENA_DATABASE environment variable",
			})
		}
	case ProviderOpenAI:
		if config.Bedrock.OpenAIAPIKey == "" {
			errs = append(errs, ValidationError{
				Field:   "bedrock.openai_api_key",
				Message: "API key is required for the openai provider. Set via OPENAI_API_KEY environment variable",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "bedrock.provider",
			Message: fmt.Sprintf("provider must be one of: %s, %s", ProviderBedrock, ProviderOpenAI),
		})
	}

	if config.Bedrock.QueryPromptID == "" {
		errs = append(errs, ValidationError{
			Field:   "bedrock.query_prompt_id",
			Message: "query prompt id is required. Set via config file or QUERY_PROMPT_ID environment variable",
		})
	}

	if config.Bedrock.AnalysisPromptID == "" {
		errs = append(errs, ValidationError{
			Field:   "bedrock.analysis_prompt_id",
			Message: "analysis prompt id is required. Set via config file or ANALYSIS_PROMPT_ID environment variable",
		})
	}

	if config.Pipeline.SQLQueryLimit <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.sql_query_limit",
			Message: "sql_query_limit must be greater than 0",
		})
	}

	if config.Pipeline.TruncationLimit <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.truncation_limit",
			Message: "truncation_limit must be greater than 0",
		})
	}

	if config.Pipeline.QueryTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.query_timeout_seconds",
			Message: "query_timeout_seconds must be greater than 0",
		})
	}

	if config.Pipeline.AnalysisTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.analysis_timeout_seconds",
			Message: "analysis_timeout_seconds must be greater than 0",
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	if config.History.Enabled && config.History.DBPath == "" {
		errs = append(errs, ValidationError{
			Field:   "history.db_path",
			Message: "history database path is required when history is enabled",
		})
	}

	if len(errs) > 0 {
		var messages []string
		for _, err := range errs {
			messages = append(messages, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(messages, "\n"))
	}

	return nil
}

// MaskSensitiveValues returns a copy of the config with sensitive values
// masked for logging.
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c
	if masked.Bedrock.OpenAIAPIKey != "" {
		masked.Bedrock.OpenAIAPIKey = maskValue(masked.Bedrock.OpenAIAPIKey)
	}
	return &masked
}

func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// WatchConfig enables configuration hot-reloading for development.
func WatchConfig(configPath string, callback func(*Config)) error {
	v := viper.New()
	setConfigFile(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file for watching: %w", err)
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		config, err := LoadWithOptions(LoadOptions{ConfigPath: configPath, ValidateRequired: true})
		if err != nil {
			fmt.Printf("Failed to reload config after change to %s: %v\n", e.Name, err)
			return
		}
		callback(config)
	})

	return nil
}
