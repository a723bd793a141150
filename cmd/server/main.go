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

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	athenaexec "github.com/your-org/opportunity-intelligence/internal/athena"
	"github.com/your-org/opportunity-intelligence/internal/bedrock"
	"github.com/your-org/opportunity-intelligence/internal/config"
	"github.com/your-org/opportunity-intelligence/internal/health"
	"github.com/your-org/opportunity-intelligence/internal/history"
	"github.com/your-org/opportunity-intelligence/internal/openaicompat"
	"github.com/your-org/opportunity-intelligence/internal/pipeline"
	"github.com/your-org/opportunity-intelligence/internal/prompts"
)

const (
	serviceName    = "opportunity-intelligence"
	serviceVersion = "1.0.0"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger, err := initializeLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Log configuration with masked sensitive values
	maskedConfig := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", serviceName),
		zap.String("environment", os.Getenv("ENVIRONMENT")),
		zap.String("provider", maskedConfig.Bedrock.Provider),
		zap.String("query_prompt_id", maskedConfig.Bedrock.QueryPromptID),
		zap.String("analysis_prompt_id", maskedConfig.Bedrock.AnalysisPromptID),
		zap.String("athena_database", maskedConfig.Athena.Database),
		zap.Int("sql_query_limit", maskedConfig.Pipeline.SQLQueryLimit),
		zap.Int("truncation_limit", maskedConfig.Pipeline.TruncationLimit),
	)

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	// Prompt templates always come from the Bedrock prompt store.
	resolver := prompts.NewResolver(bedrockagent.NewFromConfig(awsCfg), logger)

	invoker, err := buildInvoker(cfg, awsCfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize model invoker", zap.Error(err))
	}

	executor := athenaexec.NewClient(athena.NewFromConfig(awsCfg), athenaexec.Config{
		Database:       cfg.Athena.Database,
		Catalog:        cfg.Athena.Catalog,
		OutputLocation: cfg.Athena.OutputLocation,
		Workgroup:      cfg.Athena.Workgroup,
		PollInterval:   time.Duration(cfg.Athena.PollIntervalMS) * time.Millisecond,
	}, logger)

	p := pipeline.New(resolver, invoker, executor, pipeline.Options{
		QueryPromptID:     cfg.Bedrock.QueryPromptID,
		AnalysisPromptID:  cfg.Bedrock.AnalysisPromptID,
		PromptVariant:     cfg.Bedrock.PromptVariant,
		QueryMaxTokens:    cfg.Pipeline.QueryMaxTokens,
		AnalysisMaxTokens: cfg.Pipeline.AnalysisMaxTokens,
	}, logger)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History.DBPath)
		if err != nil {
			logger.Fatal("Failed to open history store", zap.Error(err))
		}
		defer func() { _ = store.Close() }()
	}

	healthMgr := health.NewManager(serviceName, serviceVersion, logger)
	healthMgr.AddChecker("prompt_store", health.DependencyChecker("prompt_store", func(ctx context.Context) error {
		_, err := resolver.GetTemplate(ctx, cfg.Bedrock.QueryPromptID, cfg.Bedrock.PromptVariant)
		return err
	}))
	if store != nil {
		healthMgr.AddChecker("history_db", health.DatabaseChecker("history", store.Ping))
	}

	// Set Gin mode based on log level
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := newServer(cfg, p, store, healthMgr, logger)
	router := srv.routes()

	addr := ":" + cfg.Server.Port
	logger.Info("Starting opportunity intelligence service",
		zap.String("addr", addr),
		zap.String("provider", cfg.Bedrock.Provider),
	)

	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

// buildInvoker selects the model backend: the Bedrock Converse API in
// production, or any OpenAI-compatible endpoint for local development.
func buildInvoker(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (pipeline.ModelInvoker, error) {
	switch cfg.Bedrock.Provider {
	case config.ProviderOpenAI:
		return openaicompat.NewClient(cfg.Bedrock.OpenAIAPIKey, cfg.Bedrock.OpenAIEndpoint, logger)
	default:
		return bedrock.NewClient(bedrockruntime.NewFromConfig(awsCfg), logger), nil
	}
}

// initializeLogger creates a logger based on configuration settings
func initializeLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	switch cfg.Logging.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	if cfg.Logging.Output == "file" {
		zapConfig.OutputPaths = []string{"server.log"}
		zapConfig.ErrorOutputPaths = []string{"server.log"}
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	return zapConfig.Build()
}
