// Package app assembles the components from environment configuration. The
// binaries under cmd share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"nutrilog"
	"nutrilog/barcode"
	"nutrilog/export"
	"nutrilog/llm/bedrock"
	"nutrilog/llm/mock"
	"nutrilog/llm/ollama"
	"nutrilog/lookup"
	"nutrilog/resolve"
	"nutrilog/slack"
	"nutrilog/store"
)

// Config is every setting the binaries read from the environment.
type Config struct {
	Model      nutrilog.ModelConfig
	Resolver   nutrilog.ResolverConfig
	Calculator nutrilog.CalculatorConfig
	Confirm    nutrilog.ConfirmConfig
	Store      nutrilog.StoreConfig
	Server     nutrilog.ServerConfig
	Report     nutrilog.ReportConfig
}

// LoadConfig reads an optional .env file and then decodes the environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("SETUP: Failed to load .env", "error", err)
	}

	var cfg Config
	for _, target := range []any{
		&cfg.Model, &cfg.Resolver, &cfg.Calculator, &cfg.Confirm,
		&cfg.Store, &cfg.Server, &cfg.Report,
	} {
		if err := envdecode.Decode(target); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return Config{}, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return cfg, nil
}

// Backend builds the parser and estimator for the configured LLM backend.
func Backend(ctx context.Context, cfg Config) (nutrilog.DescriptionParser, nutrilog.Estimator, error) {
	switch cfg.Resolver.LLMBackend {
	case "bedrock":
		brc, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Bedrock client: %w", err)
		}
		llm := bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     cfg.Model.ModelID,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
			TopP:        cfg.Model.TopP,
		})
		return bedrock.NewParser(llm), bedrock.NewEstimator(llm), nil
	case "ollama":
		llm, err := ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint: cfg.Resolver.BaseOllamaEndpoint,
			ModelID:      cfg.Resolver.OllamaModel,
			HTTPClient:   http.DefaultClient,
		})
		if err != nil {
			return nil, nil, err
		}
		return ollama.NewParser(llm), ollama.NewEstimator(llm), nil
	case "mock":
		return mock.NewParser(), mock.NewEstimator(nil), nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM_BACKEND %q", cfg.Resolver.LLMBackend)
	}
}

// ModelName identifies the active model in log file names.
func ModelName(cfg Config) string {
	switch cfg.Resolver.LLMBackend {
	case "ollama":
		return cfg.Resolver.OllamaModel
	case "mock":
		return "mock"
	default:
		return cfg.Model.ModelID
	}
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

// FactSource is the Open Food Facts client, or a fixed catalog for the mock
// backend so offline runs never touch the network.
func FactSource(cfg Config) nutrilog.FactSource {
	if cfg.Resolver.LLMBackend == "mock" {
		return mock.NewCatalog()
	}
	opts := lookup.OptionsFromConfig(cfg.Resolver)
	opts.HTTPClient = http.DefaultClient
	return lookup.NewClient(opts)
}

// Resolver wires parser, decoder, fact source and estimator into a resolver.
func Resolver(ctx context.Context, cfg Config, logger nutrilog.ResolutionLogger) (*resolve.Resolver, error) {
	parser, estimator, err := Backend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts := resolve.OptionsFromConfig(cfg.Resolver, cfg.Calculator)
	opts.Logger = logger
	return resolve.New(resolve.Deps{
		Parser:    parser,
		Decoder:   barcode.NewDecoder(),
		Facts:     FactSource(cfg),
		Estimator: estimator,
	}, opts)
}

// Repository opens Postgres when DATABASE_URL is set and falls back to the
// in-memory store otherwise.
func Repository(ctx context.Context, cfg Config) (store.Repository, error) {
	if cfg.Store.DatabaseURL == "" {
		slog.Warn("SETUP: DATABASE_URL not set, entries are kept in memory only")
		return store.NewMemory(), nil
	}
	return store.Connect(ctx, cfg.Store)
}

// Sink stores exports in S3 when a bucket is configured, else on disk.
func Sink(ctx context.Context, cfg Config) (export.Sink, error) {
	if cfg.Report.ExportBucket == "" {
		return export.NewFileSink(cfg.Report.ExportDir), nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return export.NewS3Sink(s3.NewFromConfig(awsCfg), cfg.Report.ExportBucket, cfg.Report.ExportPrefix), nil
}

// Notifier posts to the Slack webhook, or to the log when none is set.
func Notifier(cfg Config) nutrilog.Notifier {
	if cfg.Report.SlackWebhookURL == "" {
		return slack.LogNotifier{}
	}
	return slack.NewClient(cfg.Report.SlackWebhookURL, http.DefaultClient)
}

// ResolutionLogger opens a per-run resolution log file named after the model.
func ResolutionLogger(model string) (nutrilog.ResolutionLogger, func() error, error) {
	logFilePath := nutrilog.NewResolutionLogFilePath(model)
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := nutrilog.NewFileResolutionLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
