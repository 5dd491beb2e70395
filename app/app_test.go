package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog/export"
	"nutrilog/llm/mock"
	"nutrilog/lookup"
	"nutrilog/slack"
	"nutrilog/store"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LLM_BACKEND", "mock")
	t.Setenv("CONFIRMATION_TTL", "5m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Resolver.LLMBackend)
	assert.Equal(t, 5*time.Minute, cfg.Confirm.TTL)
	assert.Equal(t, "Europe/Lisbon", cfg.Confirm.Timezone)
	assert.Equal(t, 1.0, cfg.Calculator.MilliliterDensity)
	assert.Equal(t, 90, cfg.Report.ExportDays)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestBackend(t *testing.T) {
	ctx := context.Background()

	var cfg Config
	cfg.Resolver.LLMBackend = "mock"
	parser, estimator, err := Backend(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &mock.Parser{}, parser)
	assert.IsType(t, &mock.Estimator{}, estimator)
	assert.IsType(t, &mock.Catalog{}, FactSource(cfg))
	assert.Equal(t, "mock", ModelName(cfg))

	cfg.Resolver.LLMBackend = "ollama"
	_, _, err = Backend(ctx, cfg)
	assert.Error(t, err, "ollama needs an endpoint and model")

	cfg.Resolver.LLMBackend = "gpt"
	_, _, err = Backend(ctx, cfg)
	assert.EqualError(t, err, `unknown LLM_BACKEND "gpt"`)
}

func TestFactSourceUsesOpenFoodFacts(t *testing.T) {
	var cfg Config
	cfg.Resolver.LLMBackend = "bedrock"
	assert.IsType(t, &lookup.Client{}, FactSource(cfg))
}

func TestResolverWithMockBackend(t *testing.T) {
	var cfg Config
	cfg.Resolver.LLMBackend = "mock"
	r, err := Resolver(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestRepositoryFallsBackToMemory(t *testing.T) {
	repo, err := Repository(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, repo)
}

func TestSinkAndNotifierSelection(t *testing.T) {
	var cfg Config
	cfg.Report.ExportDir = filepath.Join(t.TempDir(), "out")

	sink, err := Sink(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &export.FileSink{}, sink)

	assert.IsType(t, slack.LogNotifier{}, Notifier(cfg))
	cfg.Report.SlackWebhookURL = "http://example.com/hook"
	assert.IsType(t, &slack.Client{}, Notifier(cfg))
}

func TestResolutionLogger(t *testing.T) {
	t.Chdir(t.TempDir())
	logger, cleanup, err := ResolutionLogger("mock")
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NoError(t, cleanup())
}
