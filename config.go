package nutrilog

import (
	"fmt"
	"time"
)

type ModelConfig struct {
	ModelID     string  `env:"MODEL_ID,default=us.anthropic.claude-3-7-sonnet-20250219-v1:0"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=1024"`
	Temperature float32 `env:"TEMPERATURE,default=0.1"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type ResolverConfig struct {
	LLMBackend         string        `env:"LLM_BACKEND,default=bedrock"`
	BaseOllamaEndpoint string        `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	OllamaModel        string        `env:"OLLAMA_MODEL,default=llama3.1"`
	ParseTimeout       time.Duration `env:"PARSE_TIMEOUT,default=30s"`
	LookupTimeout      time.Duration `env:"LOOKUP_TIMEOUT,default=10s"`
	EstimateTimeout    time.Duration `env:"ESTIMATE_TIMEOUT,default=30s"`
	DecodeTimeout      time.Duration `env:"DECODE_TIMEOUT,default=5s"`
	Concurrency        int           `env:"RESOLVE_CONCURRENCY,default=4"`
	OFFBaseURL         string        `env:"OFF_BASE_URL,default=https://world.openfoodfacts.org"`
	OFFCountry         string        `env:"OFF_COUNTRY,default=pt"`
	OFFUserAgent       string        `env:"OFF_USER_AGENT,default=nutrilog/0.1 (food logging)"`
	OFFRequestsPerMin  int           `env:"OFF_REQUESTS_PER_MINUTE,default=60"`
}

// CalculatorConfig carries the two conversion assumptions used when the facts
// do not pin a quantity to grams.
type CalculatorConfig struct {
	MilliliterDensity float64 `env:"MILLILITER_DENSITY,default=1.0"`
	DefaultUnitGrams  float64 `env:"DEFAULT_UNIT_GRAMS,default=100"`
}

type ConfirmConfig struct {
	TTL      time.Duration `env:"CONFIRMATION_TTL,default=10m"`
	Timezone string        `env:"TIMEZONE,default=Europe/Lisbon"`
}

func (c ConfirmConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type StoreConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	MaxConns    int32  `env:"DB_MAX_CONNS,default=10"`
}

type ServerConfig struct {
	Addr string `env:"HTTP_ADDR,default=:8080"`
}

type ReportConfig struct {
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
	SlackChannel    string `env:"SLACK_CHANNEL,default=#nutrition"`
	ExportBucket    string `env:"EXPORT_S3_BUCKET"`
	ExportPrefix    string `env:"EXPORT_S3_PREFIX,default=exports/"`
	ExportDir       string `env:"EXPORT_DIR,default=./exports"`
	ExportDays      int    `env:"EXPORT_DAYS,default=90"`
}
