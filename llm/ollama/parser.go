package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"nutrilog"
	"nutrilog/extract"
)

type invoker interface {
	Invoke(ctx context.Context, prompt Prompt) (string, error)
}

// Parser implements nutrilog.DescriptionParser on a local Ollama model.
type Parser struct {
	llm invoker
}

func NewParser(llm invoker) *Parser {
	return &Parser{llm: llm}
}

func (p *Parser) ParseDescription(ctx context.Context, text string) ([]nutrilog.FoodCandidate, error) {
	if strings.TrimSpace(text) == "" {
		return []nutrilog.FoodCandidate{}, nil
	}

	tool := extract.RecordFoods()
	content, err := p.llm.Invoke(ctx, Prompt{
		System: extract.ParseSystemPrompt + extract.JSONFallbackInstruction,
		User:   text,
		Format: tool.InputSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("parse description: %w", err)
	}

	candidates, err := extract.DecodeCandidates([]byte(content))
	if err != nil {
		slog.Warn("PARSER: Unusable model output", "error", err, "content", content)
		return nil, err
	}
	return candidates, nil
}

// Estimator implements nutrilog.Estimator on a local Ollama model.
type Estimator struct {
	llm invoker
}

func NewEstimator(llm invoker) *Estimator {
	return &Estimator{llm: llm}
}

func (e *Estimator) Estimate(ctx context.Context, name string) (nutrilog.NutritionFacts, error) {
	if strings.TrimSpace(name) == "" {
		return nutrilog.NutritionFacts{}, &nutrilog.EstimationError{Name: name, Err: errors.New("empty name")}
	}

	tool := extract.ReportNutrition()
	content, err := e.llm.Invoke(ctx, Prompt{
		System: extract.EstimateSystemPrompt + extract.JSONFallbackInstruction,
		User:   extract.EstimateUserPrompt(name),
		Format: tool.InputSchema,
	})
	if err != nil {
		return nutrilog.NutritionFacts{}, &nutrilog.EstimationError{Name: name, Err: err}
	}
	return extract.DecodeEstimate(name, []byte(content))
}
