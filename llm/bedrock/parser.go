package bedrock

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
	Invoke(ctx context.Context, prompt Prompt) (Response, error)
}

// Parser implements nutrilog.DescriptionParser on Bedrock.
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

	resp, err := p.llm.Invoke(ctx, Prompt{
		System: extract.ParseSystemPrompt,
		User:   text,
		Tool:   extract.RecordFoods(),
	})
	if err != nil {
		return nil, fmt.Errorf("parse description: %w", err)
	}

	raw := resp.ToolInput
	if len(raw) == 0 {
		slog.Warn("PARSER: Model answered without tool call, decoding text", "text_len", len(resp.Text))
		raw = []byte(resp.Text)
	}

	candidates, err := extract.DecodeCandidates(raw)
	if err != nil {
		return nil, err
	}
	slog.Info("PARSER: Parsed description", "candidates", len(candidates))
	return candidates, nil
}

// Estimator implements nutrilog.Estimator on Bedrock.
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

	resp, err := e.llm.Invoke(ctx, Prompt{
		System: extract.EstimateSystemPrompt,
		User:   extract.EstimateUserPrompt(name),
		Tool:   extract.ReportNutrition(),
	})
	if err != nil {
		return nutrilog.NutritionFacts{}, &nutrilog.EstimationError{Name: name, Err: err}
	}

	raw := resp.ToolInput
	if len(raw) == 0 {
		raw = []byte(resp.Text)
	}
	return extract.DecodeEstimate(name, raw)
}
