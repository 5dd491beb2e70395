// Package mock provides deterministic, offline stand-ins for the model-backed
// parser and estimator. The parser follows the same fixed convention the real
// prompts describe, so it doubles as the reference for that convention.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"nutrilog"
	"nutrilog/extract"
)

var (
	// Conjunctions and list separators split items; "+" never does.
	separator    = regexp.MustCompile(`(?i)\s*(?:[,;\n]|\band\b|\be\b|\by\b)\s*`)
	decimalComma = regexp.MustCompile(`(\d),(\d)`)

	leadingMeasure  = regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*(g|gr|grams?|ml)\s+(?:of\s+|de\s+)?(.+)$`)
	trailingMeasure = regexp.MustCompile(`(?i)^(.+?)\s+(\d+(?:[.,]\d+)?)\s*(g|gr|grams?|ml)$`)
	leadingCount    = regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)(?:x\s*|\s+)(.+)$`)
)

type item struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Parser splits the description with fixed rules and returns the same JSON
// payload a model would send to the record_foods tool.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

func (p *Parser) ParseDescription(ctx context.Context, text string) ([]nutrilog.FoodCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return []nutrilog.FoodCandidate{}, nil
	}

	payload, err := json.Marshal(map[string]any{"items": SplitDescription(text)})
	if err != nil {
		return nil, &nutrilog.ParseFormatError{Raw: text, Err: err}
	}

	slog.Info("LLM_CLIENT: Mock parser produced items", "payload_len", len(payload))
	return extract.DecodeCandidates(payload)
}

// SplitDescription applies the parsing convention to text.
func SplitDescription(text string) []item {
	items := make([]item, 0)
	text = decimalComma.ReplaceAllString(text, "$1.$2")
	for _, seg := range separator.Split(text, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		items = append(items, segmentItem(seg))
	}
	return items
}

func segmentItem(seg string) item {
	if m := leadingMeasure.FindStringSubmatch(seg); m != nil {
		return item{Name: strings.TrimSpace(m[3]), Quantity: number(m[1]), Unit: measureUnit(m[2])}
	}
	if m := trailingMeasure.FindStringSubmatch(seg); m != nil {
		return item{Name: strings.TrimSpace(m[1]), Quantity: number(m[2]), Unit: measureUnit(m[3])}
	}
	if m := leadingCount.FindStringSubmatch(seg); m != nil {
		return item{Name: strings.TrimSpace(m[2]), Quantity: number(m[1]), Unit: string(nutrilog.UnitCount)}
	}
	return item{Name: seg, Quantity: 1, Unit: string(nutrilog.UnitCount)}
}

func measureUnit(s string) string {
	if strings.EqualFold(s, "ml") {
		return string(nutrilog.UnitMilliliter)
	}
	return string(nutrilog.UnitGram)
}

func number(s string) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 1
	}
	return f
}

// Estimator answers from a fixed table and fails for anything else.
type Estimator struct {
	table map[string]nutrilog.NutritionFacts
}

var errUnknownFood = errors.New("food not in mock table")

func NewEstimator(table map[string]nutrilog.NutritionFacts) *Estimator {
	if table == nil {
		table = DefaultEstimates()
	}
	normalized := make(map[string]nutrilog.NutritionFacts, len(table))
	for k, v := range table {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &Estimator{table: normalized}
}

func (e *Estimator) Estimate(ctx context.Context, name string) (nutrilog.NutritionFacts, error) {
	if err := ctx.Err(); err != nil {
		return nutrilog.NutritionFacts{}, &nutrilog.EstimationError{Name: name, Err: err}
	}
	facts, ok := e.table[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nutrilog.NutritionFacts{}, &nutrilog.EstimationError{Name: name, Err: errUnknownFood}
	}
	facts.ProductName = name
	return facts, nil
}

func per100(kcal, protein, fat, carbs float64) nutrilog.NutritionFacts {
	return nutrilog.NutritionFacts{Nutrients: nutrilog.Nutrients{
		EnergyKcal: nutrilog.Float(kcal),
		ProteinG:   nutrilog.Float(protein),
		FatG:       nutrilog.Float(fat),
		CarbsG:     nutrilog.Float(carbs),
	}}
}

// DefaultEstimates is a small table of common foods.
func DefaultEstimates() map[string]nutrilog.NutritionFacts {
	return map[string]nutrilog.NutritionFacts{
		"eggs":   per100(155, 13, 11, 1.1),
		"egg":    per100(155, 13, 11, 1.1),
		"ovos":   per100(155, 13, 11, 1.1),
		"rice":   per100(130, 2.7, 0.3, 28),
		"arroz":  per100(130, 2.7, 0.3, 28),
		"banana": per100(89, 1.1, 0.3, 23),
		"bread":  per100(265, 9, 3.2, 49),
		"pão":    per100(265, 9, 3.2, 49),
		"milk":   per100(64, 3.3, 3.6, 4.8),
		"leite":  per100(64, 3.3, 3.6, 4.8),
	}
}
