package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"nutrilog"
)

// number accepts JSON numbers and numeric strings such as "150" or "1,5".
type number struct {
	v   float64
	set bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		n.v, n.set = f, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	n.v, n.set = f, true
	return nil
}

func (n number) ptr() *float64 {
	if !n.set {
		return nil
	}
	return nutrilog.Float(n.v)
}

type wireItem struct {
	Name     string `json:"name"`
	Quantity number `json:"quantity"`
	Unit     string `json:"unit"`
}

// DecodeCandidates reads parser output. The payload must be a JSON array of
// items or an object holding one under "items"; anything else is a
// *nutrilog.ParseFormatError. Items that cannot be read are skipped. A missing
// quantity defaults to 1 and a missing unit to count. Out-of-range quantities
// and unknown units are passed through so the caller can reject the single
// candidate.
func DecodeCandidates(raw []byte) ([]nutrilog.FoodCandidate, error) {
	raw = bytes.TrimSpace([]byte(StripCodeFence(string(raw))))
	if len(raw) == 0 {
		return nil, &nutrilog.ParseFormatError{Raw: string(raw), Err: errors.New("empty output")}
	}

	var items []json.RawMessage
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, &nutrilog.ParseFormatError{Raw: string(raw), Err: err}
		}
	case '{':
		var wrapper struct {
			Items *[]json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, &nutrilog.ParseFormatError{Raw: string(raw), Err: err}
		}
		if wrapper.Items == nil {
			return nil, &nutrilog.ParseFormatError{Raw: string(raw), Err: errors.New("object has no items list")}
		}
		items = *wrapper.Items
	default:
		return nil, &nutrilog.ParseFormatError{Raw: string(raw), Err: errors.New("expected a JSON list of foods")}
	}

	out := make([]nutrilog.FoodCandidate, 0, len(items))
	for i, item := range items {
		var wi wireItem
		if err := json.Unmarshal(item, &wi); err != nil {
			slog.Warn("EXTRACT: Skipping unreadable item", "index", i, "error", err)
			continue
		}
		name := strings.TrimSpace(wi.Name)
		if name == "" {
			slog.Warn("EXTRACT: Skipping item without name", "index", i)
			continue
		}

		c := nutrilog.FoodCandidate{Name: name, Quantity: 1, Unit: nutrilog.UnitCount}
		if wi.Quantity.set {
			c.Quantity = wi.Quantity.v
		}
		unit, err := nutrilog.ParseUnit(wi.Unit)
		if err != nil {
			c.Unit = nutrilog.Unit(strings.TrimSpace(wi.Unit))
		} else {
			c.Unit = unit
		}
		out = append(out, c)
	}

	return out, nil
}

type wireEstimate struct {
	Calories number `json:"calories_per_100g"`
	Protein  number `json:"protein_per_100g"`
	Fat      number `json:"fat_per_100g"`
	Carbs    number `json:"carbs_per_100g"`
	Fiber    number `json:"fiber_per_100g"`
}

// DecodeEstimate reads an estimation payload for name. Energy, protein, fat
// and carbs must all be present and non-negative.
func DecodeEstimate(name string, raw []byte) (nutrilog.NutritionFacts, error) {
	raw = []byte(StripCodeFence(string(raw)))

	var we wireEstimate
	if err := json.Unmarshal(raw, &we); err != nil {
		return nutrilog.NutritionFacts{}, &nutrilog.EstimationError{Name: name, Err: fmt.Errorf("malformed estimate: %w", err)}
	}

	required := []struct {
		field string
		n     number
	}{
		{"calories_per_100g", we.Calories},
		{"protein_per_100g", we.Protein},
		{"fat_per_100g", we.Fat},
		{"carbs_per_100g", we.Carbs},
	}
	for _, r := range required {
		if !r.n.set {
			return nutrilog.NutritionFacts{}, &nutrilog.EstimationError{Name: name, Err: fmt.Errorf("missing %s", r.field)}
		}
		if r.n.v < 0 {
			return nutrilog.NutritionFacts{}, &nutrilog.EstimationError{Name: name, Err: fmt.Errorf("negative %s", r.field)}
		}
	}

	facts := nutrilog.NutritionFacts{
		ProductName: name,
		Nutrients: nutrilog.Nutrients{
			EnergyKcal: we.Calories.ptr(),
			ProteinG:   we.Protein.ptr(),
			FatG:       we.Fat.ptr(),
			CarbsG:     we.Carbs.ptr(),
		},
	}
	if we.Fiber.set && we.Fiber.v >= 0 {
		facts.FiberG = we.Fiber.ptr()
	}
	return facts, nil
}

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
