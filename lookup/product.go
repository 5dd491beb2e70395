package lookup

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"nutrilog"
)

// offProduct is the subset of an Open Food Facts product record we read.
type offProduct struct {
	Code                string         `json:"code"`
	ProductName         string         `json:"product_name"`
	ProductNameLocal    string         `json:"-"`
	AbbreviatedName     string         `json:"abbreviated_product_name"`
	GenericName         string         `json:"generic_name"`
	Nutriments          map[string]any `json:"nutriments"`
	ServingQuantity     any            `json:"serving_quantity"`
	ServingQuantityUnit string         `json:"serving_quantity_unit"`
	ServingSize         string         `json:"serving_size"`
}

// decodeProduct reads a product object and picks up the localized name field
// for lang (e.g. product_name_pt).
func decodeProduct(raw json.RawMessage, lang string) (offProduct, error) {
	var p offProduct
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	if lang != "" {
		var names map[string]any
		if err := json.Unmarshal(raw, &names); err == nil {
			if s, ok := names["product_name_"+lang].(string); ok {
				p.ProductNameLocal = s
			}
		}
	}
	return p, nil
}

// Name returns the best available product name: localized name, product_name,
// abbreviated name, then generic name.
func (p offProduct) Name() string {
	for _, n := range []string{p.ProductNameLocal, p.ProductName, p.AbbreviatedName, p.GenericName} {
		if s := strings.TrimSpace(n); s != "" {
			return s
		}
	}
	return ""
}

// Facts converts the product into per-100g facts. ok is false when the
// product carries no usable energy value.
func (p offProduct) Facts() (nutrilog.NutritionFacts, bool) {
	facts := nutrilog.NutritionFacts{
		ProductName: p.Name(),
		Nutrients: nutrilog.Nutrients{
			EnergyKcal: p.kcal100g(),
			ProteinG:   nutriment(p.Nutriments, "proteins_100g", 100),
			FatG:       nutriment(p.Nutriments, "fat_100g", 100),
			CarbsG:     nutriment(p.Nutriments, "carbohydrates_100g", 100),
			FiberG:     nutriment(p.Nutriments, "fiber_100g", 100),
		},
		ServingSizeG: p.servingGrams(),
	}
	return facts, facts.EnergyKcal != nil
}

// kcal100g prefers energy-kcal_100g and falls back to energy-kj_100g / 4.184.
func (p offProduct) kcal100g() *float64 {
	if v := nutriment(p.Nutriments, "energy-kcal_100g", 10000); v != nil {
		return v
	}
	if v := nutriment(p.Nutriments, "energy-kj_100g", 41840); v != nil {
		return nutrilog.Float(*v / 4.184)
	}
	return nil
}

var servingPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(g|gr|ml)\b`)

// servingGrams reads serving_quantity, falling back to the first gram or
// milliliter amount written in serving_size ("1 pot (125 g)").
func (p offProduct) servingGrams() *float64 {
	if p.ServingQuantityUnit == "" || strings.EqualFold(p.ServingQuantityUnit, "g") || strings.EqualFold(p.ServingQuantityUnit, "ml") {
		if v, ok := toFloat(p.ServingQuantity); ok && v > 0 {
			return nutrilog.Float(v)
		}
	}
	if m := servingPattern.FindStringSubmatch(p.ServingSize); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil && v > 0 {
			return nutrilog.Float(v)
		}
	}
	return nil
}

// nutriment returns the value for key when it is present and within [0, max].
func nutriment(m map[string]any, key string, max float64) *float64 {
	v, ok := toFloat(m[key])
	if !ok || v < 0 || v > max {
		return nil
	}
	return nutrilog.Float(v)
}

// toFloat coerces a JSON number or numeric string.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(x, ",", ".")), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
