// Package extract defines the structured-output contracts shared by the LLM
// backends: the tool schemas the model is forced to fill, the prompts that
// describe the parsing convention, and the decoders that turn model output
// into domain values.
package extract

import "github.com/modelcontextprotocol/go-sdk/jsonschema"

const (
	RecordFoodsTool     = "record_foods"
	ReportNutritionTool = "report_nutrition"
)

type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// RecordFoods is the tool the parser model must call with the extracted items.
func RecordFoods() Tool {
	minQty := 0.0
	return Tool{
		Name:        RecordFoodsTool,
		Description: "Records every food mentioned in the user's message, in the order mentioned.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"items": {
					Type: "array",
					Items: &jsonschema.Schema{
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"name":     {Type: "string", Description: "Food or product name, including any '+' qualifier"},
							"quantity": {Type: "number", ExclusiveMinimum: &minQty},
							"unit":     {Type: "string", Enum: []any{"count", "gram", "milliliter"}},
						},
						Required: []string{"name", "quantity", "unit"},
					},
				},
			},
			Required: []string{"items"},
		},
	}
}

// ReportNutrition is the tool the estimation model must call with a per-100g profile.
func ReportNutrition() Tool {
	zero := 0.0
	num := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "number", Minimum: &zero, Description: desc}
	}
	return Tool{
		Name:        ReportNutritionTool,
		Description: "Reports the estimated nutrition of a food per 100 g (or 100 ml).",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"calories_per_100g": num("Energy in kcal"),
				"protein_per_100g":  num("Protein in grams"),
				"fat_per_100g":      num("Fat in grams"),
				"carbs_per_100g":    num("Carbohydrates in grams"),
				"fiber_per_100g":    num("Fiber in grams, omit if unknown"),
			},
			Required: []string{"calories_per_100g", "protein_per_100g", "fat_per_100g", "carbs_per_100g"},
		},
	}
}
