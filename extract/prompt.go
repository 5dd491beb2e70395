package extract

import "fmt"

// ParseSystemPrompt states the fixed parsing convention. The mock parser
// implements the same rules so tests stay deterministic.
const ParseSystemPrompt = `You extract foods from a short meal description written by the user, in any language.

RULES:
- Every food mentioned becomes one item, in the order it was mentioned.
- Conjunctions and list separators ("and", "e", "y", commas, semicolons) separate distinct foods.
- A "+" joined to a product name is part of that name ("Skyr + protein" is ONE item named "Skyr + protein"). Never split on "+".
- Use unit "gram" only when the text states a number followed by g/gr/grams (e.g. "150g rice").
- Use unit "milliliter" only when the text states a number followed by ml (e.g. "200ml milk").
- Otherwise use unit "count". When no quantity is stated, the quantity is 1.
- Do not invent foods, quantities or portions that are not in the text.

Call the record_foods tool exactly once with all items. If the message mentions no food, call it with an empty list.`

const EstimateSystemPrompt = `You are a nutrition expert. Estimate the nutritional values per 100 g (or 100 ml for drinks) of the food you are given.
Use typical values for the product as commonly sold. Always give your best estimate for calories, protein, fat and carbohydrates; give fiber when you can.
Call the report_nutrition tool exactly once.`

// EstimateUserPrompt asks for the profile of one food.
func EstimateUserPrompt(name string) string {
	return fmt.Sprintf("Food: %s", name)
}

// JSONFallbackInstruction is appended for backends that answer in plain JSON
// rather than through a tool call.
const JSONFallbackInstruction = `
Respond ONLY with the JSON object the tool would receive. No markdown, no explanations.`
