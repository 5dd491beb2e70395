// Package nutrient converts per-100g nutrition facts into absolute values for
// a logged quantity.
package nutrient

import (
	"nutrilog"
)

const (
	DefaultMilliliterDensity = 1.0
	DefaultUnitGrams         = 100.0
)

// Assumptions are the conversions used when facts alone cannot pin a quantity
// to grams. Both are approximations and are tunable through configuration.
type Assumptions struct {
	// MilliliterDensity is grams per milliliter.
	MilliliterDensity float64
	// DefaultUnitGrams is the weight assumed for one unit without a known serving size.
	DefaultUnitGrams float64
}

func DefaultAssumptions() Assumptions {
	return Assumptions{
		MilliliterDensity: DefaultMilliliterDensity,
		DefaultUnitGrams:  DefaultUnitGrams,
	}
}

func AssumptionsFromConfig(cfg nutrilog.CalculatorConfig) Assumptions {
	a := DefaultAssumptions()
	if cfg.MilliliterDensity > 0 {
		a.MilliliterDensity = cfg.MilliliterDensity
	}
	if cfg.DefaultUnitGrams > 0 {
		a.DefaultUnitGrams = cfg.DefaultUnitGrams
	}
	return a
}

type Result struct {
	Nutrients nutrilog.Nutrients
	// Grams is the weight the facts were applied to.
	Grams float64
	// Approximate is set when a count was converted with DefaultUnitGrams.
	Approximate bool
}

type Calculator struct {
	assume Assumptions
}

func NewCalculator(a Assumptions) *Calculator {
	if a.MilliliterDensity <= 0 {
		a.MilliliterDensity = DefaultMilliliterDensity
	}
	if a.DefaultUnitGrams <= 0 {
		a.DefaultUnitGrams = DefaultUnitGrams
	}
	return &Calculator{assume: a}
}

// Calculate applies facts to quantity of unit. Unknown fact values stay nil in
// the result and no rounding is applied.
func (c *Calculator) Calculate(facts nutrilog.NutritionFacts, quantity float64, unit nutrilog.Unit) (Result, error) {
	if err := (nutrilog.FoodCandidate{Name: "-", Quantity: quantity, Unit: unit}).Validate(); err != nil {
		return Result{}, err
	}

	var res Result
	switch unit {
	case nutrilog.UnitGram:
		res.Grams = quantity
	case nutrilog.UnitMilliliter:
		res.Grams = quantity * c.assume.MilliliterDensity
	case nutrilog.UnitCount:
		if facts.ServingSizeG != nil && *facts.ServingSizeG > 0 {
			res.Grams = quantity * *facts.ServingSizeG
		} else {
			res.Grams = quantity * c.assume.DefaultUnitGrams
			res.Approximate = true
		}
	}

	res.Nutrients = facts.Nutrients.Scale(res.Grams / 100)
	return res, nil
}

// Calculate uses the default assumptions.
func Calculate(facts nutrilog.NutritionFacts, quantity float64, unit nutrilog.Unit) (Result, error) {
	return NewCalculator(DefaultAssumptions()).Calculate(facts, quantity, unit)
}
