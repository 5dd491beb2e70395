package nutrilog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Notifier interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// DescriptionParser turns a free-text meal description into ordered food candidates.
type DescriptionParser interface {
	ParseDescription(ctx context.Context, text string) ([]FoodCandidate, error)
}

// BarcodeDecoder extracts the first product code found in an image. A missing
// or unreadable code is reported through the boolean, never as an error.
type BarcodeDecoder interface {
	DecodeBarcode(ctx context.Context, image []byte) (string, bool)
}

// FactSource looks up per-100g nutrition facts. It fails open: transport
// problems and unknown products both come back as found == false.
type FactSource interface {
	LookupByCode(ctx context.Context, code string) (NutritionFacts, bool)
	LookupByName(ctx context.Context, name string) (NutritionFacts, bool)
}

// Estimator produces a model-estimated per-100g profile. It fails closed with
// an *EstimationError.
type Estimator interface {
	Estimate(ctx context.Context, name string) (NutritionFacts, error)
}

// ExpenditureSource reports energy expenditure for a calendar day. ok is false
// when the day has no measurement.
type ExpenditureSource interface {
	ExpendedCalories(ctx context.Context, day time.Time) (exp Expenditure, ok bool, err error)
}

type Unit string

const (
	UnitCount      Unit = "count"
	UnitGram       Unit = "gram"
	UnitMilliliter Unit = "milliliter"
)

// ParseUnit accepts the canonical unit names and the short forms used in
// descriptions and model output ("g", "ml", "un").
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "count", "un", "unit", "units", "unidade", "unidades", "x", "":
		return UnitCount, nil
	case "gram", "grams", "g", "gr", "gramas":
		return UnitGram, nil
	case "milliliter", "milliliters", "millilitre", "ml":
		return UnitMilliliter, nil
	}
	return "", &ValidationError{Field: "unit", Reason: "unrecognized unit " + strings.TrimSpace(s)}
}

func (u Unit) Valid() bool {
	return u == UnitCount || u == UnitGram || u == UnitMilliliter
}

// Short is the compact label used in reports.
func (u Unit) Short() string {
	switch u {
	case UnitGram:
		return "g"
	case UnitMilliliter:
		return "ml"
	default:
		return "un"
	}
}

type FoodCandidate struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     Unit    `json:"unit"`
}

func (c FoodCandidate) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !(c.Quantity > 0) {
		return &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if !c.Unit.Valid() {
		return &ValidationError{Field: "unit", Reason: "unrecognized unit " + string(c.Unit)}
	}
	return nil
}

// Nutrients holds energy and macro values. A nil field means unknown and is
// never the same thing as zero.
type Nutrients struct {
	EnergyKcal *float64 `json:"energy_kcal"`
	ProteinG   *float64 `json:"protein_g"`
	FatG       *float64 `json:"fat_g"`
	CarbsG     *float64 `json:"carbs_g"`
	FiberG     *float64 `json:"fiber_g"`
}

// Scale multiplies every known value by factor; unknown values stay unknown.
func (n Nutrients) Scale(factor float64) Nutrients {
	return Nutrients{
		EnergyKcal: scale(n.EnergyKcal, factor),
		ProteinG:   scale(n.ProteinG, factor),
		FatG:       scale(n.FatG, factor),
		CarbsG:     scale(n.CarbsG, factor),
		FiberG:     scale(n.FiberG, factor),
	}
}

func (n Nutrients) HasEnergy() bool { return n.EnergyKcal != nil }

func scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v * factor)
}

// NutritionFacts are expressed per 100 g (or 100 ml).
type NutritionFacts struct {
	Nutrients
	ServingSizeG *float64 `json:"serving_size_g"`
	ProductName  string   `json:"product_name,omitempty"`
}

type Source string

const (
	SourceLookup   Source = "lookup"
	SourceEstimate Source = "estimate"
	SourceBarcode  Source = "barcode"
)

// ResolvedEntry is the unit of confirmation and persistence. Barcode is empty
// unless Source is SourceBarcode.
type ResolvedEntry struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     Unit    `json:"unit"`
	Nutrients
	Source      Source `json:"source"`
	Barcode     string `json:"barcode,omitempty"`
	Approximate bool   `json:"approximate,omitempty"`
}

func (e ResolvedEntry) Validate() error {
	if err := (FoodCandidate{Name: e.Name, Quantity: e.Quantity, Unit: e.Unit}).Validate(); err != nil {
		return err
	}
	switch e.Source {
	case SourceLookup, SourceEstimate:
		if e.Barcode != "" {
			return &ValidationError{Field: "barcode", Reason: "only barcode entries carry a code"}
		}
	case SourceBarcode:
		if e.Barcode == "" {
			return &ValidationError{Field: "barcode", Reason: "barcode entry without code"}
		}
	default:
		return &ValidationError{Field: "source", Reason: "unknown source " + string(e.Source)}
	}
	return nil
}

// WithQuantity rescales the entry linearly to a new quantity of the same unit.
func (e ResolvedEntry) WithQuantity(q float64) (ResolvedEntry, error) {
	if !(q > 0) {
		return e, &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	out := e
	out.Nutrients = e.Nutrients.Scale(q / e.Quantity)
	out.Quantity = q
	return out, nil
}

// MealPreset is a named set of entries saved for reuse. Names are unique
// ignoring case.
type MealPreset struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Entries   []ResolvedEntry `json:"entries"`
	CreatedAt time.Time       `json:"created_at"`
}

func (p MealPreset) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(p.Entries) == 0 {
		return &ValidationError{Field: "entries", Reason: "must not be empty"}
	}
	for i, e := range p.Entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// Totals sums the preset's entries the same way a day is summed.
func (p MealPreset) Totals() DailyNutritionSummary {
	var sum DailyNutritionSummary
	for _, e := range p.Entries {
		sum.Add(e.Nutrients)
	}
	return sum
}

type LoggedFoodEntry struct {
	ID        int64     `json:"id"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
	ResolvedEntry
}

// DailyNutritionSummary sums a day's entries. Unknown values add nothing to the
// totals; MissingEnergyCount records how many entries lacked energy.
type DailyNutritionSummary struct {
	Date               time.Time `json:"date"`
	TotalEnergyKcal    float64   `json:"total_energy_kcal"`
	TotalProteinG      float64   `json:"total_protein_g"`
	TotalFatG          float64   `json:"total_fat_g"`
	TotalCarbsG        float64   `json:"total_carbs_g"`
	TotalFiberG        float64   `json:"total_fiber_g"`
	EntryCount         int       `json:"entry_count"`
	MissingEnergyCount int       `json:"missing_energy_count"`
}

func (s *DailyNutritionSummary) Add(n Nutrients) {
	s.EntryCount++
	if n.EnergyKcal == nil {
		s.MissingEnergyCount++
	}
	s.TotalEnergyKcal += deref(n.EnergyKcal)
	s.TotalProteinG += deref(n.ProteinG)
	s.TotalFatG += deref(n.FatG)
	s.TotalCarbsG += deref(n.CarbsG)
	s.TotalFiberG += deref(n.FiberG)
}

// Incomplete reports whether any entry of the day is missing its energy value.
func (s DailyNutritionSummary) Incomplete() bool { return s.MissingEnergyCount > 0 }

type WeeklyAverage struct {
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	AvgEnergyKcal float64   `json:"avg_energy_kcal"`
	AvgProteinG   float64   `json:"avg_protein_g"`
	AvgFatG       float64   `json:"avg_fat_g"`
	AvgCarbsG     float64   `json:"avg_carbs_g"`
	AvgFiberG     float64   `json:"avg_fiber_g"`
	DaysWithData  int       `json:"days_with_data"`
	EntryCount    int       `json:"entry_count"`
}

type Expenditure struct {
	ActiveKcal  float64 `json:"active_kcal"`
	RestingKcal float64 `json:"resting_kcal"`
}

func (e Expenditure) Total() float64 { return e.ActiveKcal + e.RestingKcal }

// CalorieBalance is positive for a deficit and negative for a surplus.
type CalorieBalance struct {
	ExpendedKcal *float64 `json:"expended_kcal"`
	IngestedKcal *float64 `json:"ingested_kcal"`
	BalanceKcal  *float64 `json:"balance_kcal"`
	BalancePct   *float64 `json:"balance_pct"`
}

func Float(v float64) *float64 { return &v }

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Day returns the calendar day of t in loc as midnight UTC, the canonical
// representation for entry dates.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
