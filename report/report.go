// Package report aggregates logged entries into daily and weekly figures and
// reconciles them against measured expenditure.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nutrilog"
)

// EntryStore is the read side of the entry repository.
type EntryStore interface {
	SumEntries(ctx context.Context, day time.Time) (nutrilog.DailyNutritionSummary, error)
	DailySums(ctx context.Context, from, to time.Time) ([]nutrilog.DailyNutritionSummary, error)
	EntriesBetween(ctx context.Context, from, to time.Time) ([]nutrilog.LoggedFoodEntry, error)
}

type Engine struct {
	entries     EntryStore
	expenditure nutrilog.ExpenditureSource
	tracer      trace.Tracer
}

// NewEngine builds an Engine. expenditure may be nil, in which case every
// balance has an unknown expended side.
func NewEngine(entries EntryStore, expenditure nutrilog.ExpenditureSource) *Engine {
	return &Engine{
		entries:     entries,
		expenditure: expenditure,
		tracer:      otel.Tracer(nutrilog.TracerNameReport),
	}
}

// DailySummary totals the entries of day. An empty day is a zero summary.
func (e *Engine) DailySummary(ctx context.Context, day time.Time) (nutrilog.DailyNutritionSummary, error) {
	sum, err := e.entries.SumEntries(ctx, day)
	if err != nil {
		return nutrilog.DailyNutritionSummary{}, fmt.Errorf("daily summary: %w", err)
	}
	return sum, nil
}

// WeeklyAverage averages the seven days ending on end, inclusive. Days
// without entries are left out of the denominator.
func (e *Engine) WeeklyAverage(ctx context.Context, end time.Time) (nutrilog.WeeklyAverage, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.WeeklyAverage")
	defer span.End()

	end = nutrilog.Day(end, time.UTC)
	start := end.AddDate(0, 0, -6)
	avg := nutrilog.WeeklyAverage{StartDate: start, EndDate: end}

	sums, err := e.entries.DailySums(ctx, start, end)
	if err != nil {
		return avg, fmt.Errorf("weekly average: %w", err)
	}

	for _, s := range sums {
		if s.EntryCount == 0 {
			continue
		}
		avg.DaysWithData++
		avg.EntryCount += s.EntryCount
		avg.AvgEnergyKcal += s.TotalEnergyKcal
		avg.AvgProteinG += s.TotalProteinG
		avg.AvgFatG += s.TotalFatG
		avg.AvgCarbsG += s.TotalCarbsG
		avg.AvgFiberG += s.TotalFiberG
	}
	if avg.DaysWithData > 0 {
		n := float64(avg.DaysWithData)
		avg.AvgEnergyKcal /= n
		avg.AvgProteinG /= n
		avg.AvgFatG /= n
		avg.AvgCarbsG /= n
		avg.AvgFiberG /= n
	}
	span.SetAttributes(attribute.Int("days_with_data", avg.DaysWithData))
	return avg, nil
}

// CalorieBalance is expended minus ingested. Either side unknown makes the
// whole balance unknown; the percentage also needs a nonzero expended value.
func CalorieBalance(expended, ingested *float64) nutrilog.CalorieBalance {
	b := nutrilog.CalorieBalance{ExpendedKcal: expended, IngestedKcal: ingested}
	if expended == nil || ingested == nil {
		return b
	}
	balance := *expended - *ingested
	b.BalanceKcal = &balance
	if *expended != 0 {
		pct := balance / *expended * 100
		b.BalancePct = &pct
	}
	return b
}

// DayReport is everything known about one day.
type DayReport struct {
	Summary     nutrilog.DailyNutritionSummary `json:"summary"`
	Expenditure *nutrilog.Expenditure          `json:"expenditure"`
	Balance     nutrilog.CalorieBalance        `json:"balance"`
}

// Reconcile builds the day report. A failing expenditure source is logged and
// treated as unknown rather than failing the report.
func (e *Engine) Reconcile(ctx context.Context, day time.Time) (DayReport, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Reconcile",
		trace.WithAttributes(attribute.String("day", day.Format(time.DateOnly))))
	defer span.End()

	sum, err := e.DailySummary(ctx, day)
	if err != nil {
		span.RecordError(err)
		return DayReport{}, err
	}
	rep := DayReport{Summary: sum}

	var ingested *float64
	if sum.EntryCount > 0 {
		ingested = nutrilog.Float(sum.TotalEnergyKcal)
	}

	var expended *float64
	if e.expenditure != nil {
		exp, ok, err := e.expenditure.ExpendedCalories(ctx, day)
		switch {
		case err != nil:
			slog.Warn("REPORT: expenditure unavailable", "day", day.Format(time.DateOnly), "error", err)
		case ok:
			rep.Expenditure = &exp
			expended = nutrilog.Float(exp.Total())
		}
	}

	rep.Balance = CalorieBalance(expended, ingested)
	return rep, nil
}
