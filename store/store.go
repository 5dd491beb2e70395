// Package store persists confirmed food entries and daily expenditure.
package store

import (
	"context"
	"strings"
	"time"

	"nutrilog"
)

// Repository is the relational surface the rest of the system needs. Days are
// calendar dates as returned by nutrilog.Day.
type Repository interface {
	// PersistEntries writes the batch atomically and returns the new ids in order.
	PersistEntries(ctx context.Context, day time.Time, entries []nutrilog.ResolvedEntry) ([]int64, error)
	SumEntries(ctx context.Context, day time.Time) (nutrilog.DailyNutritionSummary, error)
	// DailySums returns one summary per day in [from, to] that has entries, ordered by date.
	DailySums(ctx context.Context, from, to time.Time) ([]nutrilog.DailyNutritionSummary, error)
	Entries(ctx context.Context, day time.Time) ([]nutrilog.LoggedFoodEntry, error)
	EntriesBetween(ctx context.Context, from, to time.Time) ([]nutrilog.LoggedFoodEntry, error)
	// DeleteMostRecentEntry removes the latest entry of day, if any.
	DeleteMostRecentEntry(ctx context.Context, day time.Time) (nutrilog.LoggedFoodEntry, bool, error)
	ExpendedCalories(ctx context.Context, day time.Time) (nutrilog.Expenditure, bool, error)
	RecordExpenditure(ctx context.Context, day time.Time, exp nutrilog.Expenditure) error

	// SavePreset creates the preset, or replaces the one whose name matches
	// ignoring case.
	SavePreset(ctx context.Context, preset nutrilog.MealPreset) (nutrilog.MealPreset, error)
	// GetPreset finds a preset by name, ignoring case.
	GetPreset(ctx context.Context, name string) (nutrilog.MealPreset, bool, error)
	// ListPresets returns every preset ordered by name.
	ListPresets(ctx context.Context) ([]nutrilog.MealPreset, error)
	DeletePreset(ctx context.Context, name string) (bool, error)

	Close()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func presetKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
