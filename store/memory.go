package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"nutrilog"
)

// Memory is an in-process Repository. It backs tests and local runs without
// a database.
type Memory struct {
	mu          sync.RWMutex
	nextID      int64
	entries     []nutrilog.LoggedFoodEntry
	expenditure map[time.Time]nutrilog.Expenditure
	presets     map[string]nutrilog.MealPreset
	nextPreset  int64
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		expenditure: make(map[time.Time]nutrilog.Expenditure),
		presets:     make(map[string]nutrilog.MealPreset),
		now:         time.Now,
	}
}

func (m *Memory) PersistEntries(ctx context.Context, day time.Time, entries []nutrilog.ResolvedEntry) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	day = dateOnly(day)
	created := m.now()
	ids := make([]int64, len(entries))
	for i, e := range entries {
		m.nextID++
		ids[i] = m.nextID
		m.entries = append(m.entries, nutrilog.LoggedFoodEntry{
			ID:            m.nextID,
			Date:          day,
			CreatedAt:     created,
			ResolvedEntry: e,
		})
	}
	return ids, nil
}

func (m *Memory) SumEntries(ctx context.Context, day time.Time) (nutrilog.DailyNutritionSummary, error) {
	day = dateOnly(day)

	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := nutrilog.DailyNutritionSummary{Date: day}
	for _, e := range m.entries {
		if e.Date.Equal(day) {
			sum.Add(e.Nutrients)
		}
	}
	return sum, nil
}

func (m *Memory) DailySums(ctx context.Context, from, to time.Time) ([]nutrilog.DailyNutritionSummary, error) {
	from, to = dateOnly(from), dateOnly(to)

	m.mu.RLock()
	defer m.mu.RUnlock()

	byDay := make(map[time.Time]*nutrilog.DailyNutritionSummary)
	for _, e := range m.entries {
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		s, ok := byDay[e.Date]
		if !ok {
			s = &nutrilog.DailyNutritionSummary{Date: e.Date}
			byDay[e.Date] = s
		}
		s.Add(e.Nutrients)
	}

	out := make([]nutrilog.DailyNutritionSummary, 0, len(byDay))
	for _, s := range byDay {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) Entries(ctx context.Context, day time.Time) ([]nutrilog.LoggedFoodEntry, error) {
	return m.EntriesBetween(ctx, day, day)
}

func (m *Memory) EntriesBetween(ctx context.Context, from, to time.Time) ([]nutrilog.LoggedFoodEntry, error) {
	from, to = dateOnly(from), dateOnly(to)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]nutrilog.LoggedFoodEntry, 0)
	for _, e := range m.entries {
		if !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) DeleteMostRecentEntry(ctx context.Context, day time.Time) (nutrilog.LoggedFoodEntry, bool, error) {
	day = dateOnly(day)

	m.mu.Lock()
	defer m.mu.Unlock()

	// ids grow with insertion, so the highest id of the day is the latest
	idx := -1
	for i, e := range m.entries {
		if e.Date.Equal(day) && (idx < 0 || e.ID > m.entries[idx].ID) {
			idx = i
		}
	}
	if idx < 0 {
		return nutrilog.LoggedFoodEntry{}, false, nil
	}

	removed := m.entries[idx]
	m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
	return removed, true, nil
}

func (m *Memory) ExpendedCalories(ctx context.Context, day time.Time) (nutrilog.Expenditure, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.expenditure[dateOnly(day)]
	return exp, ok, nil
}

func (m *Memory) RecordExpenditure(ctx context.Context, day time.Time, exp nutrilog.Expenditure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expenditure[dateOnly(day)] = exp
	return nil
}

func (m *Memory) SavePreset(ctx context.Context, preset nutrilog.MealPreset) (nutrilog.MealPreset, error) {
	if err := preset.Validate(); err != nil {
		return nutrilog.MealPreset{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := presetKey(preset.Name)
	if prev, ok := m.presets[key]; ok {
		preset.ID = prev.ID
	} else {
		m.nextPreset++
		preset.ID = m.nextPreset
	}
	preset.Name = strings.TrimSpace(preset.Name)
	preset.Entries = append([]nutrilog.ResolvedEntry(nil), preset.Entries...)
	preset.CreatedAt = m.now()
	m.presets[key] = preset
	return preset, nil
}

func (m *Memory) GetPreset(ctx context.Context, name string) (nutrilog.MealPreset, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.presets[presetKey(name)]
	return p, ok, nil
}

func (m *Memory) ListPresets(ctx context.Context) ([]nutrilog.MealPreset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]nutrilog.MealPreset, 0, len(m.presets))
	for _, p := range m.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return presetKey(out[i].Name) < presetKey(out[j].Name) })
	return out, nil
}

func (m *Memory) DeletePreset(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := presetKey(name)
	if _, ok := m.presets[key]; !ok {
		return false, nil
	}
	delete(m.presets, key)
	return true, nil
}

func (m *Memory) Close() {}
