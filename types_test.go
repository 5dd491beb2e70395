package nutrilog

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    Unit
		wantErr bool
	}{
		{"g", UnitGram, false},
		{"Grams", UnitGram, false},
		{" ml ", UnitMilliliter, false},
		{"milliliter", UnitMilliliter, false},
		{"un", UnitCount, false},
		{"", UnitCount, false},
		{"count", UnitCount, false},
		{"cup", "", true},
		{"kg", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnit(tt.in)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "unit", verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFoodCandidateValidate(t *testing.T) {
	tests := []struct {
		name  string
		c     FoodCandidate
		field string
	}{
		{"valid", FoodCandidate{Name: "rice", Quantity: 150, Unit: UnitGram}, ""},
		{"empty name", FoodCandidate{Name: " ", Quantity: 1, Unit: UnitCount}, "name"},
		{"zero quantity", FoodCandidate{Name: "rice", Quantity: 0, Unit: UnitGram}, "quantity"},
		{"negative quantity", FoodCandidate{Name: "rice", Quantity: -1, Unit: UnitGram}, "quantity"},
		{"bad unit", FoodCandidate{Name: "rice", Quantity: 1, Unit: "cup"}, "unit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestResolvedEntryValidateBarcodeInvariant(t *testing.T) {
	base := ResolvedEntry{Name: "cereal", Quantity: 1, Unit: UnitCount}

	e := base
	e.Source = SourceBarcode
	assert.Error(t, e.Validate())
	e.Barcode = "5410188032995"
	assert.NoError(t, e.Validate())

	e = base
	e.Source = SourceLookup
	e.Barcode = "123"
	assert.Error(t, e.Validate())

	e.Source = "manual"
	e.Barcode = ""
	assert.Error(t, e.Validate())
}

func TestResolvedEntryWithQuantity(t *testing.T) {
	e := ResolvedEntry{
		Name:      "yogurt",
		Quantity:  1,
		Unit:      UnitCount,
		Nutrients: Nutrients{EnergyKcal: Float(120), ProteinG: Float(8)},
		Source:    SourceBarcode,
		Barcode:   "5601234567890",
	}

	got, err := e.WithQuantity(3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Quantity)
	assert.InDelta(t, 360, *got.EnergyKcal, 1e-9)
	assert.InDelta(t, 24, *got.ProteinG, 1e-9)
	assert.Nil(t, got.FatG)
	assert.InDelta(t, 120, *e.EnergyKcal, 1e-9, "original entry is untouched")

	_, err = e.WithQuantity(0)
	assert.Error(t, err)
}

func TestDailySummaryAdd(t *testing.T) {
	var s DailyNutritionSummary
	s.Add(Nutrients{EnergyKcal: Float(200), ProteinG: Float(10)})
	s.Add(Nutrients{ProteinG: Float(5)})

	assert.Equal(t, 2, s.EntryCount)
	assert.Equal(t, 1, s.MissingEnergyCount)
	assert.True(t, s.Incomplete())
	assert.InDelta(t, 200, s.TotalEnergyKcal, 1e-9)
	assert.InDelta(t, 15, s.TotalProteinG, 1e-9)
	assert.Zero(t, s.TotalFatG)
}

func TestDay(t *testing.T) {
	lisbon, err := time.LoadLocation("Europe/Lisbon")
	require.NoError(t, err)

	// 23:30 UTC on 31 May is already 1 June in Lisbon summer time
	ts := time.Date(2025, 5, 31, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Day(ts, lisbon))
	assert.Equal(t, time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC), Day(ts, nil))
}

func TestResolvedEntryJSONIsFlat(t *testing.T) {
	e := ResolvedEntry{Name: "rice", Quantity: 150, Unit: UnitGram, Nutrients: Nutrients{EnergyKcal: Float(195)}, Source: SourceLookup}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, 195.0, m["energy_kcal"])
	assert.Nil(t, m["fat_g"])
	assert.NotContains(t, m, "barcode")
}

func TestFileResolutionLoggerFlush(t *testing.T) {
	var buf bytes.Buffer
	l := NewFileResolutionLogger(&buf)

	require.NoError(t, l.LogResolution(ResolutionLog{RequestID: "r1", Kind: "text", Items: []ItemLog{{Name: "rice", Source: SourceLookup, Found: true}}}))
	assert.Zero(t, buf.Len())

	require.NoError(t, l.Flush())
	assert.Contains(t, buf.String(), `"request_id": "r1"`)
	assert.Contains(t, buf.String(), `"resolution_session"`)
	assert.Empty(t, l.entries)
}

func TestStdoutResolutionLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &StdoutResolutionLogger{out: &buf}

	require.NoError(t, l.LogResolution(ResolutionLog{RequestID: "r2", Kind: "photo", Error: "no result"}))
	assert.Contains(t, buf.String(), `"kind":"photo"`)
	assert.Contains(t, buf.String(), "\n")
}

func TestNewResolutionLogFilePath(t *testing.T) {
	p := NewResolutionLogFilePath("us.anthropic.claude-3-7-sonnet:0")
	assert.Contains(t, p, "./logs/")
	assert.Contains(t, p, "us.anthropic.claude-3-7-sonnet_0.json")
}
