package mock

import (
	"context"
	"testing"

	"nutrilog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserConvention(t *testing.T) {
	tests := []struct {
		text string
		want []nutrilog.FoodCandidate
	}{
		{
			text: "150g rice and 2 eggs",
			want: []nutrilog.FoodCandidate{
				{Name: "rice", Quantity: 150, Unit: nutrilog.UnitGram},
				{Name: "eggs", Quantity: 2, Unit: nutrilog.UnitCount},
			},
		},
		{
			text: "Skyr + protein e 1 banana",
			want: []nutrilog.FoodCandidate{
				{Name: "Skyr + protein", Quantity: 1, Unit: nutrilog.UnitCount},
				{Name: "banana", Quantity: 1, Unit: nutrilog.UnitCount},
			},
		},
		{
			text: "200ml leite, pão; 30 g de queijo",
			want: []nutrilog.FoodCandidate{
				{Name: "leite", Quantity: 200, Unit: nutrilog.UnitMilliliter},
				{Name: "pão", Quantity: 1, Unit: nutrilog.UnitCount},
				{Name: "queijo", Quantity: 30, Unit: nutrilog.UnitGram},
			},
		},
		{
			text: "oats 40g",
			want: []nutrilog.FoodCandidate{{Name: "oats", Quantity: 40, Unit: nutrilog.UnitGram}},
		},
		{
			text: "2x iogurte",
			want: []nutrilog.FoodCandidate{{Name: "iogurte", Quantity: 2, Unit: nutrilog.UnitCount}},
		},
		{
			text: "0,5 abacate, 2 kiwis",
			want: []nutrilog.FoodCandidate{
				{Name: "abacate", Quantity: 0.5, Unit: nutrilog.UnitCount},
				{Name: "kiwis", Quantity: 2, Unit: nutrilog.UnitCount},
			},
		},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := p.ParseDescription(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParserEmpty(t *testing.T) {
	got, err := NewParser().ParseDescription(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = NewParser().ParseDescription(context.Background(), " , and ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEstimator(t *testing.T) {
	e := NewEstimator(nil)

	facts, err := e.Estimate(context.Background(), " Eggs ")
	require.NoError(t, err)
	assert.Equal(t, 155.0, *facts.EnergyKcal)

	_, err = e.Estimate(context.Background(), "dragonfruit smoothie")
	var eerr *nutrilog.EstimationError
	require.ErrorAs(t, err, &eerr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Estimate(ctx, "eggs")
	require.ErrorAs(t, err, &eerr)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog().
		AddName("Rice", per100(130, 2.7, 0.3, 28)).
		AddCode("5410188032995", per100(250, 5, 10, 30))

	_, ok := c.LookupByName(context.Background(), "rice")
	assert.True(t, ok)
	_, ok = c.LookupByName(context.Background(), "eggs")
	assert.False(t, ok)
	_, ok = c.LookupByCode(context.Background(), "5410188032995")
	assert.True(t, ok)
}
