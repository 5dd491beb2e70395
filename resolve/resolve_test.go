package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nutrilog"
	"nutrilog/llm/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParser struct {
	candidates []nutrilog.FoodCandidate
	err        error
}

func (f fakeParser) ParseDescription(ctx context.Context, text string) ([]nutrilog.FoodCandidate, error) {
	return f.candidates, f.err
}

type fakeDecoder struct {
	code string
	ok   bool
}

func (f fakeDecoder) DecodeBarcode(ctx context.Context, img []byte) (string, bool) {
	return f.code, f.ok
}

// countingEstimator wraps an estimator and records which names it was asked for.
type countingEstimator struct {
	next  nutrilog.Estimator
	mu    sync.Mutex
	names []string
	delay time.Duration
}

func (e *countingEstimator) Estimate(ctx context.Context, name string) (nutrilog.NutritionFacts, error) {
	e.mu.Lock()
	e.names = append(e.names, name)
	e.mu.Unlock()
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nutrilog.NutritionFacts{}, ctx.Err()
		}
	}
	return e.next.Estimate(ctx, name)
}

func (e *countingEstimator) calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.names...)
}

// slowFacts delays lookups by name to shuffle completion order.
type slowFacts struct {
	nutrilog.FactSource
	delays   map[string]time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
}

func (s *slowFacts) LookupByName(ctx context.Context, name string) (nutrilog.NutritionFacts, bool) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if d, ok := s.delays[name]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nutrilog.NutritionFacts{}, false
		}
	}
	return s.FactSource.LookupByName(ctx, name)
}

func per100(kcal float64) nutrilog.NutritionFacts {
	return nutrilog.NutritionFacts{Nutrients: nutrilog.Nutrients{
		EnergyKcal: nutrilog.Float(kcal),
		ProteinG:   nutrilog.Float(1),
		FatG:       nutrilog.Float(1),
		CarbsG:     nutrilog.Float(1),
	}}
}

func newResolver(t *testing.T, deps Deps, opts Options) *Resolver {
	t.Helper()
	if deps.Parser == nil {
		deps.Parser = mock.NewParser()
	}
	if deps.Decoder == nil {
		deps.Decoder = fakeDecoder{}
	}
	if deps.Facts == nil {
		deps.Facts = mock.NewCatalog()
	}
	if deps.Estimator == nil {
		deps.Estimator = mock.NewEstimator(nil)
	}
	r, err := New(deps, opts)
	require.NoError(t, err)
	return r
}

func TestNewRequiresAllCollaborators(t *testing.T) {
	_, err := New(Deps{Parser: mock.NewParser()}, Options{})
	assert.Error(t, err)
}

func TestResolveTextLookupThenEstimate(t *testing.T) {
	est := &countingEstimator{next: mock.NewEstimator(nil)}
	r := newResolver(t, Deps{
		Facts:     mock.NewCatalog().AddName("rice", per100(130)),
		Estimator: est,
	}, Options{})

	res, err := r.ResolveText(context.Background(), "150g rice and 2 eggs")
	require.NoError(t, err)

	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, KindText, res.Kind)
	assert.Equal(t, []string{"eggs"}, est.calls())

	entries := res.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, "rice", entries[0].Name)
	assert.Equal(t, nutrilog.SourceLookup, entries[0].Source)
	assert.InDelta(t, 195, *entries[0].EnergyKcal, 1e-9)
	assert.Empty(t, entries[0].Barcode)

	assert.Equal(t, "eggs", entries[1].Name)
	assert.Equal(t, nutrilog.SourceEstimate, entries[1].Source)
	assert.Equal(t, 2.0, entries[1].Quantity)
	assert.True(t, entries[1].Approximate, "no serving size for a count")
	assert.InDelta(t, 310, *entries[1].EnergyKcal, 1e-9)
	assert.Empty(t, res.Failures())
}

func TestResolveTextEstimationFailureDegradesOnlyThatItem(t *testing.T) {
	r := newResolver(t, Deps{
		Facts: mock.NewCatalog().AddName("rice", per100(130)),
	}, Options{})

	res, err := r.ResolveText(context.Background(), "150g rice and 1 dragonfruit smoothie and 2 eggs")
	require.NoError(t, err)
	require.Len(t, res.Items, 3)

	failed := res.Items[1]
	var eerr *nutrilog.EstimationError
	require.ErrorAs(t, failed.Err, &eerr)
	assert.Equal(t, "dragonfruit smoothie", eerr.Name)
	assert.Equal(t, nutrilog.SourceEstimate, failed.Entry.Source)
	assert.Nil(t, failed.Entry.EnergyKcal)
	assert.Nil(t, failed.Entry.ProteinG)
	assert.True(t, failed.Stageable())

	assert.NoError(t, res.Items[0].Err)
	assert.NoError(t, res.Items[2].Err)
	assert.Len(t, res.Entries(), 3)
	assert.Len(t, res.Failures(), 1)
}

func TestResolveTextPlainEstimatorErrorIsWrapped(t *testing.T) {
	r := newResolver(t, Deps{Estimator: &countingEstimator{next: failingEstimator{}}}, Options{})

	res, err := r.ResolveText(context.Background(), "eggs")
	require.NoError(t, err)
	var eerr *nutrilog.EstimationError
	assert.ErrorAs(t, res.Items[0].Err, &eerr)
}

type failingEstimator struct{}

func (failingEstimator) Estimate(ctx context.Context, name string) (nutrilog.NutritionFacts, error) {
	return nutrilog.NutritionFacts{}, errors.New("connection reset")
}

func TestResolveTextRejectsInvalidCandidates(t *testing.T) {
	est := &countingEstimator{next: mock.NewEstimator(nil)}
	r := newResolver(t, Deps{
		Parser: fakeParser{candidates: []nutrilog.FoodCandidate{
			{Name: "rice", Quantity: 0, Unit: nutrilog.UnitGram},
			{Name: "soup", Quantity: 1, Unit: "cup"},
			{Name: "eggs", Quantity: 2, Unit: nutrilog.UnitCount},
		}},
		Estimator: est,
	}, Options{})

	res, err := r.ResolveText(context.Background(), "whatever")
	require.NoError(t, err)
	require.Len(t, res.Items, 3)

	var verr *nutrilog.ValidationError
	require.ErrorAs(t, res.Items[0].Err, &verr)
	assert.Equal(t, "quantity", verr.Field)
	require.ErrorAs(t, res.Items[1].Err, &verr)
	assert.Equal(t, "unit", verr.Field)
	assert.False(t, res.Items[0].Stageable())

	assert.Equal(t, []string{"eggs"}, est.calls(), "rejected candidates never reach lookup or estimation")
	entries := res.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "eggs", entries[0].Name)
}

func TestResolveTextParseFailureAbortsBatch(t *testing.T) {
	est := &countingEstimator{next: mock.NewEstimator(nil)}
	perr := &nutrilog.ParseFormatError{Raw: "oops", Err: errors.New("not a list")}
	r := newResolver(t, Deps{Parser: fakeParser{err: perr}, Estimator: est}, Options{})

	_, err := r.ResolveText(context.Background(), "rice")
	var got *nutrilog.ParseFormatError
	require.ErrorAs(t, err, &got)
	assert.Empty(t, est.calls())

	r = newResolver(t, Deps{Parser: fakeParser{err: context.DeadlineExceeded}}, Options{})
	_, err = r.ResolveText(context.Background(), "rice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolveTextNothingToResolve(t *testing.T) {
	r := newResolver(t, Deps{}, Options{})

	res, err := r.ResolveText(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Empty(t, res.Entries())
}

func TestResolveTextLookupWithoutEnergyFallsBackToEstimate(t *testing.T) {
	catalog := mock.NewCatalog().AddName("rice", nutrilog.NutritionFacts{
		Nutrients: nutrilog.Nutrients{ProteinG: nutrilog.Float(2.7)},
	})
	est := &countingEstimator{next: mock.NewEstimator(nil)}
	r := newResolver(t, Deps{Facts: catalog, Estimator: est}, Options{})

	res, err := r.ResolveText(context.Background(), "150g rice")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	entry := res.Items[0].Entry
	assert.NoError(t, res.Items[0].Err)
	assert.Equal(t, nutrilog.SourceEstimate, entry.Source)
	require.NotNil(t, entry.EnergyKcal)
	assert.InDelta(t, 195, *entry.EnergyKcal, 1e-9)
	assert.Equal(t, []string{"rice"}, est.calls())
}

func TestResolveTextPreservesOrderUnderConcurrency(t *testing.T) {
	catalog := mock.NewCatalog()
	var names []string
	delays := map[string]time.Duration{}
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("food%d", i)
		names = append(names, name)
		catalog.AddName(name, per100(float64(100+i)))
		delays[name] = time.Duration(8-i) * 5 * time.Millisecond
	}
	facts := &slowFacts{FactSource: catalog, delays: delays}

	var cands []nutrilog.FoodCandidate
	for _, n := range names {
		cands = append(cands, nutrilog.FoodCandidate{Name: n, Quantity: 100, Unit: nutrilog.UnitGram})
	}

	r := newResolver(t, Deps{Parser: fakeParser{candidates: cands}, Facts: facts}, Options{Concurrency: 3})
	res, err := r.ResolveText(context.Background(), "many foods")
	require.NoError(t, err)

	require.Len(t, res.Items, len(names))
	for i, it := range res.Items {
		assert.Equal(t, names[i], it.Entry.Name)
		assert.InDelta(t, float64(100+i), *it.Entry.EnergyKcal, 1e-9)
	}
	assert.LessOrEqual(t, facts.peak.Load(), int32(3))
	assert.Greater(t, facts.peak.Load(), int32(1))
}

func TestResolveTextLookupTimeoutFallsBackToEstimate(t *testing.T) {
	catalog := mock.NewCatalog().AddName("eggs", per100(999))
	facts := &slowFacts{FactSource: catalog, delays: map[string]time.Duration{"eggs": time.Second}}
	est := &countingEstimator{next: mock.NewEstimator(nil)}

	r := newResolver(t, Deps{Facts: facts, Estimator: est}, Options{LookupTimeout: 20 * time.Millisecond})
	res, err := r.ResolveText(context.Background(), "2 eggs")
	require.NoError(t, err)

	assert.Equal(t, []string{"eggs"}, est.calls())
	assert.Equal(t, nutrilog.SourceEstimate, res.Items[0].Entry.Source)
	assert.NoError(t, res.Items[0].Err)
}

func TestResolveTextEstimateTimeoutIsItemFailure(t *testing.T) {
	est := &countingEstimator{next: mock.NewEstimator(nil), delay: time.Second}

	r := newResolver(t, Deps{Estimator: est}, Options{EstimateTimeout: 20 * time.Millisecond})
	res, err := r.ResolveText(context.Background(), "2 eggs")
	require.NoError(t, err)

	var eerr *nutrilog.EstimationError
	require.ErrorAs(t, res.Items[0].Err, &eerr)
	assert.ErrorIs(t, res.Items[0].Err, context.DeadlineExceeded)
}

func TestResolvePhoto(t *testing.T) {
	r := newResolver(t, Deps{
		Decoder: fakeDecoder{code: "5410188032995", ok: true},
		Facts:   mock.NewCatalog().AddCode("5410188032995", per100(250)),
	}, Options{})

	res, err := r.ResolvePhoto(context.Background(), []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, KindPhoto, res.Kind)

	entries := res.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, nutrilog.SourceBarcode, e.Source)
	assert.Equal(t, "5410188032995", e.Barcode)
	assert.Equal(t, 1.0, e.Quantity)
	assert.Equal(t, nutrilog.UnitCount, e.Unit)
	assert.True(t, e.Approximate)
	assert.InDelta(t, 250, *e.EnergyKcal, 1e-9)
	assert.Equal(t, "Product 5410188032995", e.Name)
	assert.NoError(t, e.Validate())
}

func TestResolvePhotoUsesServingSize(t *testing.T) {
	facts := per100(400)
	facts.ServingSizeG = nutrilog.Float(30)
	facts.ProductName = "Granola"

	r := newResolver(t, Deps{
		Decoder: fakeDecoder{code: "4006381333931", ok: true},
		Facts:   mock.NewCatalog().AddCode("4006381333931", facts),
	}, Options{})

	res, err := r.ResolvePhoto(context.Background(), []byte("jpeg"))
	require.NoError(t, err)
	e := res.Entries()[0]
	assert.Equal(t, "Granola", e.Name)
	assert.False(t, e.Approximate)
	assert.InDelta(t, 120, *e.EnergyKcal, 1e-9)
}

func TestResolvePhotoNoResult(t *testing.T) {
	tests := []struct {
		name    string
		decoder fakeDecoder
	}{
		{"blurry photo", fakeDecoder{}},
		{"unknown product", fakeDecoder{code: "0000000000000", ok: true}},
		{"product without energy", fakeDecoder{code: "5601234567890", ok: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := &countingEstimator{next: mock.NewEstimator(nil)}
			catalog := mock.NewCatalog().AddCode("5601234567890", nutrilog.NutritionFacts{
				Nutrients:   nutrilog.Nutrients{FatG: nutrilog.Float(3)},
				ProductName: "Agua com gas",
			})
			r := newResolver(t, Deps{Decoder: tt.decoder, Facts: catalog, Estimator: est}, Options{})

			res, err := r.ResolvePhoto(context.Background(), []byte("jpeg"))
			assert.ErrorIs(t, err, nutrilog.ErrNoResult)
			assert.Empty(t, res.Entries())
			assert.Empty(t, est.calls(), "photos never fall back to estimation")
		})
	}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []nutrilog.ResolutionLog
}

func (l *recordingLogger) LogResolution(e nutrilog.ResolutionLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func TestResolutionIsLogged(t *testing.T) {
	logger := &recordingLogger{}
	r := newResolver(t, Deps{Facts: mock.NewCatalog().AddName("rice", per100(130))}, Options{Logger: logger})

	res, err := r.ResolveText(context.Background(), "150g rice and 1 dragonfruit smoothie")
	require.NoError(t, err)
	_, err = r.ResolvePhoto(context.Background(), nil)
	require.ErrorIs(t, err, nutrilog.ErrNoResult)

	require.Len(t, logger.entries, 2)
	text := logger.entries[0]
	assert.Equal(t, res.RequestID, text.RequestID)
	require.Len(t, text.Items, 2)
	assert.True(t, text.Items[0].Found)
	assert.NotEmpty(t, text.Items[1].Error)
	assert.Equal(t, nutrilog.ErrNoResult.Error(), logger.entries[1].Error)
}
