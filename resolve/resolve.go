// Package resolve turns a meal description or a barcode photo into resolved
// entries ready for confirmation.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nutrilog"
	"nutrilog/nutrient"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	KindText  = "text"
	KindPhoto = "photo"
)

// Deps are the collaborators the resolver composes.
type Deps struct {
	Parser    nutrilog.DescriptionParser
	Decoder   nutrilog.BarcodeDecoder
	Facts     nutrilog.FactSource
	Estimator nutrilog.Estimator
}

type Options struct {
	ParseTimeout    time.Duration
	LookupTimeout   time.Duration
	EstimateTimeout time.Duration
	DecodeTimeout   time.Duration
	// Concurrency bounds how many candidates of one request resolve at once.
	Concurrency int
	Assumptions nutrient.Assumptions
	Logger      nutrilog.ResolutionLogger
	Tracer      trace.Tracer
	Meter       metric.Meter
}

func OptionsFromConfig(rc nutrilog.ResolverConfig, cc nutrilog.CalculatorConfig) Options {
	return Options{
		ParseTimeout:    rc.ParseTimeout,
		LookupTimeout:   rc.LookupTimeout,
		EstimateTimeout: rc.EstimateTimeout,
		DecodeTimeout:   rc.DecodeTimeout,
		Concurrency:     rc.Concurrency,
		Assumptions:     nutrient.AssumptionsFromConfig(cc),
	}
}

func (o *Options) setDefaults() {
	if o.ParseTimeout <= 0 {
		o.ParseTimeout = 30 * time.Second
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 10 * time.Second
	}
	if o.EstimateTimeout <= 0 {
		o.EstimateTimeout = 30 * time.Second
	}
	if o.DecodeTimeout <= 0 {
		o.DecodeTimeout = 5 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Assumptions == (nutrient.Assumptions{}) {
		o.Assumptions = nutrient.DefaultAssumptions()
	}
	if o.Logger == nil {
		o.Logger = nutrilog.NewNoOpResolutionLogger()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(nutrilog.TracerNameResolver)
	}
	if o.Meter == nil {
		o.Meter = otel.Meter(nutrilog.MeterName)
	}
}

type Resolver struct {
	deps    Deps
	opts    Options
	calc    *nutrient.Calculator
	metrics *metrics
}

func New(deps Deps, opts Options) (*Resolver, error) {
	if deps.Parser == nil || deps.Decoder == nil || deps.Facts == nil || deps.Estimator == nil {
		return nil, errors.New("resolver needs a parser, decoder, fact source and estimator")
	}
	opts.setDefaults()
	return &Resolver{
		deps:    deps,
		opts:    opts,
		calc:    nutrient.NewCalculator(opts.Assumptions),
		metrics: newMetrics(opts.Meter),
	}, nil
}

// ItemResult is the outcome for one candidate. Err is nil on success, an
// *nutrilog.EstimationError when nutrition could not be determined (Entry is
// then kept with unknown nutrients), or a *nutrilog.ValidationError when the
// candidate was rejected before lookup.
type ItemResult struct {
	Candidate nutrilog.FoodCandidate
	Entry     nutrilog.ResolvedEntry
	Err       error
}

// Stageable reports whether Entry may be staged for confirmation.
func (r ItemResult) Stageable() bool {
	var verr *nutrilog.ValidationError
	return !errors.As(r.Err, &verr)
}

type Resolution struct {
	RequestID string
	Kind      string
	Items     []ItemResult
}

// Entries returns the stageable entries in candidate order.
func (r Resolution) Entries() []nutrilog.ResolvedEntry {
	out := make([]nutrilog.ResolvedEntry, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Stageable() {
			out = append(out, it.Entry)
		}
	}
	return out
}

// Failures returns the items that need manual follow-up.
func (r Resolution) Failures() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// ResolveText parses text and resolves every candidate. A parser failure
// aborts the request; per-item failures are reported in the items. A
// description with no recognizable food resolves to an empty resolution.
func (r *Resolver) ResolveText(ctx context.Context, text string) (Resolution, error) {
	ctx, span := r.opts.Tracer.Start(ctx, "Resolver.ResolveText")
	defer span.End()

	start := time.Now()
	res := Resolution{RequestID: uuid.NewString(), Kind: KindText}
	span.SetAttributes(attribute.String("request_id", res.RequestID))
	r.metrics.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", KindText)))

	slog.Info("RESOLVER: Resolving text", "request_id", res.RequestID, "text_len", len(text))

	parseCtx, cancel := context.WithTimeout(ctx, r.opts.ParseTimeout)
	candidates, err := r.deps.Parser.ParseDescription(parseCtx, text)
	cancel()
	if err != nil {
		span.SetStatus(codes.Error, "parse failed")
		span.RecordError(err)
		r.finish(ctx, res, text, start, err)
		var perr *nutrilog.ParseFormatError
		if errors.As(err, &perr) {
			return res, err
		}
		return res, fmt.Errorf("parse description: %w", err)
	}
	if len(candidates) == 0 {
		res.Items = []ItemResult{}
		r.finish(ctx, res, text, start, nil)
		return res, nil
	}

	res.Items = make([]ItemResult, len(candidates))
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			res.Items[i] = r.resolveCandidate(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(attribute.Int("items", len(res.Items)), attribute.Int("failures", len(res.Failures())))
	r.finish(ctx, res, text, start, nil)
	return res, nil
}

func (r *Resolver) resolveCandidate(ctx context.Context, c nutrilog.FoodCandidate) ItemResult {
	ctx, span := r.opts.Tracer.Start(ctx, "Resolver.resolveCandidate", trace.WithAttributes(attribute.String("food", c.Name)))
	defer span.End()

	out := ItemResult{
		Candidate: c,
		Entry:     nutrilog.ResolvedEntry{Name: c.Name, Quantity: c.Quantity, Unit: c.Unit},
	}
	if err := c.Validate(); err != nil {
		slog.Warn("RESOLVER: Rejecting candidate", "food", c.Name, "error", err)
		span.SetStatus(codes.Error, "invalid candidate")
		out.Err = err
		return out
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.opts.LookupTimeout)
	facts, found := r.deps.Facts.LookupByName(lookupCtx, c.Name)
	cancel()
	if found && !facts.HasEnergy() {
		slog.Info("RESOLVER: Lookup hit without energy, estimating", "food", c.Name)
		found = false
	}
	r.metrics.lookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("found", found), attribute.String("by", "name")))

	source := nutrilog.SourceLookup
	if !found {
		source = nutrilog.SourceEstimate
		estCtx, cancel := context.WithTimeout(ctx, r.opts.EstimateTimeout)
		facts, err := r.deps.Estimator.Estimate(estCtx, c.Name)
		cancel()
		if err != nil {
			var eerr *nutrilog.EstimationError
			if !errors.As(err, &eerr) {
				err = &nutrilog.EstimationError{Name: c.Name, Err: err}
			}
			slog.Warn("RESOLVER: Estimation failed", "food", c.Name, "error", err)
			r.metrics.estimateFailures.Add(ctx, 1)
			span.RecordError(err)
			out.Entry.Source = nutrilog.SourceEstimate
			out.Err = err
			return out
		}
		return r.applyFacts(out, facts, source)
	}

	return r.applyFacts(out, facts, source)
}

func (r *Resolver) applyFacts(out ItemResult, facts nutrilog.NutritionFacts, source nutrilog.Source) ItemResult {
	calc, err := r.calc.Calculate(facts, out.Candidate.Quantity, out.Candidate.Unit)
	if err != nil {
		out.Err = err
		return out
	}
	out.Entry.Nutrients = calc.Nutrients
	out.Entry.Source = source
	out.Entry.Approximate = calc.Approximate
	return out
}

// ResolvePhoto decodes a barcode and looks the product up. An unreadable
// photo or an unknown product resolves to nutrilog.ErrNoResult; there is no
// estimation fallback because there is no name to estimate from.
func (r *Resolver) ResolvePhoto(ctx context.Context, image []byte) (Resolution, error) {
	ctx, span := r.opts.Tracer.Start(ctx, "Resolver.ResolvePhoto")
	defer span.End()

	start := time.Now()
	res := Resolution{RequestID: uuid.NewString(), Kind: KindPhoto}
	span.SetAttributes(attribute.String("request_id", res.RequestID), attribute.Int("image_bytes", len(image)))
	r.metrics.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", KindPhoto)))

	decodeCtx, cancel := context.WithTimeout(ctx, r.opts.DecodeTimeout)
	code, ok := r.deps.Decoder.DecodeBarcode(decodeCtx, image)
	cancel()
	if !ok {
		slog.Info("RESOLVER: No barcode in photo", "request_id", res.RequestID)
		r.finish(ctx, res, "", start, nutrilog.ErrNoResult)
		return res, nutrilog.ErrNoResult
	}
	span.SetAttributes(attribute.String("barcode", code))

	lookupCtx, cancel := context.WithTimeout(ctx, r.opts.LookupTimeout)
	facts, found := r.deps.Facts.LookupByCode(lookupCtx, code)
	cancel()
	if found && !facts.HasEnergy() {
		slog.Info("RESOLVER: Product has no energy value", "request_id", res.RequestID, "barcode", code)
		found = false
	}
	r.metrics.lookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("found", found), attribute.String("by", "code")))
	if !found {
		slog.Info("RESOLVER: Unknown product", "request_id", res.RequestID, "barcode", code)
		r.finish(ctx, res, code, start, nutrilog.ErrNoResult)
		return res, nutrilog.ErrNoResult
	}

	name := strings.TrimSpace(facts.ProductName)
	if name == "" {
		name = "Product " + code
	}
	c := nutrilog.FoodCandidate{Name: name, Quantity: 1, Unit: nutrilog.UnitCount}
	item := r.applyFacts(ItemResult{
		Candidate: c,
		Entry:     nutrilog.ResolvedEntry{Name: c.Name, Quantity: c.Quantity, Unit: c.Unit},
	}, facts, nutrilog.SourceBarcode)
	item.Entry.Barcode = code

	res.Items = []ItemResult{item}
	r.finish(ctx, res, code, start, item.Err)
	return res, item.Err
}

func (r *Resolver) finish(ctx context.Context, res Resolution, input string, start time.Time, err error) {
	elapsed := time.Since(start)
	r.metrics.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("kind", res.Kind)))

	entry := nutrilog.ResolutionLog{
		RequestID: res.RequestID,
		Timestamp: start,
		Kind:      res.Kind,
		Input:     input,
		Duration:  elapsed,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	for _, it := range res.Items {
		il := nutrilog.ItemLog{Name: it.Entry.Name, Source: it.Entry.Source, Found: it.Entry.Source != nutrilog.SourceEstimate && it.Err == nil}
		if it.Err != nil {
			il.Error = it.Err.Error()
		}
		entry.Items = append(entry.Items, il)
	}
	if lerr := r.opts.Logger.LogResolution(entry); lerr != nil {
		slog.Error("RESOLVER: Failed to log resolution", "error", lerr)
	}

	slog.Info("RESOLVER: Resolution finished",
		"request_id", res.RequestID,
		"kind", res.Kind,
		"items", len(res.Items),
		"duration_ms", elapsed.Milliseconds(),
		"error", err,
	)
}
