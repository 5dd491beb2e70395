package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nutrilog"
	"nutrilog/app"
	"nutrilog/resolve"
)

func main() {
	photo := flag.String("photo", "", "path to a barcode photo to resolve instead of text")
	dump := flag.Bool("dump", false, "dump the full resolution to stderr")
	flag.Parse()

	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("SETUP: %s", err)
	}

	logger, cleanup, err := app.ResolutionLogger(app.ModelName(cfg))
	if err != nil {
		slog.Error("SETUP: Failed to create resolution logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("SETUP: Failed to flush resolution log", "error", err)
		}
	}()

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		tracerProvider, _, otelShutdown, err := nutrilog.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return
		}
		defer func() {
			if err := otelShutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()

		var span trace.Span
		ctx, span = tracerProvider.Tracer(nutrilog.TracerNameResolver).Start(ctx, "cmd.resolve", trace.WithAttributes(
			attribute.String("llm.backend", cfg.Resolver.LLMBackend),
			attribute.String("model.id", app.ModelName(cfg)),
		))
		defer span.End()
	}

	resolver, err := app.Resolver(ctx, cfg, logger)
	if err != nil {
		slog.Error("SETUP: Failed to create resolver", "error", err)
		return
	}

	var res resolve.Resolution
	if *photo != "" {
		var image []byte
		image, err = os.ReadFile(*photo)
		if err != nil {
			slog.Error("SETUP: Failed to read photo", "error", err)
			return
		}
		res, err = resolver.ResolvePhoto(ctx, image)
	} else {
		res, err = resolver.ResolveText(ctx, argOr(0, "150g rice and 2 eggs"))
	}
	if *dump {
		nutrilog.Dump(os.Stderr, res)
	}
	if errors.Is(err, nutrilog.ErrNoResult) || (err == nil && len(res.Items) == 0) {
		fmt.Println("No food found.")
		return
	}
	if err != nil {
		slog.Error("RESULT: Failed to resolve", "error", err)
		return
	}

	for _, f := range res.Failures() {
		fmt.Fprintf(os.Stderr, "%s: %v\n", f.Candidate.Name, f.Err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Entries()); err != nil {
		slog.Error("RESULT: Failed to encode entries", "error", err)
	}
}

func argOr(i int, def string) string {
	if flag.NArg() > i {
		return flag.Arg(i)
	}
	return def
}
