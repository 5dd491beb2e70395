package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"nutrilog"
	"nutrilog/app"
	"nutrilog/confirm"
	"nutrilog/httpapi"
	"nutrilog/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("SETUP: %s", err)
	}

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		_, _, otelShutdown, err := nutrilog.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return
		}
		defer func() {
			if err := otelShutdown(context.Background()); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()
	}

	loc, err := cfg.Confirm.Location()
	if err != nil {
		slog.Error("SETUP: Invalid timezone", "error", err)
		return
	}

	resolver, err := app.Resolver(ctx, cfg, nutrilog.NewStdoutResolutionLogger())
	if err != nil {
		slog.Error("SETUP: Failed to create resolver", "error", err)
		return
	}

	repo, err := app.Repository(ctx, cfg)
	if err != nil {
		slog.Error("SETUP: Failed to open repository", "error", err)
		return
	}
	defer repo.Close()

	sink, err := app.Sink(ctx, cfg)
	if err != nil {
		slog.Error("SETUP: Failed to create export sink", "error", err)
		return
	}

	manager := confirm.NewManager(repo, confirm.Options{TTL: cfg.Confirm.TTL, Location: loc})
	engine := report.NewEngine(repo, repo)

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewServer(resolver, manager, engine, repo, httpapi.Options{Location: loc, Exports: sink}).Router()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("SETUP: Listening", "addr", cfg.Server.Addr, "backend", cfg.Resolver.LLMBackend, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("SERVER: Listen failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("SERVER: Shutdown failed", "error", err)
	}
	slog.Info("SERVER: Stopped")
}
