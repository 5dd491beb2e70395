package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"nutrilog/app"
	"nutrilog/report"
)

func main() {
	mode := flag.String("mode", "daily", "daily, weekly or export")
	date := flag.String("date", "", "day to report as YYYY-MM-DD, default today")
	flag.Parse()

	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("SETUP: %s", err)
	}

	day, err := app.ReportDay(cfg, *date, time.Now())
	if err != nil {
		slog.Error("SETUP: Invalid report day", "error", err)
		os.Exit(2)
	}

	repo, err := app.Repository(ctx, cfg)
	if err != nil {
		slog.Error("SETUP: Failed to open repository", "error", err)
		os.Exit(1)
	}

	engine := report.NewEngine(repo, repo)
	notifier := app.Notifier(cfg)

	_, err = app.RunReport(ctx, *mode, day, cfg, engine, notifier)
	repo.Close()
	if err != nil {
		slog.Error("REPORT: Failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
}
