package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"nutrilog/app"
	"nutrilog/report"
)

type Params struct {
	Mode string `json:"mode"`
	Date string `json:"date"`
}

type Results struct {
	Mode   string `json:"mode"`
	Date   string `json:"date"`
	Output string `json:"output"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		cfg, err := app.LoadConfig()
		if err != nil {
			slog.Error("SETUP: Failed to load config", "error", err)
			return Results{}, err
		}

		if params.Mode == "" {
			params.Mode = "daily"
		}
		day, err := app.ReportDay(cfg, params.Date, time.Now())
		if err != nil {
			slog.Error("SETUP: Invalid report day", "error", err)
			return Results{}, err
		}

		repo, err := app.Repository(ctx, cfg)
		if err != nil {
			slog.Error("SETUP: Failed to open repository", "error", err)
			return Results{}, err
		}
		defer repo.Close()

		engine := report.NewEngine(repo, repo)
		output, err := app.RunReport(ctx, params.Mode, day, cfg, engine, app.Notifier(cfg))
		if err != nil {
			slog.Error("REPORT: Failed", "mode", params.Mode, "error", err)
			return Results{}, err
		}

		return Results{Mode: params.Mode, Date: day.Format(time.DateOnly), Output: output}, nil
	}

	lambda.Start(fn)
}
