package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"nutrilog"
	"nutrilog/report"
)

// RunReport runs one scheduled report job for day. Daily and weekly reports
// are posted to the configured channel and their text returned; an export
// is saved to the configured sink and its location returned.
func RunReport(ctx context.Context, mode string, day time.Time, cfg Config, engine *report.Engine, notifier nutrilog.Notifier) (string, error) {
	switch mode {
	case "daily":
		rep, err := engine.Reconcile(ctx, day)
		if err != nil {
			return "", err
		}
		text := rep.Text()
		return text, notifier.PostMessage(ctx, cfg.Report.SlackChannel, text)
	case "weekly":
		avg, err := engine.WeeklyAverage(ctx, day)
		if err != nil {
			return "", err
		}
		text := report.WeekText(avg)
		return text, notifier.PostMessage(ctx, cfg.Report.SlackChannel, text)
	case "export":
		sink, err := Sink(ctx, cfg)
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		name, rows, err := engine.Export(ctx, &buf, day, cfg.Report.ExportDays)
		if err != nil {
			return "", err
		}
		location, err := sink.Save(ctx, name, buf.Bytes())
		if err != nil {
			return "", err
		}
		slog.Info("REPORT: Export written", "location", location, "rows", rows)
		return location, nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ReportDay resolves the day a report job covers: date as YYYY-MM-DD, or
// the current local day when date is empty.
func ReportDay(cfg Config, date string, now time.Time) (time.Time, error) {
	loc, err := cfg.Confirm.Location()
	if err != nil {
		return time.Time{}, err
	}
	if date == "" {
		return nutrilog.Day(now, loc), nil
	}
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return day, nil
}
