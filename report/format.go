package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"nutrilog"
)

// Text renders the day report for chat delivery.
func (r DayReport) Text() string {
	s := r.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "*Nutrition %s*\n", s.Date.Format(time.DateOnly))
	if s.EntryCount == 0 {
		b.WriteString("• Nothing logged\n")
	} else {
		fmt.Fprintf(&b, "• Ingested: %d kcal (%d entries)\n", round(s.TotalEnergyKcal), s.EntryCount)
		fmt.Fprintf(&b, "• %s\n", macros(s.TotalProteinG, s.TotalFatG, s.TotalCarbsG, s.TotalFiberG))
		if s.Incomplete() {
			fmt.Fprintf(&b, "• %d without energy, total is a lower bound\n", s.MissingEnergyCount)
		}
	}

	if r.Expenditure != nil {
		fmt.Fprintf(&b, "• Expended: %d kcal (active %d, resting %d)\n",
			round(r.Expenditure.Total()), round(r.Expenditure.ActiveKcal), round(r.Expenditure.RestingKcal))
	}
	if line := BalanceText(r.Balance); line != "" {
		fmt.Fprintf(&b, "• %s\n", line)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BalanceText shows a deficit as "-N kcal (P%)" and a surplus as "+N kcal (P%)".
// It is empty when the balance is unknown.
func BalanceText(b nutrilog.CalorieBalance) string {
	if b.BalanceKcal == nil {
		return ""
	}
	kcal := round(math.Abs(*b.BalanceKcal))
	label, sign := "Deficit", "-"
	if *b.BalanceKcal < 0 {
		label, sign = "Surplus", "+"
	}
	if b.BalancePct == nil {
		return fmt.Sprintf("%s: %s%d kcal", label, sign, kcal)
	}
	return fmt.Sprintf("%s: %s%d kcal (%.1f%%)", label, sign, kcal, math.Abs(*b.BalancePct))
}

// WeekText renders a weekly average.
func WeekText(w nutrilog.WeeklyAverage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Nutrition %s to %s (daily average)*\n",
		w.StartDate.Format(time.DateOnly), w.EndDate.Format(time.DateOnly))
	if w.DaysWithData == 0 {
		b.WriteString("• Nothing logged this week")
		return b.String()
	}
	fmt.Fprintf(&b, "• Energy: %d kcal/day\n", round(w.AvgEnergyKcal))
	fmt.Fprintf(&b, "• %s\n", macros(w.AvgProteinG, w.AvgFatG, w.AvgCarbsG, w.AvgFiberG))
	fmt.Fprintf(&b, "• Days logged: %d", w.DaysWithData)
	return b.String()
}

func macros(protein, fat, carbs, fiber float64) string {
	return fmt.Sprintf("P: %dg | F: %dg | C: %dg | Fiber: %dg", round(protein), round(fat), round(carbs), round(fiber))
}

func round(v float64) int { return int(math.Round(v)) }
