// Package charts renders the dashboard's aggregated figures as inline SVG for
// the web pages and as styled text for the terminal client. It never fetches
// data.
package charts

import (
	"math"
	"sort"

	"finboard/internal/core"
)

const (
	BudgetColor  = "#f97316"
	ExpenseColor = "#6366f1"
	RisingColor  = "#10b981"
	FallingColor = "#ef4444"
	FlatColor    = "#6b7280"
	GridColor    = "#e5e7eb"

	// MaxSlices is the most slices a pie shows before grouping the tail.
	MaxSlices   = 8
	OthersLabel = "Others"
	NoData      = "No data available"
)

// Palette colours pie slices in order.
var Palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

type (
	BarDatum struct {
		Label   string
		Budget  float64
		Expense float64
	}

	PieDatum struct {
		Label string
		Value float64
	}

	Point struct {
		Label string
		Value float64
	}
)

// GroupSlices keeps data as is up to MaxSlices entries. Longer inputs become the
// seven largest values, descending, plus an "Others" slice with the rest.
func GroupSlices(data []PieDatum) []PieDatum {
	if len(data) <= MaxSlices {
		return data
	}
	sorted := append([]PieDatum(nil), data...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })

	out := append([]PieDatum(nil), sorted[:MaxSlices-1]...)
	var rest float64
	for _, d := range sorted[MaxSlices-1:] {
		rest += d.Value
	}
	return append(out, PieDatum{Label: OthersLabel, Value: rest})
}

// LineColor is green when the series ends above where it started, red when
// below and gray otherwise.
func LineColor(points []Point) string {
	if len(points) == 0 {
		return FlatColor
	}
	first, last := points[0].Value, points[len(points)-1].Value
	switch {
	case last > first:
		return RisingColor
	case last < first:
		return FallingColor
	default:
		return FlatColor
	}
}

// Percent labels a slice; slices of 0.5% or less get no label.
func Percent(value, total float64) (string, bool) {
	if total == 0 {
		return "", false
	}
	p := value / total * 100
	if p <= 0.5 {
		return "", false
	}
	return formatFloat(p, 1) + "%", true
}

// NiceScale rounds max up to a round axis top for the given number of ticks
// and returns the top and the tick step.
func NiceScale(max float64, ticks int) (top, step float64) {
	if ticks <= 0 {
		ticks = 5
	}
	if max <= 0 || math.IsNaN(max) || math.IsInf(max, 0) {
		return 1, 1 / float64(ticks)
	}
	raw := max / float64(ticks)
	power := math.Pow(10, math.Floor(math.Log10(raw)))
	switch ratio := raw / power; {
	case ratio >= math.Sqrt(50):
		step = 10 * power
	case ratio >= math.Sqrt(10):
		step = 5 * power
	case ratio >= math.Sqrt(2):
		step = 2 * power
	default:
		step = power
	}
	return math.Ceil(max/step) * step, step
}

// BudgetBars turns the summary's monthly stats into bar data.
func BudgetBars(stats []core.BudgetStat) []BarDatum {
	out := make([]BarDatum, 0, len(stats))
	for _, s := range stats {
		out = append(out, BarDatum{Label: s.Date, Budget: s.TotalBudget.Float(), Expense: s.TotalExpense.Float()})
	}
	return out
}

// UsageBars turns budget-management rows into bar data.
func UsageBars(rows []core.BudgetUsage) []BarDatum {
	out := make([]BarDatum, 0, len(rows))
	for _, r := range rows {
		out = append(out, BarDatum{Label: r.Category, Budget: r.BudgetAmount.Float(), Expense: r.ExpenseAmount.Float()})
	}
	return out
}

// CategorySlices turns category totals into pie data.
func CategorySlices(totals []core.CategoryTotal) []PieDatum {
	out := make([]PieDatum, 0, len(totals))
	for _, t := range totals {
		out = append(out, PieDatum{Label: t.Category, Value: t.Total.Float()})
	}
	return out
}

// HeadroomLine plots budget left over per month.
func HeadroomLine(stats []core.BudgetStat) []Point {
	out := make([]Point, 0, len(stats))
	for _, s := range stats {
		out = append(out, Point{Label: s.Date, Value: s.Headroom().Float()})
	}
	return out
}
