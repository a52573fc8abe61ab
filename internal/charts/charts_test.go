package charts

import (
	"fmt"
	"strings"
	"testing"

	"finboard/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupSlices(t *testing.T) {
	var data []PieDatum
	for i := 1; i <= 10; i++ {
		data = append(data, PieDatum{Label: fmt.Sprintf("c%d", i), Value: float64(i)})
	}

	got := GroupSlices(data)
	require.Len(t, got, 8)
	assert.Equal(t, "c10", got[0].Label)
	assert.Equal(t, "c4", got[6].Label)
	assert.Equal(t, PieDatum{Label: OthersLabel, Value: 6}, got[7])

	short := data[:8]
	assert.Equal(t, short, GroupSlices(short))
}

func TestLineColor(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		want   string
	}{
		{"empty", nil, FlatColor},
		{"rising", []Point{{Value: 1}, {Value: 5}, {Value: 3}}, RisingColor},
		{"falling", []Point{{Value: 5}, {Value: 9}, {Value: 2}}, FallingColor},
		{"flat", []Point{{Value: 4}, {Value: 1}, {Value: 4}}, FlatColor},
		{"single", []Point{{Value: 4}}, FlatColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LineColor(tt.points))
		})
	}
}

func TestPercent(t *testing.T) {
	label, ok := Percent(25, 100)
	assert.True(t, ok)
	assert.Equal(t, "25.0%", label)

	_, ok = Percent(0.5, 100)
	assert.False(t, ok)

	_, ok = Percent(1, 0)
	assert.False(t, ok)
}

func TestNiceScale(t *testing.T) {
	tests := []struct {
		max, top, step float64
	}{
		{1234, 1400, 200},
		{100, 100, 20},
		{7, 7, 1},
		{9, 10, 2},
		{0.9, 1, 0.2},
	}
	for _, tt := range tests {
		top, step := NiceScale(tt.max, 5)
		assert.InDelta(t, tt.top, top, 1e-9, "max=%v", tt.max)
		assert.InDelta(t, tt.step, step, 1e-9, "max=%v", tt.max)
	}
	top, _ := NiceScale(0, 5)
	assert.Equal(t, 1.0, top)
}

func TestPieRendersGroupedSlices(t *testing.T) {
	var data []PieDatum
	for i := 1; i <= 9; i++ {
		data = append(data, PieDatum{Label: fmt.Sprintf("cat%d", i), Value: 10})
	}
	svg := string(Pie("Expenses", data))
	assert.Equal(t, 8, strings.Count(svg, "<path"))
	assert.Contains(t, svg, ">Others</text>")
	assert.NotContains(t, svg, ">cat9<")
}

func TestPieEmptyShowsPlaceholder(t *testing.T) {
	assert.Contains(t, string(Pie("Income", nil)), NoData)
	assert.Contains(t, string(Pie("Income", []PieDatum{{Label: "x", Value: 0}})), NoData)
}

func TestPieSingleSliceStillDraws(t *testing.T) {
	svg := string(Pie("Income", []PieDatum{{Label: "Salary", Value: 100}}))
	assert.Equal(t, 1, strings.Count(svg, "<path"))
	assert.Contains(t, svg, "100.0%")
}

func TestBarEscapesLabels(t *testing.T) {
	svg := string(Bar("Budget", []BarDatum{{Label: "<script>", Budget: 10, Expense: 5}}))
	assert.NotContains(t, svg, "<script>")
	assert.Contains(t, svg, "&lt;script&gt;")
	assert.Contains(t, svg, BudgetColor)
	assert.Contains(t, svg, ExpenseColor)
	assert.Equal(t, 2+2, strings.Count(svg, "<rect"))
}

func TestLineUsesDirectionColor(t *testing.T) {
	svg := string(Line("Headroom", []Point{{"Jan", 10}, {"Feb", -5}}))
	assert.Contains(t, svg, `stroke="`+FallingColor+`"`)
	assert.Equal(t, 2, strings.Count(svg, "<circle"))
}

func TestSummaryConversions(t *testing.T) {
	stats := []core.BudgetStat{{Date: "March 2025", TotalBudget: core.Amount{Cents: 10000}, TotalExpense: core.Amount{Cents: 12550}}}
	bars := BudgetBars(stats)
	require.Len(t, bars, 1)
	assert.Equal(t, BarDatum{Label: "March 2025", Budget: 100, Expense: 125.5}, bars[0])
	assert.Equal(t, []Point{{Label: "March 2025", Value: -25.5}}, HeadroomLine(stats))
}

func TestTermSummary(t *testing.T) {
	out := TermSummary(DefaultStyles(), core.FinancialSummary{
		TotalEarning:      core.Amount{Cents: 500000},
		TotalExpenses:     core.Amount{Cents: 120000},
		TotalSaving:       core.Amount{Cents: 380000},
		ExpenseCategories: []core.CategoryTotal{{Category: "Food", Total: core.Amount{Cents: 120000}}},
	})
	assert.Contains(t, out, "Total income")
	assert.Contains(t, out, "Food")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, NoData)
}
