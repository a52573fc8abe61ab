package charts

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"finboard/internal/core"
)

// Styles used by the terminal renderings.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Budget  lipgloss.Style
	Expense lipgloss.Style
	Income  lipgloss.Style
	Spent   lipgloss.Style
	Muted   lipgloss.Style
	Box     lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true),
		Label:   lipgloss.NewStyle().Width(16),
		Budget:  lipgloss.NewStyle().Foreground(lipgloss.Color(BudgetColor)),
		Expense: lipgloss.NewStyle().Foreground(lipgloss.Color(ExpenseColor)),
		Income:  lipgloss.NewStyle().Foreground(lipgloss.Color(RisingColor)),
		Spent:   lipgloss.NewStyle().Foreground(lipgloss.Color(FallingColor)),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color(FlatColor)),
		Box:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// TermBars draws budget and expense as paired horizontal bars, width cells at most.
func TermBars(st Styles, title string, data []BarDatum, width int) string {
	lines := []string{st.Title.Render(title)}
	if len(data) == 0 {
		return strings.Join(append(lines, st.Muted.Render(NoData)), "\n")
	}
	var max float64
	for _, d := range data {
		max = math.Max(max, math.Max(d.Budget, d.Expense))
	}
	top, _ := NiceScale(max, yTicks)
	cells := func(v float64) int {
		if v <= 0 {
			return 0
		}
		return int(math.Round(v / top * float64(width)))
	}
	for _, d := range data {
		lines = append(lines,
			st.Label.Render(d.Label)+st.Budget.Render(strings.Repeat("█", cells(d.Budget)))+" "+st.Muted.Render(formatFloat(d.Budget, 2)),
			st.Label.Render("")+st.Expense.Render(strings.Repeat("█", cells(d.Expense)))+" "+st.Muted.Render(formatFloat(d.Expense, 2)),
		)
	}
	lines = append(lines, st.Budget.Render("█ Budget")+"  "+st.Expense.Render("█ Expense"))
	return strings.Join(lines, "\n")
}

// TermShares lists pie slices with their share of the total.
func TermShares(st Styles, title string, data []PieDatum) string {
	slices := GroupSlices(data)
	lines := []string{st.Title.Render(title)}
	var total float64
	for _, d := range slices {
		total += d.Value
	}
	if len(slices) == 0 || total <= 0 {
		return strings.Join(append(lines, st.Muted.Render(NoData)), "\n")
	}
	for i, d := range slices {
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(Palette[i%len(Palette)])).Render("●")
		pct, ok := Percent(d.Value, total)
		if !ok {
			pct = "-"
		}
		lines = append(lines, fmt.Sprintf("%s %s %s %s", swatch, st.Label.Render(d.Label), core.NewAmount(d.Value).Display(), st.Muted.Render(pct)))
	}
	return strings.Join(lines, "\n")
}

// TermSummary renders the dashboard as the terminal client prints it.
func TermSummary(st Styles, s core.FinancialSummary) string {
	totals := lipgloss.JoinVertical(lipgloss.Left,
		"Total income:   "+st.Income.Render(s.TotalEarning.Display()),
		"Total expenses: "+st.Spent.Render(s.TotalExpenses.Display()),
		"Savings:        "+savingsStyle(st, s.TotalSaving).Render(s.TotalSaving.Display()),
	)
	return lipgloss.JoinVertical(lipgloss.Left,
		st.Box.Render(totals),
		"",
		TermBars(st, "Budget vs expense", BudgetBars(s.BudgetStats), 40),
		"",
		TermShares(st, "Income by category", CategorySlices(s.IncomeCategories)),
		"",
		TermShares(st, "Expenses by category", CategorySlices(s.ExpenseCategories)),
	)
}

func savingsStyle(st Styles, a core.Amount) lipgloss.Style {
	if a.Cents < 0 {
		return st.Spent
	}
	return st.Income
}
