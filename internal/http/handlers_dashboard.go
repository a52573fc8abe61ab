package http

import (
	"html/template"
	"net/http"

	"finboard/internal/charts"
	"finboard/internal/core"
)

type dashboardView struct {
	Summary     core.FinancialSummary
	BudgetChart template.HTML
	IncomePie   template.HTML
	ExpensePie  template.HTML
	Headroom    template.HTML
}

// handleDashboard renders the financial summary: budget against expense per
// month, category shares and the running totals.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess *BrowserSession) {
	page := newPage(sess, "Financial Summary", dashboardPath)

	summary, err := sess.Summary.Summary(r.Context())
	if err != nil {
		if sessionGone(err) {
			s.redirect(w, r, loginPath)
			return
		}
		s.logFailure(r, err)
		page.Error = errorText(err, "Failed to fetch financial summary")
	}

	page.Content = dashboardView{
		Summary:     summary,
		BudgetChart: charts.Bar("Budget vs Expense", charts.BudgetBars(summary.BudgetStats)),
		IncomePie:   charts.Pie("Income by Category", charts.CategorySlices(summary.IncomeCategories)),
		ExpensePie:  charts.Pie("Expenses by Category", charts.CategorySlices(summary.ExpenseCategories)),
		Headroom:    charts.Line("Budget Headroom", charts.HeadroomLine(summary.BudgetStats)),
	}
	s.render(w, r, http.StatusOK, "dashboard.html", page)
}

type budgetManagementView struct {
	Usage []core.BudgetUsage
	Chart template.HTML
}

// handleBudgetManagement compares this month's budget and spending per
// expense category.
func (s *Server) handleBudgetManagement(w http.ResponseWriter, r *http.Request, sess *BrowserSession) {
	page := newPage(sess, "Budget Management", "/budget-management")

	usage, err := sess.Summary.BudgetUsage(r.Context())
	if err != nil {
		if sessionGone(err) {
			s.redirect(w, r, loginPath)
			return
		}
		s.logFailure(r, err)
		page.Error = errorText(err, "Failed to fetch budget management")
	}

	page.Content = budgetManagementView{
		Usage: usage,
		Chart: charts.Bar("Budget vs Expense", charts.UsageBars(usage)),
	}
	s.render(w, r, http.StatusOK, "budget_management.html", page)
}
