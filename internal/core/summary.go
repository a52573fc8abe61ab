package core

// BudgetStat is one month of the dashboard bar chart; Date reads like "November 2025".
type BudgetStat struct {
	Date         string `json:"date"`
	TotalBudget  Amount `json:"totalBudget"`
	TotalExpense Amount `json:"totalExpense"`
}

// Headroom is what is left of the month's budget (negative when overspent).
func (s BudgetStat) Headroom() Amount {
	return Amount{Cents: s.TotalBudget.Cents - s.TotalExpense.Cents}
}

// CategoryTotal aggregates incomes or expenses by category name. The backend
// names the total "totalincome" for both kinds.
type CategoryTotal struct {
	Category string `json:"category"`
	Total    Amount `json:"totalincome"`
}

type FinancialSummary struct {
	BudgetStats       []BudgetStat    `json:"budgetStats"`
	IncomeCategories  []CategoryTotal `json:"incomeCategories"`
	ExpenseCategories []CategoryTotal `json:"expenseCategories"`
	TotalSaving       Amount          `json:"totalSaving"`
	TotalEarning      Amount          `json:"totalEarning"`
	TotalExpenses     Amount          `json:"totalExpenses"`
}

// BudgetUsage is one row of the budget-management view for the current month.
type BudgetUsage struct {
	Category      string `json:"category"`
	BudgetAmount  Amount `json:"budgetAmt"`
	ExpenseAmount Amount `json:"expenseAmt"`
}

// Dashboard bundles the data the dashboard page renders.
type Dashboard struct {
	Summary FinancialSummary
	Usage   []BudgetUsage
}
