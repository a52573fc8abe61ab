package services

import (
	"context"
	"net/url"
	"strconv"

	"finboard/internal/core"
	"finboard/internal/log"
)

const (
	CategoriesPath = "/categories"
	IncomesPath    = "/incomes"
	ExpensesPath   = "/expenses"
	BudgetsPath    = "/budgets"
)

type CategoryService struct {
	*Resource[core.Category, core.CategoryInput]
}

func NewCategoryService(client Doer, logger *log.Logger) *CategoryService {
	return &CategoryService{NewResource[core.Category, core.CategoryInput](client, Names{
		Path:     CategoriesPath,
		Singular: "category",
		Plural:   "categories",
		KeyField: "name",
	}, logger)}
}

// ListByType lists categories, only incomes or only expenses when isIncome is set.
func (s *CategoryService) ListByType(ctx context.Context, isIncome *bool) ([]core.Category, error) {
	var query url.Values
	if isIncome != nil {
		query = url.Values{"is_income": {strconv.FormatBool(*isIncome)}}
	}
	return s.List(ctx, query)
}

type IncomeService struct {
	*Resource[core.Income, core.EntryInput]
}

func NewIncomeService(client Doer, logger *log.Logger) *IncomeService {
	return &IncomeService{NewResource[core.Income, core.EntryInput](client, Names{
		Path:     IncomesPath,
		Singular: "income",
		Plural:   "incomes",
		KeyField: "amount",
	}, logger)}
}

type ExpenseService struct {
	*Resource[core.Expense, core.EntryInput]
}

func NewExpenseService(client Doer, logger *log.Logger) *ExpenseService {
	return &ExpenseService{NewResource[core.Expense, core.EntryInput](client, Names{
		Path:     ExpensesPath,
		Singular: "expense",
		Plural:   "expenses",
		KeyField: "amount",
	}, logger)}
}

// BudgetService omits category_id on create when no category is chosen; the
// backend treats such a budget as a general one.
type BudgetService struct {
	*Resource[core.Budget, core.BudgetInput]
}

func NewBudgetService(client Doer, logger *log.Logger) *BudgetService {
	return &BudgetService{NewResource[core.Budget, core.BudgetInput](client, Names{
		Path:     BudgetsPath,
		Singular: "budget",
		Plural:   "budgets",
		KeyField: "amount",
	}, logger)}
}
