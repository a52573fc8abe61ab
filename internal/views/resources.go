package views

import (
	"context"
	"strconv"
	"time"

	"finboard/internal/core"
	"finboard/internal/services"
)

type (
	Categories = Controller[core.Category, core.CategoryForm, core.CategoryInput]
	Incomes    = Controller[core.Income, core.EntryForm, core.EntryInput]
	Expenses   = Controller[core.Expense, core.EntryForm, core.EntryInput]
	Budgets    = Controller[core.Budget, core.BudgetForm, core.BudgetInput]
)

func NewCategories(svc *services.CategoryService, deps Deps) *Categories {
	return NewController[core.Category, core.CategoryForm, core.CategoryInput](svc, Binding[core.Category, core.CategoryForm, core.CategoryInput]{
		Resource: "category",
		ID:       func(c core.Category) int64 { return c.ID },
		ToForm: func(c core.Category) core.CategoryForm {
			return core.CategoryForm{Name: c.Name, IsIncome: strconv.FormatBool(c.IsIncome)}
		},
		Defaults: func() core.CategoryForm { return core.CategoryForm{IsIncome: "false"} },
		ToInput: func(f core.CategoryForm) (core.CategoryInput, error) {
			return f.Input(), nil
		},
		ErrorField:   "name",
		SaveFallback: "Failed to save category",
		ListFallback: "Failed to fetch categories",
	}, deps)
}

func NewIncomes(svc *services.IncomeService, deps Deps) *Incomes {
	return NewController[core.Entry, core.EntryForm, core.EntryInput](svc, entryBinding("income"), deps)
}

func NewExpenses(svc *services.ExpenseService, deps Deps) *Expenses {
	return NewController[core.Entry, core.EntryForm, core.EntryInput](svc, entryBinding("expense"), deps)
}

func entryBinding(resource string) Binding[core.Entry, core.EntryForm, core.EntryInput] {
	return Binding[core.Entry, core.EntryForm, core.EntryInput]{
		Resource: resource,
		ID:       func(e core.Entry) int64 { return e.ID },
		ToForm: func(e core.Entry) core.EntryForm {
			return core.EntryForm{
				CategoryID: strconv.FormatInt(e.CategoryIDValue(), 10),
				Amount:     e.Amount.String(),
				Date:       e.Date.String(),
				Note:       e.Note,
			}
		},
		Defaults:     func() core.EntryForm { return core.EntryForm{} },
		ToInput:      core.EntryForm.Input,
		SaveFallback: "Failed to save " + resource,
		ListFallback: "Failed to fetch " + resource + "s",
	}
}

// NewBudgets creates the budget controller; new forms default to the year and
// month of now().
func NewBudgets(svc *services.BudgetService, deps Deps, now func() time.Time) *Budgets {
	if now == nil {
		now = time.Now
	}
	return NewController[core.Budget, core.BudgetForm, core.BudgetInput](svc, Binding[core.Budget, core.BudgetForm, core.BudgetInput]{
		Resource: "budget",
		ID:       func(b core.Budget) int64 { return b.ID },
		ToForm: func(b core.Budget) core.BudgetForm {
			f := core.BudgetForm{
				Year:   strconv.Itoa(b.Year),
				Month:  strconv.Itoa(b.Month),
				Amount: b.Amount.String(),
			}
			if id := b.CategoryIDValue(); id != 0 {
				f.CategoryID = strconv.FormatInt(id, 10)
			}
			return f
		},
		Defaults: func() core.BudgetForm {
			t := now()
			return core.BudgetForm{Year: strconv.Itoa(t.Year()), Month: strconv.Itoa(int(t.Month()))}
		},
		ToInput:      core.BudgetForm.Input,
		SaveFallback: "Failed to save budget",
		ListFallback: "Failed to fetch budgets",
	}, deps)
}

// Option is one entry of a form selector.
type Option struct {
	ID   int64
	Name string
}

// CategoryOptions lists the categories a form may pick from: income categories
// for incomes, expense categories for expenses and budgets.
func CategoryOptions(ctx context.Context, svc *services.CategoryService, income bool) ([]Option, error) {
	cats, err := svc.ListByType(ctx, &income)
	if err != nil {
		return nil, err
	}
	out := make([]Option, 0, len(cats))
	for _, c := range cats {
		// The backend filter is trusted but not relied on.
		if c.IsIncome != income {
			continue
		}
		out = append(out, Option{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

// MonthOptions are the month choices of the budget form.
func MonthOptions() []Option {
	out := make([]Option, 0, 12)
	for m := 1; m <= 12; m++ {
		out = append(out, Option{ID: int64(m), Name: core.MonthName(m)})
	}
	return out
}
