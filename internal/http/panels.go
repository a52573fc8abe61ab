package http

import (
	"context"
	"net/url"

	"finboard/internal/core"
	"finboard/internal/views"
)

// panel is the page-facing side of one CRUD controller. It hides the
// controller's type parameters so handlers can route by path.
type panel interface {
	Path() string
	Refresh(ctx context.Context) error
	OpenNew()
	OpenEdit(id int64) bool
	Close()
	Submit(ctx context.Context, form url.Values) (bool, error)
	Delete(ctx context.Context, id int64) error
	View(ctx context.Context) (PanelView, error)
}

// PanelView is what the panel templates render.
type PanelView struct {
	Path     string
	Resource string
	Title    string
	// State is the controller snapshot (views.State[T, F]).
	State        any
	Options      []views.Option
	OptionsError string
	Months       []views.Option
}

// Template is the partial that renders this panel.
func (v PanelView) Template() string { return "panel_" + v.Path }

type resourcePanel[T, F, In any] struct {
	path    string
	title   string
	ctrl    *views.Controller[T, F, In]
	decode  func(url.Values) F
	options func(ctx context.Context) ([]views.Option, error)
	months  bool
}

func (p *resourcePanel[T, F, In]) Path() string                      { return p.path }
func (p *resourcePanel[T, F, In]) Refresh(ctx context.Context) error { return p.ctrl.Refresh(ctx) }
func (p *resourcePanel[T, F, In]) OpenNew()                          { p.ctrl.OpenNew() }
func (p *resourcePanel[T, F, In]) OpenEdit(id int64) bool            { return p.ctrl.OpenEdit(id) }
func (p *resourcePanel[T, F, In]) Close()                            { p.ctrl.Close() }

func (p *resourcePanel[T, F, In]) Submit(ctx context.Context, form url.Values) (bool, error) {
	return p.ctrl.Submit(ctx, p.decode(form))
}

func (p *resourcePanel[T, F, In]) Delete(ctx context.Context, id int64) error {
	return p.ctrl.Delete(ctx, id)
}

// View snapshots the controller. Category choices are fetched only while
// the dialog is open; failing to fetch them leaves the selector empty.
func (p *resourcePanel[T, F, In]) View(ctx context.Context) (PanelView, error) {
	st := p.ctrl.Snapshot()
	v := PanelView{
		Path:     p.path,
		Resource: p.ctrl.Resource(),
		Title:    p.title,
		State:    st,
	}
	if p.months {
		v.Months = views.MonthOptions()
	}
	if st.Open && p.options != nil {
		opts, err := p.options(ctx)
		if err != nil {
			if sessionGone(err) {
				return v, err
			}
			v.OptionsError = errorText(err, "Failed to load categories")
		}
		v.Options = opts
	}
	return v, nil
}

// panelOrder is the order panels appear on the management page.
var panelOrder = []string{"categories", "incomes", "expenses", "budgets"}

func newPanels(s *BrowserSession) map[string]panel {
	incomeCats := func(ctx context.Context) ([]views.Option, error) {
		return views.CategoryOptions(ctx, s.Categories, true)
	}
	expenseCats := func(ctx context.Context) ([]views.Option, error) {
		return views.CategoryOptions(ctx, s.Categories, false)
	}
	return map[string]panel{
		"categories": &resourcePanel[core.Category, core.CategoryForm, core.CategoryInput]{
			path: "categories", title: "Categories", ctrl: s.CategoryView, decode: ParseCategoryForm,
		},
		"incomes": &resourcePanel[core.Entry, core.EntryForm, core.EntryInput]{
			path: "incomes", title: "Incomes", ctrl: s.IncomeView, decode: ParseEntryForm, options: incomeCats,
		},
		"expenses": &resourcePanel[core.Entry, core.EntryForm, core.EntryInput]{
			path: "expenses", title: "Expenses", ctrl: s.ExpenseView, decode: ParseEntryForm, options: expenseCats,
		},
		"budgets": &resourcePanel[core.Budget, core.BudgetForm, core.BudgetInput]{
			path: "budgets", title: "Budgets", ctrl: s.BudgetView, decode: ParseBudgetForm, options: expenseCats, months: true,
		},
	}
}
