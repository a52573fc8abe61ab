package views

import (
	"context"
	"errors"
	"sort"
	"sync"

	"finboard/internal/apiclient"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/services"
)

const (
	// DefaultPageSize is the transactions table page size.
	DefaultPageSize = 20

	msgFetchTransactions = "Failed to fetch transactions"
	msgLoadTransactions  = "Failed to load transactions"
)

// TransactionLister is satisfied by *services.TransactionService.
type TransactionLister interface {
	List(ctx context.Context, q services.TransactionQuery) (core.TransactionPage, error)
}

// TransactionFilter holds the table's filter inputs; empty fields are unset.
type TransactionFilter struct {
	DateFrom  string
	DateTo    string
	Category  string
	AmountMin string
	AmountMax string
	IsIncome  *bool
}

// Equal compares filters by value, including IsIncome.
func (f TransactionFilter) Equal(g TransactionFilter) bool {
	if (f.IsIncome == nil) != (g.IsIncome == nil) {
		return false
	}
	if f.IsIncome != nil && *f.IsIncome != *g.IsIncome {
		return false
	}
	return f.DateFrom == g.DateFrom && f.DateTo == g.DateTo && f.Category == g.Category &&
		f.AmountMin == g.AmountMin && f.AmountMax == g.AmountMax
}

// OverviewState is a rendering snapshot of the transactions table.
type OverviewState struct {
	Rows       []core.Transaction
	Count      int
	PageIndex  int
	PageSize   int
	Pages      int
	Filter     TransactionFilter
	Categories []string
	Loading    bool
	Error      string
}

// HasPrev and HasNext drive the pager buttons.
func (s OverviewState) HasPrev() bool { return s.PageIndex > 0 }
func (s OverviewState) HasNext() bool { return s.PageIndex+1 < s.Pages }

// PageCount is ceil(count/pageSize).
func PageCount(count, pageSize int) int {
	if pageSize <= 0 || count <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// Overview is the paginated, filterable transactions table.
type Overview struct {
	svc    TransactionLister
	logger *log.Logger

	mu    sync.Mutex
	state OverviewState
	// counted is the filter the last successful load computed Pages for.
	counted *TransactionFilter
}

func NewOverview(svc TransactionLister, logger *log.Logger) *Overview {
	if logger == nil {
		logger = log.Discard()
	}
	return &Overview{
		svc:    svc,
		logger: logger.WithComponent(log.ComponentViews).With(log.FieldResource, "transaction"),
		state:  OverviewState{PageSize: DefaultPageSize, Rows: []core.Transaction{}},
	}
}

func (o *Overview) Snapshot() OverviewState {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.state
	s.Rows = append([]core.Transaction(nil), o.state.Rows...)
	s.Categories = append([]string(nil), o.state.Categories...)
	return s
}

// Load fetches the current page with the current filter.
func (o *Overview) Load(ctx context.Context) error {
	o.mu.Lock()
	o.state.Loading = true
	o.state.Error = ""
	q := o.queryLocked()
	o.mu.Unlock()

	page, err := o.svc.List(ctx, q)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Loading = false
	if err != nil {
		var failure *services.Failure
		if errors.As(err, &failure) && failure.Err == nil {
			o.state.Error = failure.Message
		} else {
			o.state.Error = msgLoadTransactions
		}
		o.logger.Error("Failed to load transactions", log.FieldOperation, log.OpList, log.FieldError, err)
		if apiclient.IsSessionExpired(err) {
			return err
		}
		return nil
	}
	o.state.Rows = page.Data
	o.state.Count = page.Count
	o.state.Pages = PageCount(page.Count, o.state.PageSize)
	counted := o.state.Filter
	o.counted = &counted
	return nil
}

// SetPage moves to the zero-based page index and loads it.
func (o *Overview) SetPage(ctx context.Context, index int) error {
	o.mu.Lock()
	if index < 0 {
		index = 0
	}
	if o.state.Pages > 0 {
		index = clampPage(index, o.state.Pages)
	}
	o.state.PageIndex = index
	o.mu.Unlock()
	return o.Load(ctx)
}

// SetFilter replaces the filter and returns to the first page.
func (o *Overview) SetFilter(ctx context.Context, f TransactionFilter) error {
	o.mu.Lock()
	o.state.Filter = f
	o.state.PageIndex = 0
	o.mu.Unlock()
	return o.Load(ctx)
}

// Show replaces the filter and the page index together and loads. The index is
// clamped to the page count when it is known for f; otherwise an out-of-range
// index is corrected after the first load, costing one more fetch.
func (o *Overview) Show(ctx context.Context, f TransactionFilter, index int) error {
	if index < 0 {
		index = 0
	}
	o.mu.Lock()
	known := o.counted != nil && o.counted.Equal(f)
	if known {
		index = clampPage(index, o.state.Pages)
	}
	o.state.Filter = f
	o.state.PageIndex = index
	o.mu.Unlock()

	if err := o.Load(ctx); err != nil || known || index == 0 {
		return err
	}

	o.mu.Lock()
	retry := index
	switch {
	case o.state.Error != "":
		retry = 0
	case o.counted != nil:
		retry = clampPage(index, o.state.Pages)
	}
	o.state.PageIndex = retry
	o.mu.Unlock()
	if retry == index {
		return nil
	}
	return o.Load(ctx)
}

func clampPage(index, pages int) int {
	if index >= pages {
		index = pages - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}

// LoadCategories fills the category filter from an unfiltered fetch. Failures
// only leave the list empty.
func (o *Overview) LoadCategories(ctx context.Context) error {
	page, err := o.svc.List(ctx, services.TransactionQuery{})
	if err != nil {
		o.logger.Warn("Failed to fetch filter categories", log.FieldError, err)
		if apiclient.IsSessionExpired(err) {
			return err
		}
		return nil
	}
	seen := make(map[string]bool, len(page.Data))
	names := make([]string, 0, len(page.Data))
	for _, t := range page.Data {
		if t.Category == "" || seen[t.Category] {
			continue
		}
		seen[t.Category] = true
		names = append(names, t.Category)
	}
	sort.Strings(names)

	o.mu.Lock()
	o.state.Categories = names
	o.mu.Unlock()
	return nil
}

func (o *Overview) queryLocked() services.TransactionQuery {
	f := o.state.Filter
	return services.TransactionQuery{
		Page:      o.state.PageIndex + 1,
		PageSize:  o.state.PageSize,
		DateFrom:  f.DateFrom,
		DateTo:    f.DateTo,
		Category:  f.Category,
		AmountMin: f.AmountMin,
		AmountMax: f.AmountMax,
		IsIncome:  f.IsIncome,
	}
}
