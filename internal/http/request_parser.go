package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"finboard/internal/core"
	"finboard/internal/views"
)

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}

// ParseAuthForm reads the login and signup forms. The password is taken
// verbatim.
func ParseAuthForm(form url.Values) core.AuthForm {
	return core.AuthForm{
		Email:    sanitizeInput(form.Get("email")),
		Password: form.Get("password"),
	}
}

func ParseCategoryForm(form url.Values) core.CategoryForm {
	isIncome := sanitizeInput(form.Get("is_income"))
	if isIncome == "on" {
		isIncome = "true"
	}
	return core.CategoryForm{
		Name:     sanitizeInput(form.Get("name")),
		IsIncome: isIncome,
	}
}

func ParseEntryForm(form url.Values) core.EntryForm {
	return core.EntryForm{
		CategoryID: sanitizeInput(form.Get("category_id")),
		Amount:     sanitizeInput(form.Get("amount")),
		Date:       sanitizeInput(form.Get("date")),
		Note:       sanitizeInput(form.Get("note")),
	}
}

func ParseBudgetForm(form url.Values) core.BudgetForm {
	return core.BudgetForm{
		CategoryID: sanitizeInput(form.Get("category_id")),
		Year:       sanitizeInput(form.Get("year")),
		Month:      sanitizeInput(form.Get("month")),
		Amount:     sanitizeInput(form.Get("amount")),
	}
}

// ParseTransactionFilter reads the transactions table filter. is_income is a
// tri-state select: empty means both kinds.
func ParseTransactionFilter(query url.Values) views.TransactionFilter {
	f := views.TransactionFilter{
		DateFrom:  sanitizeInput(query.Get("date_from")),
		DateTo:    sanitizeInput(query.Get("date_to")),
		Category:  sanitizeInput(query.Get("category")),
		AmountMin: sanitizeInput(query.Get("amount_min")),
		AmountMax: sanitizeInput(query.Get("amount_max")),
	}
	if v, err := strconv.ParseBool(sanitizeInput(query.Get("is_income"))); err == nil {
		f.IsIncome = &v
	}
	return f
}

// ParsePageIndex reads the zero-based page query parameter; anything invalid
// is page 0.
func ParsePageIndex(query url.Values) int {
	n, err := strconv.Atoi(strings.TrimSpace(query.Get("page")))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// pathID reads the {id} wildcard as a positive record id.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// filterQuery encodes a filter back into the query string the table links use.
func filterQuery(f views.TransactionFilter) url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("date_from", f.DateFrom)
	set("date_to", f.DateTo)
	set("category", f.Category)
	set("amount_min", f.AmountMin)
	set("amount_max", f.AmountMax)
	if f.IsIncome != nil {
		q.Set("is_income", strconv.FormatBool(*f.IsIncome))
	}
	return q
}
