package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/core"
)

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "hello", sanitizeInput("  hello \n"))
	assert.Equal(t, "ab", sanitizeInput("a\x00b"))
	assert.Equal(t, "a\tb", sanitizeInput("a\tb"))
}

func TestParseAuthForm(t *testing.T) {
	form := url.Values{"email": {"  me@example.com "}, "password": {"  spaced pw  "}}

	got := ParseAuthForm(form)

	assert.Equal(t, "me@example.com", got.Email)
	assert.Equal(t, "  spaced pw  ", got.Password, "password is taken verbatim")
}

func TestParseCategoryForm(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"checkbox on", "on", "true"},
		{"select true", "true", "true"},
		{"select false", "false", "false"},
		{"missing", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCategoryForm(url.Values{"name": {" Food "}, "is_income": {tt.in}})
			assert.Equal(t, "Food", got.Name)
			assert.Equal(t, tt.want, got.IsIncome)
		})
	}
}

func TestParseEntryAndBudgetForms(t *testing.T) {
	entry := ParseEntryForm(url.Values{
		"category_id": {"3"},
		"amount":      {" 12.50 "},
		"date":        {"2025-04-01"},
		"note":        {"weekly groceries"},
	})
	assert.Equal(t, core.EntryForm{CategoryID: "3", Amount: "12.50", Date: "2025-04-01", Note: "weekly groceries"}, entry)

	budget := ParseBudgetForm(url.Values{
		"category_id": {"4"},
		"year":        {"2025"},
		"month":       {"11"},
		"amount":      {"300"},
	})
	assert.Equal(t, core.BudgetForm{CategoryID: "4", Year: "2025", Month: "11", Amount: "300"}, budget)
}

func TestParseTransactionFilter(t *testing.T) {
	q := url.Values{
		"date_from":  {"2025-01-01"},
		"date_to":    {"2025-01-31"},
		"category":   {"Food"},
		"amount_min": {"5"},
		"amount_max": {"50"},
		"is_income":  {"false"},
	}

	f := ParseTransactionFilter(q)

	assert.Equal(t, "2025-01-01", f.DateFrom)
	assert.Equal(t, "2025-01-31", f.DateTo)
	assert.Equal(t, "Food", f.Category)
	assert.Equal(t, "5", f.AmountMin)
	assert.Equal(t, "50", f.AmountMax)
	require.NotNil(t, f.IsIncome)
	assert.False(t, *f.IsIncome)

	assert.Nil(t, ParseTransactionFilter(url.Values{"is_income": {""}}).IsIncome)
	assert.Nil(t, ParseTransactionFilter(url.Values{"is_income": {"maybe"}}).IsIncome)
}

func TestFilterQueryRoundTrip(t *testing.T) {
	income := true
	f := ParseTransactionFilter(url.Values{"category": {"Salary"}, "is_income": {"true"}})

	q := filterQuery(f)

	assert.Equal(t, "Salary", q.Get("category"))
	assert.Equal(t, "true", q.Get("is_income"))
	assert.False(t, q.Has("date_from"))
	assert.Equal(t, &income, ParseTransactionFilter(q).IsIncome)
}

func TestParsePageIndex(t *testing.T) {
	assert.Equal(t, 0, ParsePageIndex(url.Values{}))
	assert.Equal(t, 3, ParsePageIndex(url.Values{"page": {"3"}}))
	assert.Equal(t, 0, ParsePageIndex(url.Values{"page": {"-2"}}))
	assert.Equal(t, 0, ParsePageIndex(url.Values{"page": {"two"}}))
}

func TestPathID(t *testing.T) {
	tests := []struct {
		value  string
		want   int64
		wantOK bool
	}{
		{"12", 12, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/expenses/x", nil)
		req.SetPathValue("id", tt.value)
		got, ok := pathID(req)
		assert.Equal(t, tt.wantOK, ok, tt.value)
		assert.Equal(t, tt.want, got, tt.value)
	}
}

func TestParseFormOrFail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("field=value"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	assert.Nil(t, ParseFormOrFail(req))
	assert.Equal(t, "value", req.PostForm.Get("field"))

	bad := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("%zz"))
	bad.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := ParseFormOrFail(bad)
	require.NotNil(t, resp)

	w := httptest.NewRecorder()
	resp.Write(w)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
