package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-09")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", d.String())

	d, err = ParseDate("2025-03-09T22:10:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", d.String())

	_, err = ParseDate("09/03/2025")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestMonthName(t *testing.T) {
	assert.Equal(t, "January", MonthName(1))
	assert.Equal(t, "December", MonthName(12))
	assert.Equal(t, "", MonthName(0))
	assert.Equal(t, "", MonthName(13))
}

func TestEntryDecodesBackendShape(t *testing.T) {
	raw := `{"id":4,"category":{"id":2,"name":"Salary"},"category_id":2,"amount":"2500.00","date":"2025-01-31","note":"January salary","created_at":"2025-01-31T10:00:00Z"}`
	var e Income
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	assert.Equal(t, int64(4), e.ID)
	assert.Equal(t, "Salary", e.Category.Name)
	assert.Equal(t, int64(250000), e.Amount.Cents)
	assert.Equal(t, NewDate(2025, 1, 31), e.Date)
	assert.Equal(t, int64(2), e.CategoryIDValue())
}

func TestBudgetLabels(t *testing.T) {
	var general Budget
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"category":null,"category_id":null,"year":2025,"month":3,"amount":"1200.00"}`), &general))
	assert.Equal(t, "General", general.DisplayName())
	assert.Equal(t, "March 2025 - $1200.00", general.ItemName())
	assert.Equal(t, int64(0), general.CategoryIDValue())

	id := int64(7)
	food := Budget{Category: &CategoryRef{ID: 7, Name: "Food"}, CategoryID: &id, Year: 2024, Month: 11, Amount: Amount{Cents: 30050}}
	assert.Equal(t, "Food", food.DisplayName())
	assert.Equal(t, "November 2024 - $300.50", food.ItemName())
	assert.Equal(t, int64(7), food.CategoryIDValue())
}

func TestUserAcceptsNumericID(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"id":12,"email":"a@b.co","username":"ab","date_joined":"2025-01-01T00:00:00Z","last_login":null}`), &u))
	assert.Equal(t, "12", u.ID.String())
	assert.Equal(t, "a@b.co", u.Email)
}

func TestFinancialSummaryDecodes(t *testing.T) {
	raw := `{"budgetStats":[{"date":"November 2025","totalBudget":"1000.00","totalExpense":"1250.00"}],
		"incomeCategories":[{"category":"Salary","totalincome":"3000.00"}],
		"expenseCategories":[{"category":"Food","totalincome":450}],
		"totalSaving":"1750.00","totalEarning":"3000.00","totalExpenses":"1250.00"}`
	var s FinancialSummary
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	require.Len(t, s.BudgetStats, 1)
	assert.Equal(t, int64(-25000), s.BudgetStats[0].Headroom().Cents)
	assert.Equal(t, int64(45000), s.ExpenseCategories[0].Total.Cents)
	assert.Equal(t, int64(175000), s.TotalSaving.Cents)
}
