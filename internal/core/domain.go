package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of calendar dates exchanged with the backend.
const DateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	User struct {
		ID         json.Number `json:"id"`
		Email      string      `json:"email"`
		Username   string      `json:"username,omitempty"`
		DateJoined string      `json:"date_joined,omitempty"`
		LastLogin  string      `json:"last_login,omitempty"`
	}

	Category struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		IsIncome bool   `json:"is_income"`
	}

	// CategoryRef is the nested category embedded in incomes, expenses and budgets.
	CategoryRef struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		IsIncome bool   `json:"is_income,omitempty"`
	}

	// Entry is an income or an expense; both share one backend shape.
	Entry struct {
		ID         int64       `json:"id"`
		Category   CategoryRef `json:"category"`
		CategoryID int64       `json:"category_id"`
		Amount     Amount      `json:"amount"`
		Date       Date        `json:"date"`
		Note       string      `json:"note"`
	}

	Budget struct {
		ID         int64        `json:"id"`
		Category   *CategoryRef `json:"category"`
		CategoryID *int64       `json:"category_id"`
		Year       int          `json:"year"`
		Month      int          `json:"month"`
		Amount     Amount       `json:"amount"`
	}

	Transaction struct {
		ID       int64  `json:"id"`
		Note     string `json:"note"`
		Category string `json:"category"`
		Amount   Amount `json:"amount"`
		Date     Date   `json:"date"`
		IsIncome bool   `json:"is_income"`
	}

	TransactionPage struct {
		Count    int           `json:"count"`
		Next     *string       `json:"next"`
		Previous *string       `json:"previous"`
		Data     []Transaction `json:"data"`
	}
)

// Income and Expense are distinct names over the shared entry shape.
type (
	Income  = Entry
	Expense = Entry
)

// Payloads sent on create and update.
type (
	CategoryInput struct {
		Name     string `json:"name"`
		IsIncome bool   `json:"is_income"`
	}

	EntryInput struct {
		CategoryID int64  `json:"category_id"`
		Amount     Amount `json:"amount"`
		Date       string `json:"date"`
		Note       string `json:"note"`
	}

	// BudgetInput omits category_id when zero, matching the backend's "general budget".
	BudgetInput struct {
		CategoryID int64  `json:"category_id,omitempty"`
		Year       int    `json:"year"`
		Month      int    `json:"month"`
		Amount     Amount `json:"amount"`
	}
)

var (
	ErrInvalidDay    = errors.New("invalid day")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

var monthNames = [...]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthName returns the English month name for 1..12 and "" otherwise.
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return monthNames[month-1]
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts "YYYY-MM-DD" and full RFC 3339 timestamps.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return NewDate(t.Year(), int(t.Month()), t.Day()), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// DisplayName is the label used in budget lists.
func (b Budget) DisplayName() string {
	if b.Category != nil && b.Category.Name != "" {
		return b.Category.Name
	}
	return "General"
}

// ItemName identifies a budget in delete confirmations, e.g. "March 2025 - $1200.00".
func (b Budget) ItemName() string {
	return fmt.Sprintf("%s %d - $%s", MonthName(b.Month), b.Year, b.Amount.String())
}

// CategoryIDValue returns the selected category or 0 for a general budget.
func (b Budget) CategoryIDValue() int64 {
	if b.CategoryID != nil {
		return *b.CategoryID
	}
	if b.Category != nil {
		return b.Category.ID
	}
	return 0
}

// CategoryIDValue returns the entry's category id, falling back to the nested record.
func (e Entry) CategoryIDValue() int64 {
	if e.CategoryID != 0 {
		return e.CategoryID
	}
	return e.Category.ID
}

// Type labels a category for list views.
func (c Category) Type() string {
	if c.IsIncome {
		return "Income"
	}
	return "Expense"
}
