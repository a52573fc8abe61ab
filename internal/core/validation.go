package core

import (
	"errors"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a form field name to the message of its first failing rule.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Forms carry raw string values exactly as submitted so the messages below can
// distinguish a missing value from a malformed one.
type (
	AuthForm struct {
		Email    string `form:"email" validate:"required,email"`
		Password string `form:"password" validate:"min=8"`
	}

	CategoryForm struct {
		Name     string `form:"name" validate:"required"`
		IsIncome string `form:"is_income" validate:"oneof=true false"`
	}

	EntryForm struct {
		CategoryID string `form:"category_id" validate:"required"`
		Amount     string `form:"amount" validate:"required,amount"`
		Date       string `form:"date" validate:"required"`
		Note       string `form:"note" validate:"min=10"`
	}

	BudgetForm struct {
		CategoryID string `form:"category_id" validate:"required"`
		Year       string `form:"year" validate:"required,numrange=2010 2100"`
		Month      string `form:"month" validate:"required,numrange=1 12"`
		Amount     string `form:"amount" validate:"required,amount"`
	}
)

// messages is keyed by "<form field>.<tag>".
var messages = map[string]string{
	"email.required":       "Email is required",
	"email.email":          "Invalid email address",
	"password.min":         "Password should be at least 8 characters long",
	"name.required":        "Name is required",
	"is_income.oneof":      "Type is required",
	"category_id.required": "Category is required",
	"amount.required":      "Amount is required",
	"amount.amount":        "Amount must be greater than 0",
	"date.required":        "Date is required",
	"note.min":             "Note must be at least 10 characters long",
	"year.required":        "Year is required",
	"year.numrange":        "Year must be between 2010 and 2100",
	"month.required":       "Month is required",
	"month.numrange":       "Month must be between 1 and 12",
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.Split(f.Tag.Get("form"), ",")[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
			_, err := ParseDecimalToCents(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("numrange", func(fl validator.FieldLevel) bool {
			bounds := strings.Fields(fl.Param())
			if len(bounds) != 2 {
				return false
			}
			lo, err1 := strconv.Atoi(bounds[0])
			hi, err2 := strconv.Atoi(bounds[1])
			n, err3 := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
			if err1 != nil || err2 != nil || err3 != nil {
				return false
			}
			return n >= lo && n <= hi
		})
		validate = v
	})
	return validate
}

// ValidateForm checks a form struct pointer and returns nil when every field passes.
// Only the first failing rule of each field is reported.
func ValidateForm(form any) FieldErrors {
	err := formValidator().Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"root": err.Error()}
	}
	out := make(FieldErrors, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		if _, seen := out[field]; seen {
			continue
		}
		msg, ok := messages[field+"."+e.Tag()]
		if !ok {
			msg = "Invalid value"
		}
		out[field] = msg
	}
	return out
}

// Input converts a validated category form to its payload.
func (f CategoryForm) Input() CategoryInput {
	return CategoryInput{Name: f.Name, IsIncome: f.IsIncome == "true"}
}

// Input converts a validated income/expense form to its payload.
func (f EntryForm) Input() (EntryInput, error) {
	categoryID, err := strconv.ParseInt(strings.TrimSpace(f.CategoryID), 10, 64)
	if err != nil {
		return EntryInput{}, FieldErrors{"category_id": "Category is required"}
	}
	cents, err := ParseDecimalToCents(f.Amount)
	if err != nil {
		return EntryInput{}, FieldErrors{"amount": "Amount must be greater than 0"}
	}
	return EntryInput{
		CategoryID: categoryID,
		Amount:     Amount{Cents: cents},
		Date:       strings.TrimSpace(f.Date),
		Note:       f.Note,
	}, nil
}

// Input converts a validated budget form to its payload.
func (f BudgetForm) Input() (BudgetInput, error) {
	categoryID, err := strconv.ParseInt(strings.TrimSpace(f.CategoryID), 10, 64)
	if err != nil {
		return BudgetInput{}, FieldErrors{"category_id": "Category is required"}
	}
	year, _ := strconv.Atoi(strings.TrimSpace(f.Year))
	month, _ := strconv.Atoi(strings.TrimSpace(f.Month))
	cents, err := ParseDecimalToCents(f.Amount)
	if err != nil {
		return BudgetInput{}, FieldErrors{"amount": "Amount must be greater than 0"}
	}
	return BudgetInput{CategoryID: categoryID, Year: year, Month: month, Amount: Amount{Cents: cents}}, nil
}
