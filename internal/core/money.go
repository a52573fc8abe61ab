// Package core holds the finance records exchanged with the REST backend, the
// amount type they share and the form schemas validated before submission.
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
)

// DisplayCurrency is the ISO code amounts are rendered in.
const DisplayCurrency = money.INR

// Amount is a decimal amount with two fractional digits stored as integer cents.
// The backend serialises decimals as JSON strings ("12.50") or numbers; both decode.
type Amount struct {
	Cents int64
}

// NewAmount converts a float (as produced by form parsing) to Amount with half-up rounding.
func NewAmount(v float64) Amount {
	return Amount{Cents: int64(math.Round(v * 100))}
}

// ParseDecimalToCents converts a user-entered decimal string to cents.
//
// Both dot (12.34) and comma (12,34) separators are accepted; the third decimal
// is rounded half-up. Only strictly positive amounts are valid.
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12.346") -> 1235, nil
//	ParseDecimalToCents("0")      -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	cents, err := parseCents(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseAmount parses a signed decimal as sent by the backend ("-12.50", "0.00", "7").
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f*100) >= math.MaxInt64 {
			return Amount{}, ErrInvalidAmount
		}
		m := NewAmount(f)
		if neg {
			m.Cents = -m.Cents
		}
		return m, nil
	}
	cents, err := parseCents(s)
	if err != nil {
		return Amount{}, err
	}
	if neg {
		cents = -cents
	}
	return Amount{Cents: cents}, nil
}

// parseCents handles unsigned "123", "123.4", "123.456" with half-up rounding.
func parseCents(s string) (int64, error) {
	if s == "" {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// iv*100 plus up to 99 fractional cents must fit in int64.
	if iv > (math.MaxInt64-99)/100 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// UnmarshalJSON accepts "12.50", 12.5, 12 and null.
func (m *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		m.Cents = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode amount: %w", err)
		}
		if strings.TrimSpace(raw) == "" {
			m.Cents = 0
			return nil
		}
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return fmt.Errorf("decode amount %q: %w", raw, err)
	}
	*m = parsed
	return nil
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Amount) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// String renders the plain decimal form, e.g. "-12.05".
func (m Amount) String() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// Float returns the amount as a float64 for chart scaling only.
func (m Amount) Float() float64 {
	return float64(m.Cents) / 100.0
}

// Display formats the amount with the currency symbol and grouping, e.g. "₹1,234.50".
func (m Amount) Display() string {
	return money.New(m.Cents, DisplayCurrency).Display()
}

// Add returns m + o.
func (m Amount) Add(o Amount) Amount {
	return Amount{Cents: m.Cents + o.Cents}
}

// IsZero reports whether the amount is exactly zero.
func (m Amount) IsZero() bool {
	return m.Cents == 0
}
