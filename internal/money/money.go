package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places stored for currency amounts.
const Scale = 2

var ErrNegativeAmount = errors.New("amount must be >= 0")

func Cents(v decimal.Decimal) decimal.Decimal {
	return v.Round(Scale)
}

// CentsUp rounds toward positive infinity. Used for floors so that a rounded value never undercuts them.
func CentsUp(v decimal.Decimal) decimal.Decimal {
	return v.RoundCeil(Scale)
}

func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if v.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return Cents(v), nil
}

func Float(v decimal.Decimal) float64 {
	f, _ := v.Float64()
	return f
}

// Ratio returns num/den as a float, or 0 when den is zero.
func Ratio(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	return Float(num.DivRound(den, 8))
}

func SafeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Format renders v with thousands separators and two decimals, e.g. -12,345.60.
func Format(v decimal.Decimal) string {
	v = Cents(v)
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Neg()
	}
	fixed := v.StringFixed(Scale)
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + comma(whole) + "." + frac
}

// FormatWhole renders v rounded to a whole unit with thousands separators.
func FormatWhole(v decimal.Decimal) string {
	v = v.Round(0)
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Neg()
	}
	return sign + comma(v.StringFixed(0))
}

func comma(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(digits); i += 3 {
		b.WriteString(digits[i : i+3])
		if i+3 < len(digits) {
			b.WriteByte(',')
		}
	}
	return b.String()
}
