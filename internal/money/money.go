// Package money implements exact minor-unit arithmetic for AED amounts.
// One AED is 100 fils; every stored amount is an integer count of fils.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money is an AED amount in fils. Arithmetic never leaves the integer
// domain; rate multiplication rounds half-up immediately.
type Money int64

// Zero is the additive identity.
const Zero Money = 0

// ErrBadAmount indicates a display value that cannot be parsed.
var ErrBadAmount = errors.New("money: malformed amount")

// FromFils wraps a raw minor-unit count.
func FromFils(v int64) Money {
	return Money(v)
}

// FromAED converts whole dirhams and fils into Money.
func FromAED(dirhams, fils int64) Money {
	return Money(dirhams*100 + fils)
}

// Fils returns the raw minor-unit count.
func (m Money) Fils() int64 {
	return int64(m)
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return m + other
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return m - other
}

// Neg returns -m.
func (m Money) Neg() Money {
	return -m
}

// Abs returns the magnitude of m.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// IsNegative reports whether m is below zero.
func (m Money) IsNegative() bool {
	return m < 0
}

// MulRatio multiplies m by num/den, rounding half-up (half away from zero
// for negative results) to the nearest fil. den must be positive.
func (m Money) MulRatio(num, den int64) Money {
	if den <= 0 {
		panic("money: non-positive denominator")
	}
	return Money(roundDiv(int64(m)*num, den))
}

// roundDiv divides a by b rounding half away from zero. b > 0.
func roundDiv(a, b int64) int64 {
	if a >= 0 {
		return (a + b/2) / b
	}
	return -((-a + b/2) / b)
}

// Display renders m as a decimal string with exactly two fraction digits,
// e.g. 525000 -> "5250.00". This is the only place division by 100 occurs.
func (m Money) Display() string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// String implements fmt.Stringer using the display form.
func (m Money) String() string {
	return m.Display()
}

// FromDisplay parses a two-decimal display value back into fils. It is the
// inverse of Display for every representable amount.
func FromDisplay(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrBadAmount
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	whole, frac := s, "00"
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" || len(frac) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, s)
	}
	d, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, s)
	}
	v := d*100 + f
	if neg {
		v = -v
	}
	return Money(v), nil
}

// Sum folds a slice of amounts.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}
