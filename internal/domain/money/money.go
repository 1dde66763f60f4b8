// Package money represents monetary values as integer minor units.
//
// All arithmetic inside the checkout path happens on Amount. Conversion to
// and from decimal.Decimal only happens at the boundaries: NUMERIC columns,
// JSON payloads and seed files.
package money

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Exponent is the number of decimal places of the minor unit.
const Exponent = 2

// Amount is a monetary value in minor units (cents).
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

// FromDecimal converts a decimal value to minor units, rounding half away
// from zero at the minor unit.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Shift(Exponent).Round(0).IntPart())
}

// Parse parses a decimal string such as "25.50".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse amount %q", s)
	}
	return FromDecimal(d), nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// constants in tests and seed data.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Decimal returns the amount as a decimal in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Exponent)
}

// String formats the amount with exactly two decimal places.
func (a Amount) String() string {
	return a.Decimal().StringFixed(Exponent)
}

// Mul multiplies the amount by an integer quantity.
func (a Amount) Mul(qty int) Amount {
	return a * Amount(qty)
}

// ApplyBPS returns a * bps / 10000 rounded half up at the minor unit.
// A basis point is 1/100 of a percent, so 2300 bps is 23%.
func (a Amount) ApplyBPS(bps int64) Amount {
	if a <= 0 || bps <= 0 {
		return 0
	}
	return Amount((int64(a)*bps + 5000) / 10000)
}

// Units returns the whole major units contained in a, rounded down.
func (a Amount) Units() int64 {
	if a <= 0 {
		return 0
	}
	return int64(a) / 100
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// PercentToBPS converts a percentage such as 12.5 into basis points.
func PercentToBPS(pct decimal.Decimal) int64 {
	return pct.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
