package money

import "github.com/shopspring/decimal"

// All amounts in the wallet are fixed-point with two decimal places.
// Every value that enters the system passes through Quantize before it is
// compared or persisted, so balances never accumulate binary-float drift.

// Quantize rounds v half-up to exactly two decimal places. It is
// idempotent: Quantize(Quantize(v)) == Quantize(v).
func Quantize(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// FromString parses a decimal amount and quantizes it.
func FromString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return Quantize(d), nil
}

// Format renders v as a fixed two-decimal string ("10.00", "-4.50").
// This is the only representation exposed to callers.
func Format(v decimal.Decimal) string {
	return Quantize(v).StringFixed(2)
}
