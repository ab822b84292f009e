// Package amount converts between human-readable token amounts and the wei
// integers the ledger stores.
package amount

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// Decimals is the number of fractional digits in one unit.
	Decimals = 18

	// MaxDigits bounds the integer part of an amount in units. Larger
	// values, including huge exponents like "1e9999999", are rejected before
	// any integer is built.
	MaxDigits = 60
)

var (
	ErrNegative  = errors.New("amount is negative")
	ErrPrecision = errors.New("amount has more than 18 decimal places")
	ErrTooLarge  = errors.New("amount is too large")
)

// Parse converts a decimal unit string such as "1.5" into wei.
func Parse(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegative, s)
	}
	if int64(d.Exponent())+int64(d.NumDigits()) > MaxDigits {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, s)
	}
	if int64(d.Exponent()) < -(Decimals + MaxDigits) {
		return nil, fmt.Errorf("%w: %s", ErrPrecision, s)
	}
	wei := d.Shift(Decimals)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("%w: %s", ErrPrecision, s)
	}
	return wei.BigInt(), nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders wei as a unit string with trailing zeros trimmed.
func Format(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -Decimals).String()
}
