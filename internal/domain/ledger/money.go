package ledger

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitExponent lists ISO 4217 currencies whose minor unit is not 1/100.
var minorUnitExponent = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// MinorUnits returns the number of decimal places of a currency's minor unit.
func MinorUnits(currency string) int32 {
	if exp, ok := minorUnitExponent[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// FormatMinor renders an amount in minor units as a fixed-point string,
// e.g. 50000 USD -> "500.00".
func FormatMinor(amount int64, currency string) string {
	exp := MinorUnits(currency)
	return decimal.New(amount, -exp).StringFixed(exp)
}

// ParseMajor converts a decimal string in major units into minor units.
// Fractions finer than the currency's minor unit are rejected.
func ParseMajor(value, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, ErrInvalidAmount.WithDetail("value", value)
	}
	exp := MinorUnits(currency)
	scaled := d.Shift(exp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrInvalidAmount.WithDetail("value", value).WithDetail("currency", currency)
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || scaled.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, ErrAmountOverflow.WithDetail("value", value)
	}
	return scaled.IntPart(), nil
}

// ValidCurrency reports whether code looks like an ISO 4217 alphabetic code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// addAmounts adds b to a, failing instead of wrapping around.
func addAmounts(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}
