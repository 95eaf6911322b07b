// Package quant provides the fixed-point numeric types used across the
// trading core. Prices are carried as int64 micros; quantities are integer
// lots. float64 never appears in order or fill arithmetic.
package quant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceMicros represents a price multiplied by 1,000,000 (10^6).
// E.g., 45.50 TRY = 45,500,000 PriceMicros.
type PriceMicros int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

// PriceScale is the fixed-point scale for PriceMicros.
const PriceScale = 1_000_000

func (p PriceMicros) String() string {
	return p.Decimal().StringFixed(6)
}

// Decimal converts a PriceMicros to a decimal for boundary serialization
// and weighted-average arithmetic.
func (p PriceMicros) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -6)
}

// FromDecimal converts a decimal price (as parsed from a broker payload)
// to PriceMicros, rounding to the nearest micro.
func FromDecimal(d decimal.Decimal) PriceMicros {
	return PriceMicros(d.Shift(6).Round(0).IntPart())
}

// ParsePriceMicros parses a numeric string into PriceMicros without going
// through float64. Empty and "null" parse to zero.
func ParsePriceMicros(s string) (PriceMicros, error) {
	if s == "" || s == "null" {
		return 0, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// ParseTimeStamp converts a millisecond string to TimeStamp (micros).
func ParseTimeStamp(s string) (TimeStamp, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TimeStamp(ms * 1000), nil
}

// WeightedAverage recomputes a quantity-weighted average price after an
// incremental fill. prevAvg/prevQty describe the already-filled portion,
// fillPrice/fillQty the increment.
func WeightedAverage(prevAvg PriceMicros, prevQty int64, fillPrice PriceMicros, fillQty int64) PriceMicros {
	total := prevQty + fillQty
	if total <= 0 {
		return 0
	}
	prev := decimal.NewFromInt(int64(prevAvg)).Mul(decimal.NewFromInt(prevQty))
	inc := decimal.NewFromInt(int64(fillPrice)).Mul(decimal.NewFromInt(fillQty))
	avg := prev.Add(inc).DivRound(decimal.NewFromInt(total), 0)
	return PriceMicros(avg.IntPart())
}
