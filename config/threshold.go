package config

import (
	"strconv"
	"strings"
)

// Threshold is a configured limit that is either a fixed amount or a
// percentage. "2.5" is the fixed value 2.5, "2.5%" is 2.5 percent.
type Threshold struct {
	Value   float64
	Percent bool
}

// ParseThreshold parses a threshold string. A trailing % marks a percent
// threshold; anything that does not parse falls back to 0.0/fixed.
func ParseThreshold(s string) Threshold {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "%") {
		value, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil {
			return Threshold{}
		}
		return Threshold{Value: value, Percent: true}
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Threshold{}
	}
	return Threshold{Value: value}
}

// Fraction returns the percent value as a fraction (2.5% -> 0.025).
// For fixed thresholds it returns the value unchanged.
func (t Threshold) Fraction() float64 {
	if t.Percent {
		return 0.01 * t.Value
	}
	return t.Value
}

// Amount returns the cost applied to a transaction of the given value:
// the fixed value, or the percentage of the transaction value.
func (t Threshold) Amount(value float64) float64 {
	if t.Percent {
		return 0.01 * t.Value * value
	}
	return t.Value
}
