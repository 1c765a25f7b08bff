package risk

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// =============================================================================
// Float statistics
// =============================================================================

// Mean returns the arithmetic mean; 0 for empty input
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// StdDev returns the sample standard deviation (n-1); 0 for fewer than 2 values
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// Skewness returns the sample skewness; 0 for fewer than 3 values
func Skewness(values []float64) float64 {
	if len(values) < 3 {
		return 0
	}
	s := stat.Skew(values, nil)
	if math.IsNaN(s) {
		return 0
	}
	return s
}

// ExcessKurtosis returns the sample excess kurtosis; 0 for fewer than 4 values
func ExcessKurtosis(values []float64) float64 {
	if len(values) < 4 {
		return 0
	}
	k := stat.ExKurtosis(values, nil)
	if math.IsNaN(k) {
		return 0
	}
	return k
}

// Percentile interpolates linearly on an ascending slice; p in [0,100]
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	idx := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// TailIndex returns floor((1-confidence)*n) clamped to [0,n-1]
func TailIndex(confidence float64, n int) int {
	if n <= 0 {
		return 0
	}
	idx := int(math.Floor((1.0 - confidence) * float64(n)))
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}

// =============================================================================
// Decimal helpers
// =============================================================================

// SafeDiv divides at scale with half-up rounding; zero when den is zero
func SafeDiv(num, den decimal.Decimal, scale int32) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, scale)
}

// MeanDecimal returns the mean at RatioScale; zero for empty input
func MeanDecimal(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, values...).DivRound(decimal.NewFromInt(int64(len(values))), RatioScale)
}

// Floats converts decimals to float64
func Floats(values []decimal.Decimal) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.InexactFloat64()
	}
	return out
}

// Returns converts a price series into simple period returns at RatioScale.
// A zero price yields a zero return for the following period.
func Returns(prices []decimal.Decimal) []decimal.Decimal {
	if len(prices) < 2 {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out = append(out, SafeDiv(prices[i].Sub(prices[i-1]), prices[i-1], RatioScale))
	}
	return out
}
