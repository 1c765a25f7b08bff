package risk

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Parametric VaR
// =============================================================================

// ParametricVaR is portfolioValue × -(μp - σp·z) × sqrt(horizon/252).
// Pairs without a correlation entry are treated as perfectly correlated.
func (c *Calculator) ParametricVaR(in MarketInputs, confidence float64, horizonDays int) (decimal.Decimal, error) {
	if err := in.validate(); err != nil {
		return decimal.Zero, err
	}
	if horizonDays <= 0 {
		return decimal.Zero, invalid("time horizon must be > 0, got %d", horizonDays)
	}

	weights := PortfolioWeights(in.Positions, in.Prices)
	value := PortfolioValue(in.Positions, in.Prices)

	mu := portfolioExpectedReturn(weights, in.ExpectedReturns)
	sigma := portfolioVolatility(weights, in.Volatilities, in.Correlations)
	z := ZScore(confidence, c.opts.ZScore)
	timeScale := math.Sqrt(float64(horizonDays) / TradingDaysPerYear)

	ratio := -(mu - sigma*z) * timeScale
	return value.Mul(decimal.NewFromFloat(ratio)), nil
}

// =============================================================================
// Historical VaR / CVaR
// =============================================================================

// HistoricalVaR is portfolioValue × |r[k]| for the ascending returns, k = floor((1-c)·n)
func (c *Calculator) HistoricalVaR(returns []decimal.Decimal, portfolioValue decimal.Decimal, confidence float64) (decimal.Decimal, error) {
	if len(returns) == 0 {
		return decimal.Zero, invalid("historical returns are required")
	}
	sorted := sortedDecimals(returns)
	idx := TailIndex(confidence, len(sorted))
	return portfolioValue.Mul(sorted[idx].Abs()), nil
}

// CVaR is portfolioValue × mean(|r[0..k]|), the mean taken at RatioScale
func (c *Calculator) CVaR(returns []decimal.Decimal, portfolioValue decimal.Decimal, confidence float64) (decimal.Decimal, error) {
	if len(returns) == 0 {
		return decimal.Zero, invalid("historical returns are required")
	}
	sorted := sortedDecimals(returns)
	cutoff := TailIndex(confidence, len(sorted))

	sum := decimal.Zero
	for i := 0; i <= cutoff; i++ {
		sum = sum.Add(sorted[i].Abs())
	}
	avg := sum.DivRound(decimal.NewFromInt(int64(cutoff+1)), RatioScale)
	return portfolioValue.Mul(avg), nil
}

// HistoricalRisk returns VaR and CVaR over the same return series
func (c *Calculator) HistoricalRisk(returns []decimal.Decimal, portfolioValue decimal.Decimal, confidence float64) (VaRResult, error) {
	v, err := c.HistoricalVaR(returns, portfolioValue, confidence)
	if err != nil {
		return VaRResult{}, err
	}
	cv, err := c.CVaR(returns, portfolioValue, confidence)
	if err != nil {
		return VaRResult{}, err
	}
	return VaRResult{Confidence: confidence, VaR: v, CVaR: cv}, nil
}

// =============================================================================
// Monte Carlo VaR
// =============================================================================

// MonteCarloVaR simulates runs weighted portfolio returns over the horizon and applies
// HistoricalVaR to them. Draws are independent unless the Cholesky mode is set; a
// correlation matrix that is not positive definite falls back to independent draws.
func (c *Calculator) MonteCarloVaR(ctx context.Context, in MarketInputs, confidence float64, runs, horizonDays int) (decimal.Decimal, error) {
	if err := in.validate(); err != nil {
		return decimal.Zero, err
	}
	if runs <= 0 {
		return decimal.Zero, invalid("simulation runs must be > 0, got %d", runs)
	}
	if horizonDays <= 0 {
		return decimal.Zero, invalid("time horizon must be > 0, got %d", horizonDays)
	}

	value := PortfolioValue(in.Positions, in.Prices)
	weights := PortfolioWeights(in.Positions, in.Prices)
	assets := in.assets()
	timeScale := math.Sqrt(float64(horizonDays) / TradingDaysPerYear)

	// per-asset drift, scale and weight in asset order
	drift := make([]float64, len(assets))
	scale := make([]float64, len(assets))
	w := make([]float64, len(assets))
	for i, a := range assets {
		drift[i] = in.ExpectedReturns[a] * timeScale
		scale[i] = in.Volatilities[a] * timeScale
		w[i] = weights[a].InexactFloat64()
	}

	corr := correlator{n: len(assets)}
	if c.opts.MonteCarlo == Cholesky {
		var ok bool
		corr, ok = newCorrelator(assets, in.Correlations)
		if !ok {
			c.log.WithField("assets", len(assets)).
				Warn("correlation matrix is not positive definite; using independent draws")
		}
	}

	sampler := NewSampler(runs, c.opts.Seed, c.opts.Workers)
	simulated, err := Sample(ctx, sampler, func(rng *rand.Rand) float64 {
		z := make([]float64, len(assets))
		scratch := make([]float64, len(assets))
		corr.draw(rng, z, scratch)
		var r float64
		for i := range assets {
			r += w[i] * (drift[i] + scale[i]*z[i])
		}
		return r
	})
	if err != nil {
		return decimal.Zero, err
	}

	sort.Float64s(simulated)
	idx := TailIndex(confidence, len(simulated))
	return value.Mul(decimal.NewFromFloat(math.Abs(simulated[idx]))), nil
}

func sortedDecimals(values []decimal.Decimal) []decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	return sorted
}
