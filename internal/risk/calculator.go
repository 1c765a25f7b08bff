package risk

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/pkg/logger"
)

// Options tunes a Calculator
type Options struct {
	ZScore     ZScoreMode
	MonteCarlo MonteCarloMode
	Seed       int64 // 0 = seeded from clock
	Workers    int   // <= 0 = NumCPU
}

// DefaultOptions keeps the table z-score and independent draws
func DefaultOptions() Options {
	return Options{ZScore: ZScoreTable, MonteCarlo: Independent}
}

// Calculator computes portfolio risk statistics.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	opts Options
	log  *logger.Logger
}

// NewCalculator creates a calculator; a nil logger discards output
func NewCalculator(opts Options, log *logger.Logger) *Calculator {
	if opts.ZScore == "" {
		opts.ZScore = ZScoreTable
	}
	if opts.MonteCarlo == "" {
		opts.MonteCarlo = Independent
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Calculator{opts: opts, log: log.Component("risk")}
}

// Options returns the calculator settings
func (c *Calculator) Options() Options { return c.opts }

// =============================================================================
// Portfolio composition
// =============================================================================

// PortfolioValue sums the current value of held, priced positions
func PortfolioValue(positions []contracts.Position, prices contracts.PriceMap) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		if !p.HasPosition() {
			continue
		}
		if price, ok := prices[p.InstrumentKey]; ok {
			total = total.Add(p.CurrentValue(price))
		}
	}
	return total
}

// PortfolioWeights returns value/total per priced instrument at RatioScale.
// Empty when the total is zero.
func PortfolioWeights(positions []contracts.Position, prices contracts.PriceMap) map[string]decimal.Decimal {
	total := PortfolioValue(positions, prices)
	weights := make(map[string]decimal.Decimal, len(positions))
	if total.IsZero() {
		return weights
	}
	for _, p := range positions {
		if !p.HasPosition() {
			continue
		}
		price, ok := prices[p.InstrumentKey]
		if !ok {
			continue
		}
		weights[p.InstrumentKey] = p.CurrentValue(price).DivRound(total, RatioScale)
	}
	return weights
}

func portfolioExpectedReturn(weights map[string]decimal.Decimal, expected map[string]float64) float64 {
	var er float64
	for _, asset := range sortedKeys(weights) {
		w := weights[asset]
		if r, ok := expected[asset]; ok {
			er += w.InexactFloat64() * r
		}
	}
	return er
}

// portfolioVolatility is sqrt(sum_ij wi wj si sj rho_ij), rho defaulting to 1
func portfolioVolatility(weights map[string]decimal.Decimal, vols map[string]float64, corr CorrelationMatrix) float64 {
	keys := sortedKeys(weights)
	var variance float64
	for _, a1 := range keys {
		w1 := weights[a1]
		v1, ok := vols[a1]
		if !ok {
			continue
		}
		for _, a2 := range keys {
			w2 := weights[a2]
			v2, ok := vols[a2]
			if !ok {
				continue
			}
			rho, ok := corr.Get(a1, a2)
			if !ok {
				rho = 1.0
			}
			variance += w1.InexactFloat64() * w2.InexactFloat64() * v1 * v2 * rho
		}
	}
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// =============================================================================
// Drawdown
// =============================================================================

// MaxDrawdown tracks the running peak in one pass; zero result for fewer than 2 values
func (c *Calculator) MaxDrawdown(values []decimal.Decimal) Drawdown {
	if len(values) < 2 {
		return Drawdown{MaxDrawdown: decimal.Zero}
	}

	peak := values[0]
	maxDD := decimal.Zero
	start, end, currentStart := 0, 0, 0

	for i := 1; i < len(values); i++ {
		v := values[i]
		if v.GreaterThan(peak) {
			peak = v
			currentStart = i
			continue
		}
		dd := SafeDiv(peak.Sub(v), peak, RatioScale)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			start = currentStart
			end = i
		}
	}

	return Drawdown{
		MaxDrawdown: maxDD,
		Duration:    end - start,
		Recovered:   values[len(values)-1].GreaterThanOrEqual(values[start]),
		StartIndex:  start,
		EndIndex:    end,
	}
}

// =============================================================================
// Performance ratios
// =============================================================================

// SharpeRatio is (mean - riskFree) / population stddev; 0 on empty input or zero deviation
func (c *Calculator) SharpeRatio(returns []decimal.Decimal, riskFree decimal.Decimal) float64 {
	if len(returns) == 0 {
		return 0
	}
	avg := MeanDecimal(returns)
	sd := populationStdDev(returns, avg)
	if sd == 0 {
		return 0
	}
	return avg.Sub(riskFree).InexactFloat64() / sd
}

// SortinoRatio is (mean - target) / downside deviation over returns below target
func (c *Calculator) SortinoRatio(returns []decimal.Decimal, target decimal.Decimal) float64 {
	if len(returns) == 0 {
		return 0
	}
	avg := MeanDecimal(returns)

	var sumSq float64
	var n int
	for _, r := range returns {
		if r.LessThan(target) {
			d := r.Sub(target).InexactFloat64()
			sumSq += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	dd := math.Sqrt(sumSq / float64(n))
	if dd == 0 {
		return 0
	}
	return avg.Sub(target).InexactFloat64() / dd
}

// CalmarRatio is annualized return (sum × 252 / n) over max drawdown of values
func (c *Calculator) CalmarRatio(returns, values []decimal.Decimal) float64 {
	if len(returns) == 0 || len(values) == 0 {
		return 0
	}
	total := decimal.Sum(decimal.Zero, returns...)
	annualized := total.InexactFloat64() * (TradingDaysPerYear / float64(len(returns)))

	mdd := c.MaxDrawdown(values).MaxDrawdown
	if mdd.IsZero() {
		return 0
	}
	return annualized / mdd.InexactFloat64()
}

// InformationRatio is mean excess return over tracking error; series must align
func (c *Calculator) InformationRatio(portfolio, benchmark []decimal.Decimal) float64 {
	if len(portfolio) == 0 || len(portfolio) != len(benchmark) {
		return 0
	}
	excess := make([]decimal.Decimal, len(portfolio))
	for i := range portfolio {
		excess[i] = portfolio[i].Sub(benchmark[i])
	}
	avg := MeanDecimal(excess)
	te := populationStdDev(excess, avg)
	if te == 0 {
		return 0
	}
	return avg.InexactFloat64() / te
}

// Beta is sample cov(portfolio, market) / var(market); 1.0 when undefined
func (c *Calculator) Beta(portfolio, market []decimal.Decimal) float64 {
	n := len(portfolio)
	if n != len(market) || n < 2 {
		return 1.0
	}
	avgP := MeanDecimal(portfolio)
	avgM := MeanDecimal(market)

	var cov, varM float64
	for i := 0; i < n; i++ {
		dp := portfolio[i].Sub(avgP).InexactFloat64()
		dm := market[i].Sub(avgM).InexactFloat64()
		cov += dp * dm
		varM += dm * dm
	}
	cov /= float64(n - 1)
	varM /= float64(n - 1)
	if varM == 0 {
		return 1.0
	}
	return cov / varM
}

// Alpha is mean portfolio return minus the CAPM expected return
func (c *Calculator) Alpha(portfolio, market []decimal.Decimal, riskFree decimal.Decimal) float64 {
	if len(portfolio) == 0 || len(portfolio) != len(market) {
		return 0
	}
	avgP := MeanDecimal(portfolio)
	avgM := MeanDecimal(market)
	beta := decimal.NewFromFloat(c.Beta(portfolio, market))

	expected := riskFree.Add(avgM.Sub(riskFree).Mul(beta))
	return avgP.Sub(expected).InexactFloat64()
}

func populationStdDev(values []decimal.Decimal, mean decimal.Decimal) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v.Sub(mean).InexactFloat64()
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// =============================================================================
// Sensitivities
// =============================================================================

// DeltaSensitivity bumps each price up by shock and returns Δvalue/Δprice at SensitivityScale.
// Unpriced or empty positions are skipped.
func (c *Calculator) DeltaSensitivity(positions []contracts.Position, prices contracts.PriceMap, shock decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(positions))
	one := decimal.NewFromInt(1)
	for _, p := range positions {
		if !p.HasPosition() {
			continue
		}
		price, ok := prices[p.InstrumentKey]
		if !ok {
			continue
		}
		shocked := price.Mul(one.Add(shock))
		dPrice := shocked.Sub(price)
		dValue := p.CurrentValue(shocked).Sub(p.CurrentValue(price))
		out[p.InstrumentKey] = SafeDiv(dValue, dPrice, SensitivityScale)
	}
	return out
}

// GammaSensitivity uses a symmetric bump: (up + down - 2×current) / (price×shock)²
func (c *Calculator) GammaSensitivity(positions []contracts.Position, prices contracts.PriceMap, shock decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(positions))
	one := decimal.NewFromInt(1)
	two := decimal.NewFromInt(2)
	for _, p := range positions {
		if !p.HasPosition() {
			continue
		}
		price, ok := prices[p.InstrumentKey]
		if !ok {
			continue
		}
		up := p.CurrentValue(price.Mul(one.Add(shock)))
		down := p.CurrentValue(price.Mul(one.Sub(shock)))
		cur := p.CurrentValue(price)
		bump := price.Mul(shock)
		out[p.InstrumentKey] = SafeDiv(up.Add(down).Sub(cur.Mul(two)), bump.Mul(bump), SensitivityScale)
	}
	return out
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
