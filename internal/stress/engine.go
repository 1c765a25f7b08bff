package stress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/risk"
	"github.com/wonny/aegis-risk/internal/scenario"
	"github.com/wonny/aegis-risk/pkg/logger"
)

// ErrInvalidInput is returned when a stress run gets an empty or worthless portfolio
var ErrInvalidInput = errors.New("invalid stress test input")

const (
	// volatilityOverlay is the fraction of price knocked off per unit of volatility multiplier
	volatilityOverlay = 0.10
	// shockStdDev is the standard deviation of the Monte Carlo GENERAL shock before scaling
	shockStdDev = 0.10
	// sensitivityBump is the relative price bump used for delta and gamma
	sensitivityBump = 0.01
	// stressConfidence is the confidence reported by Monte Carlo runs
	stressConfidence = 0.95
)

// Options tunes Monte Carlo stress runs
type Options struct {
	Runs    int   // default number of draws
	Seed    int64 // 0 = seeded from clock
	Workers int   // <= 0 = NumCPU
}

// DefaultOptions uses 10,000 draws
func DefaultOptions() Options {
	return Options{Runs: 10000}
}

// Engine applies scenarios to a portfolio snapshot.
// Every call is a pure transformation of its inputs; the engine is safe for concurrent use.
type Engine struct {
	calc *risk.Calculator
	opts Options
	log  *logger.Logger
	now  func() time.Time
}

// NewEngine creates an engine; a nil calculator gets default options, a nil logger discards output
func NewEngine(calc *risk.Calculator, opts Options, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if calc == nil {
		calc = risk.NewCalculator(risk.DefaultOptions(), log)
	}
	if opts.Runs <= 0 {
		opts.Runs = DefaultOptions().Runs
	}
	return &Engine{calc: calc, opts: opts, log: log.Component("stress"), now: time.Now}
}

// Options returns the engine settings
func (e *Engine) Options() Options { return e.opts }

// NewTestID returns ST_<unix millis>_<8 hex>
func NewTestID(now time.Time) string {
	return fmt.Sprintf("ST_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// =============================================================================
// Single scenario
// =============================================================================

// RunSingle applies one scenario's GENERAL shock and volatility overlay to every priced instrument
func (e *Engine) RunSingle(s scenario.RiskScenario, positions []contracts.Position, prices contracts.PriceMap) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	initial, err := validateInputs(positions, prices)
	if err != nil {
		return nil, err
	}

	stressedPrices := e.stressPrices(s, prices)
	stressed := risk.PortfolioValue(positions, stressedPrices)
	loss := initial.Sub(stressed)

	r := e.newResult(s.ID, positions, initial)
	r.SimulationRuns = 1
	r.ConfidenceLevel = s.Severity.Profile().RecommendedConfidence
	r.StressedValue = stressed
	r.PortfolioLoss = loss
	r.WorstCaseLoss = loss
	r.ExpectedLoss = loss
	r.VaR95 = loss
	r.VaR99 = loss
	r.CVaR = loss

	r.AssetContributions = assetContributions(positions, prices, stressedPrices)
	bump := decimal.NewFromFloat(sensitivityBump)
	r.DeltaSensitivity = e.calc.DeltaSensitivity(positions, prices, bump)
	r.GammaSensitivity = e.calc.GammaSensitivity(positions, prices, bump)

	hhi := concentration(positions, prices)
	r.ConcentrationRisk = &hhi
	if hhi > 0 {
		r.EffectiveAssetCount = int(math.Round(1 / hhi))
	}

	days := liquidationDays(s, positions)
	r.LiquidationTimeframe = &days
	r.LiquidationCost = decimal.NewNullDecimal(s.CalculateLiquidityImpact(stressed))

	e.log.WithFields(map[string]interface{}{
		"test_id":     r.TestID,
		"scenario_id": s.ID,
		"loss":        loss.StringFixed(2),
	}).Debug("single scenario stress test completed")

	return r, nil
}

// stressPrices applies the GENERAL shock plus the volatility overlay, floored at zero
func (e *Engine) stressPrices(s scenario.RiskScenario, prices contracts.PriceMap) contracts.PriceMap {
	out := make(contracts.PriceMap, len(prices))
	overlay := decimal.Zero
	if s.VolatilityMultiplier.Valid {
		overlay = decimal.NewFromFloat(volatilityOverlay).Mul(s.VolatilityMultiplier.Decimal).Neg()
	}
	for key, price := range prices {
		shocked := s.ApplyMarketShock(scenario.SegmentGeneral, price).Add(price.Mul(overlay))
		if shocked.IsNegative() {
			shocked = decimal.Zero
		}
		out[key] = shocked
	}
	return out
}

// assetContributions is original minus stressed value per held position.
// Unpriced positions contribute zero.
func assetContributions(positions []contracts.Position, before, after contracts.PriceMap) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(positions))
	for _, p := range positions {
		if !p.HasPosition() {
			continue
		}
		orig, ok := before[p.InstrumentKey]
		if !ok {
			out[p.InstrumentKey] = decimal.Zero
			continue
		}
		out[p.InstrumentKey] = p.CurrentValue(orig).Sub(p.CurrentValue(after[p.InstrumentKey]))
	}
	return out
}

// concentration is the Herfindahl index of position weights
func concentration(positions []contracts.Position, prices contracts.PriceMap) float64 {
	var hhi float64
	for _, w := range risk.PortfolioWeights(positions, prices) {
		f := w.InexactFloat64()
		hhi += f * f
	}
	return hhi
}

// liquidationDays is (typeDuration/4 + heldCount/10) × severity multiplier, integer divisions first
func liquidationDays(s scenario.RiskScenario, positions []contracts.Position) int {
	held := 0
	for _, p := range positions {
		if p.HasPosition() {
			held++
		}
	}
	base := s.Type.Profile().DefaultStressDurationDays/4 + held/10
	mult := s.Severity.Profile().LiquidationMultiplier
	return int(decimal.NewFromInt(int64(base)).Mul(mult).IntPart())
}

// =============================================================================
// Monte Carlo
// =============================================================================

// RunMonteCarlo draws a single Gaussian GENERAL shock per run (σ = 0.10 × volatility multiplier)
// and applies it to every price. runs <= 0 uses the engine default.
func (e *Engine) RunMonteCarlo(ctx context.Context, s scenario.RiskScenario, positions []contracts.Position, prices contracts.PriceMap, runs int) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	initial, err := validateInputs(positions, prices)
	if err != nil {
		return nil, err
	}
	if runs <= 0 {
		runs = e.opts.Runs
	}

	sigma := shockStdDev
	if s.VolatilityMultiplier.Valid {
		sigma *= s.VolatilityMultiplier.Decimal.InexactFloat64()
	}

	sampler := risk.NewSampler(runs, e.opts.Seed, e.opts.Workers)
	values, err := risk.Sample(ctx, sampler, func(rng *rand.Rand) decimal.Decimal {
		shock := decimal.NewFromFloat(rng.NormFloat64() * sigma)
		return shockedValue(positions, prices, shock)
	})
	if err != nil {
		return nil, fmt.Errorf("monte carlo stress %s: %w", s.ID, err)
	}
	sort.Slice(values, func(i, j int) bool { return values[i].LessThan(values[j]) })

	n := len(values)
	idx95 := risk.TailIndex(0.95, n)
	idx99 := risk.TailIndex(0.99, n)

	r := e.newResult(s.ID, positions, initial)
	r.SimulationRuns = n
	r.ConfidenceLevel = stressConfidence
	r.StressedValue = risk.MeanDecimal(values)
	r.PortfolioLoss = initial.Sub(r.StressedValue)
	r.VaR95 = initial.Sub(values[idx95])
	r.VaR99 = initial.Sub(values[idx99])
	r.CVaR = expectedShortfall(values, initial, idx95)
	r.WorstCaseLoss = initial.Sub(values[0])
	r.ExpectedLoss = expectedLoss(values, initial)

	mdd := sortedPathDrawdown(values, initial)
	r.MaxDrawdown = decimal.NewNullDecimal(mdd)

	e.log.WithFields(map[string]interface{}{
		"test_id":     r.TestID,
		"scenario_id": s.ID,
		"runs":        n,
		"seed":        sampler.Seed,
		"var_99":      r.VaR99.StringFixed(2),
	}).Debug("monte carlo stress test completed")

	return r, nil
}

// shockedValue revalues held positions at price × (1 + shock), floored at zero
func shockedValue(positions []contracts.Position, prices contracts.PriceMap, shock decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(shock)
	total := decimal.Zero
	for _, p := range positions {
		if !p.HasPosition() {
			continue
		}
		price, ok := prices[p.InstrumentKey]
		if !ok {
			continue
		}
		shocked := price.Mul(factor)
		if shocked.IsNegative() {
			shocked = decimal.Zero
		}
		total = total.Add(p.CurrentValue(shocked))
	}
	return total
}

// expectedShortfall averages initial - value over the sorted tail [0, cutoff]
func expectedShortfall(sorted []decimal.Decimal, initial decimal.Decimal, cutoff int) decimal.Decimal {
	tail := make([]decimal.Decimal, 0, cutoff+1)
	for i := 0; i <= cutoff && i < len(sorted); i++ {
		tail = append(tail, initial.Sub(sorted[i]))
	}
	if len(tail) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, tail...).DivRound(decimal.NewFromInt(int64(len(tail))), 4)
}

// expectedLoss is the mean of strictly positive losses
func expectedLoss(values []decimal.Decimal, initial decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	count := 0
	for _, v := range values {
		if loss := initial.Sub(v); loss.IsPositive() {
			total = total.Add(loss)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(count)), 4)
}

// sortedPathDrawdown walks the value list as if it were a path starting from initial.
// Draws are i.i.d., so this is a tail-loss proxy rather than a true path drawdown.
func sortedPathDrawdown(values []decimal.Decimal, initial decimal.Decimal) decimal.Decimal {
	peak := initial
	maxDD := decimal.Zero
	for _, v := range values {
		if v.GreaterThan(peak) {
			peak = v
		}
		if peak.IsZero() {
			continue
		}
		if dd := peak.Sub(v).DivRound(peak, 4); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD
}

// =============================================================================
// Multi / comprehensive
// =============================================================================

// RunMulti runs RunSingle per scenario in order; the first failure aborts
func (e *Engine) RunMulti(scenarios []scenario.RiskScenario, positions []contracts.Position, prices contracts.PriceMap) ([]*Result, error) {
	results := make([]*Result, 0, len(scenarios))
	for _, s := range scenarios {
		r, err := e.RunSingle(s, positions, prices)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.ID, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// Comprehensive is a multi-scenario run with a per-scenario summary
type Comprehensive struct {
	Results               []*Result                  `json:"results"`
	ScenarioLosses        map[string]decimal.Decimal `json:"scenario_losses"`
	ScenarioProbabilities map[string]float64         `json:"scenario_probabilities"`
	Worst                 *Result                    `json:"worst"`
}

// ProbabilityWeightedLoss sums loss × probability across scenarios
func (c *Comprehensive) ProbabilityWeightedLoss() decimal.Decimal {
	total := decimal.Zero
	for id, loss := range c.ScenarioLosses {
		total = total.Add(loss.Mul(decimal.NewFromFloat(c.ScenarioProbabilities[id])))
	}
	return total.Round(2)
}

// RunComprehensive runs every scenario (the standard set when none are given) and
// records each loss and probability. Worst is the run with the largest loss.
func (e *Engine) RunComprehensive(scenarios []scenario.RiskScenario, positions []contracts.Position, prices contracts.PriceMap) (*Comprehensive, error) {
	if len(scenarios) == 0 {
		scenarios = scenario.StandardScenarios()
	}
	results, err := e.RunMulti(scenarios, positions, prices)
	if err != nil {
		return nil, err
	}

	out := &Comprehensive{
		Results:               results,
		ScenarioLosses:        make(map[string]decimal.Decimal, len(results)),
		ScenarioProbabilities: make(map[string]float64, len(results)),
	}
	for i, r := range results {
		out.ScenarioLosses[r.ScenarioID] = r.PortfolioLoss
		out.ScenarioProbabilities[r.ScenarioID] = scenarios[i].Probability.InexactFloat64()
		if out.Worst == nil || r.PortfolioLoss.GreaterThan(out.Worst.PortfolioLoss) {
			out.Worst = r
		}
	}
	for _, r := range results {
		r.ScenarioLosses = out.ScenarioLosses
		r.ScenarioProbabilities = out.ScenarioProbabilities
	}

	e.log.WithFields(map[string]interface{}{
		"scenarios":  len(results),
		"worst":      out.Worst.ScenarioID,
		"worst_loss": out.Worst.PortfolioLoss.StringFixed(2),
	}).Info("comprehensive stress test completed")

	return out, nil
}

// =============================================================================
// Historical replay
// =============================================================================

// RunHistorical revalues the portfolio at each index of the supplied price history.
// Series of unequal length are truncated to the shortest.
func (e *Engine) RunHistorical(s scenario.RiskScenario, positions []contracts.Position, prices contracts.PriceMap, history map[string][]decimal.Decimal) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	initial, err := validateInputs(positions, prices)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: price history is required", ErrInvalidInput)
	}

	length := -1
	for _, series := range history {
		if length < 0 || len(series) < length {
			length = len(series)
		}
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: price history is empty", ErrInvalidInput)
	}

	path := make([]decimal.Decimal, length)
	for i := 0; i < length; i++ {
		snapshot := make(contracts.PriceMap, len(history))
		for key, series := range history {
			snapshot[key] = series[i]
		}
		path[i] = risk.PortfolioValue(positions, snapshot)
	}

	sorted := make([]decimal.Decimal, length)
	copy(sorted, path)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	dd := e.calc.MaxDrawdown(path)

	r := e.newResult(s.ID, positions, initial)
	r.SimulationRuns = length
	r.StressedValue = path[length-1]
	r.PortfolioLoss = initial.Sub(r.StressedValue)
	r.WorstCaseLoss = initial.Sub(sorted[0])
	r.VaR95 = initial.Sub(sorted[risk.TailIndex(0.95, length)])
	r.VaR99 = initial.Sub(sorted[risk.TailIndex(0.99, length)])
	r.CVaR = expectedShortfall(sorted, initial, risk.TailIndex(0.95, length))
	r.MaxDrawdown = decimal.NewNullDecimal(dd.MaxDrawdown)
	r.DrawdownDuration = dd.Duration

	return r, nil
}

// =============================================================================
// Performance enrichment
// =============================================================================

// Performance carries return history for ratio metrics
type Performance struct {
	AssetReturns map[string][]decimal.Decimal // per instrument, aligned by period
	Benchmark    []decimal.Decimal            // optional
	RiskFree     decimal.Decimal              // per period
}

// AttachPerformance fills Sharpe, Sortino, information and diversification ratios
// from weighted per-asset returns. Leaves them unset with fewer than 2 periods.
func (e *Engine) AttachPerformance(r *Result, positions []contracts.Position, prices contracts.PriceMap, perf Performance) {
	weights := risk.PortfolioWeights(positions, prices)
	portfolio := weightedReturns(weights, perf.AssetReturns)
	if len(portfolio) < 2 {
		return
	}

	sharpe := e.calc.SharpeRatio(portfolio, perf.RiskFree)
	sortino := e.calc.SortinoRatio(portfolio, decimal.Zero)
	r.SharpeRatio = &sharpe
	r.SortinoRatio = &sortino

	if len(perf.Benchmark) >= 2 {
		ir := e.calc.InformationRatio(portfolio, perf.Benchmark)
		r.InformationRatio = &ir
	}

	if sigmaP := risk.StdDev(risk.Floats(portfolio)); sigmaP > 0 {
		var weighted float64
		for key, w := range weights {
			weighted += w.InexactFloat64() * risk.StdDev(risk.Floats(perf.AssetReturns[key]))
		}
		ratio := weighted / sigmaP
		r.DiversificationRatio = &ratio
	}
}

// weightedReturns combines asset returns by weight over the shortest common length
func weightedReturns(weights map[string]decimal.Decimal, assets map[string][]decimal.Decimal) []decimal.Decimal {
	length := -1
	for key := range weights {
		series, ok := assets[key]
		if !ok {
			continue
		}
		if length < 0 || len(series) < length {
			length = len(series)
		}
	}
	if length <= 0 {
		return nil
	}
	out := make([]decimal.Decimal, length)
	for i := range out {
		sum := decimal.Zero
		for key, w := range weights {
			if series, ok := assets[key]; ok {
				sum = sum.Add(series[i].Mul(w))
			}
		}
		out[i] = sum.Round(risk.RatioScale)
	}
	return out
}

// =============================================================================
// Helpers
// =============================================================================

func validateInputs(positions []contracts.Position, prices contracts.PriceMap) (decimal.Decimal, error) {
	if len(positions) == 0 {
		return decimal.Zero, fmt.Errorf("%w: positions are required", ErrInvalidInput)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("%w: prices are required", ErrInvalidInput)
	}
	initial := risk.PortfolioValue(positions, prices)
	if !initial.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: portfolio value must be > 0", ErrInvalidInput)
	}
	return initial, nil
}

func (e *Engine) newResult(scenarioID string, positions []contracts.Position, initial decimal.Decimal) *Result {
	now := e.now()
	return &Result{
		TestID:         NewTestID(now),
		ScenarioID:     scenarioID,
		PortfolioID:    positions[0].PortfolioID,
		ExecutedAt:     now,
		PortfolioValue: initial,
	}
}
