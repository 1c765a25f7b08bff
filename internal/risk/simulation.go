package risk

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinSimulationRuns is the smallest accepted NumberOfRuns
const MinSimulationRuns = 1000

// SimulationConfig describes a Monte Carlo path simulation
type SimulationConfig struct {
	PortfolioID     int64
	NumberOfRuns    int
	TimeHorizonDays int
	ConfidenceLevel float64 // 0 = 0.95
	Inputs          MarketInputs
	TrackAssetPaths bool
}

// Validate rejects configurations that cannot be simulated
func (cfg SimulationConfig) Validate() error {
	if cfg.PortfolioID <= 0 {
		return invalid("portfolio id must be > 0")
	}
	if cfg.NumberOfRuns < MinSimulationRuns {
		return invalid("number of runs must be >= %d, got %d", MinSimulationRuns, cfg.NumberOfRuns)
	}
	if cfg.TimeHorizonDays <= 0 {
		return invalid("time horizon must be > 0, got %d", cfg.TimeHorizonDays)
	}
	if cfg.ConfidenceLevel != 0 && (cfg.ConfidenceLevel <= 0 || cfg.ConfidenceLevel >= 1) {
		return invalid("confidence level must be in (0,1), got %v", cfg.ConfidenceLevel)
	}
	if err := cfg.Inputs.validate(); err != nil {
		return err
	}
	if !PortfolioValue(cfg.Inputs.Positions, cfg.Inputs.Prices).IsPositive() {
		return invalid("initial portfolio value must be > 0")
	}
	return nil
}

// SimulationStatistics is derived once a simulation has run
type SimulationStatistics struct {
	MeanFinalValue    decimal.Decimal  `json:"mean_final_value"`
	MedianFinalValue  decimal.Decimal  `json:"median_final_value"`
	StandardDeviation decimal.Decimal  `json:"standard_deviation"`
	Percentile5       decimal.Decimal  `json:"percentile_5"`
	Percentile95      decimal.Decimal  `json:"percentile_95"`
	Percentile99      decimal.Decimal  `json:"percentile_99"`
	VaR95             decimal.Decimal  `json:"var_95"`
	VaR99             decimal.Decimal  `json:"var_99"`
	ExpectedShortfall decimal.Decimal  `json:"expected_shortfall"`
	ProbabilityOfLoss float64          `json:"probability_of_loss"`
	WorstCase         decimal.Decimal  `json:"worst_case"`
	Returns           ReturnStatistics `json:"returns"`
	QualityScore      int              `json:"quality_score"`
}

// ReturnStatistics are moments of the simulated horizon returns
type ReturnStatistics struct {
	Mean              decimal.Decimal `json:"mean"`
	StandardDeviation decimal.Decimal `json:"standard_deviation"`
	Variance          decimal.Decimal `json:"variance"`
	Skewness          decimal.Decimal `json:"skewness"`
	Kurtosis          decimal.Decimal `json:"kurtosis"` // excess
}

// MonteCarloSimulation is one executed simulation, owned by the caller
type MonteCarloSimulation struct {
	ID           string           `json:"id"`
	Config       SimulationConfig `json:"-"`
	Seed         int64            `json:"seed"`
	Workers      int              `json:"workers"`
	CreatedAt    time.Time        `json:"created_at"`
	InitialValue decimal.Decimal  `json:"initial_value"`

	// Final portfolio value of every run, in run order
	FinalValues []decimal.Decimal `json:"-"`
	// Mean simulated price relative to today, per asset per day
	AssetPaths map[string][]decimal.Decimal `json:"asset_paths,omitempty"`

	Statistics SimulationStatistics `json:"statistics"`

	sorted []decimal.Decimal
}

// Simulate runs geometric Brownian motion paths for every asset and records the
// final portfolio value of each run
func (c *Calculator) Simulate(ctx context.Context, cfg SimulationConfig) (*MonteCarloSimulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConfidenceLevel == 0 {
		cfg.ConfidenceLevel = 0.95
	}

	in := cfg.Inputs
	initial := PortfolioValue(in.Positions, in.Prices)
	weights := PortfolioWeights(in.Positions, in.Prices)
	assets := in.assets()
	n := len(assets)
	days := cfg.TimeHorizonDays

	const dt = 1.0 / TradingDaysPerYear
	drift := make([]float64, n)
	diffusion := make([]float64, n)
	w := make([]float64, n)
	for i, a := range assets {
		mu, sigma := in.ExpectedReturns[a], in.Volatilities[a]
		drift[i] = (mu - 0.5*sigma*sigma) * dt
		diffusion[i] = sigma * math.Sqrt(dt)
		w[i] = weights[a].InexactFloat64()
	}

	corr := correlator{n: n}
	if c.opts.MonteCarlo == Cholesky {
		var ok bool
		if corr, ok = newCorrelator(assets, in.Correlations); !ok {
			c.log.Warn("correlation matrix is not positive definite; using independent draws")
		}
	}

	sampler := NewSampler(cfg.NumberOfRuns, c.opts.Seed, c.opts.Workers)
	finals := make([]float64, cfg.NumberOfRuns)
	var pathSums [][][]float64 // block -> asset -> day
	if cfg.TrackAssetPaths {
		pathSums = make([][][]float64, sampler.Blocks())
	}
	initialF := initial.InexactFloat64()

	err := sampler.ForEachBlock(ctx, func(ctx context.Context, block int, rng *rand.Rand, lo, hi int) error {
		rel := make([]float64, n)
		z := make([]float64, n)
		scratch := make([]float64, n)
		var sums [][]float64
		if cfg.TrackAssetPaths {
			sums = make([][]float64, n)
			for i := range sums {
				sums[i] = make([]float64, days)
			}
			pathSums[block] = sums
		}

		for run := lo; run < hi; run++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := range rel {
				rel[i] = 1
			}
			for d := 0; d < days; d++ {
				corr.draw(rng, z, scratch)
				for i := 0; i < n; i++ {
					rel[i] *= math.Exp(drift[i] + diffusion[i]*z[i])
					if sums != nil {
						sums[i][d] += rel[i]
					}
				}
			}
			var growth float64
			for i := 0; i < n; i++ {
				growth += w[i] * rel[i]
			}
			finals[run] = initialF * growth
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sim := &MonteCarloSimulation{
		ID:           uuid.NewString(),
		Config:       cfg,
		Seed:         sampler.Seed,
		Workers:      sampler.Workers,
		CreatedAt:    time.Now(),
		InitialValue: initial,
		FinalValues:  make([]decimal.Decimal, len(finals)),
	}
	for i, v := range finals {
		sim.FinalValues[i] = decimal.NewFromFloat(v).Round(RatioScale)
	}
	if cfg.TrackAssetPaths {
		sim.AssetPaths = mergePaths(assets, days, pathSums, cfg.NumberOfRuns)
	}
	sim.Statistics = sim.computeStatistics()
	return sim, nil
}

// mergePaths averages per-block sums in block order
func mergePaths(assets []string, days int, perBlock [][][]float64, runs int) map[string][]decimal.Decimal {
	out := make(map[string][]decimal.Decimal, len(assets))
	for i, a := range assets {
		path := make([]decimal.Decimal, days)
		for d := 0; d < days; d++ {
			var sum float64
			for _, sums := range perBlock {
				if sums != nil {
					sum += sums[i][d]
				}
			}
			path[d] = decimal.NewFromFloat(sum / float64(runs)).Round(RatioScale)
		}
		out[a] = path
	}
	return out
}

// =============================================================================
// Derived statistics
// =============================================================================

func (s *MonteCarloSimulation) sortedValues() []decimal.Decimal {
	if s.sorted == nil {
		s.sorted = sortedDecimals(s.FinalValues)
	}
	return s.sorted
}

// horizonReturns returns (final - initial)/initial at RatioScale, in run order
func (s *MonteCarloSimulation) horizonReturns() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.FinalValues))
	for i, v := range s.FinalValues {
		out[i] = SafeDiv(v.Sub(s.InitialValue), s.InitialValue, RatioScale)
	}
	return out
}

// VaR returns the loss at confidence as a positive amount; zero when the tail is a gain
func (s *MonteCarloSimulation) VaR(confidence float64) decimal.Decimal {
	if len(s.FinalValues) == 0 {
		return decimal.Zero
	}
	returns := sortedDecimals(s.horizonReturns())
	r := returns[TailIndex(confidence, len(returns))]
	return lossOf(r.Mul(s.InitialValue))
}

// ExpectedShortfall returns the mean tail loss at confidence as a positive amount
func (s *MonteCarloSimulation) ExpectedShortfall(confidence float64) decimal.Decimal {
	if len(s.FinalValues) == 0 {
		return decimal.Zero
	}
	returns := sortedDecimals(s.horizonReturns())
	cutoff := TailIndex(confidence, len(returns))
	sum := decimal.Sum(decimal.Zero, returns[:cutoff+1]...)
	avg := sum.DivRound(decimal.NewFromInt(int64(cutoff+1)), RatioScale)
	return lossOf(avg.Mul(s.InitialValue))
}

// ProbabilityOfLoss is the share of runs ending below the initial value
func (s *MonteCarloSimulation) ProbabilityOfLoss() float64 {
	return s.ProbabilityOfExceedingLoss(decimal.Zero)
}

// ProbabilityOfExceedingLoss is the share of runs losing more than threshold
func (s *MonteCarloSimulation) ProbabilityOfExceedingLoss(threshold decimal.Decimal) float64 {
	if len(s.FinalValues) == 0 {
		return 0
	}
	limit := s.InitialValue.Sub(threshold)
	var count int
	for _, v := range s.FinalValues {
		if v.LessThan(limit) {
			count++
		}
	}
	return float64(count) / float64(len(s.FinalValues))
}

// Percentile returns the final value at floor(p·n) of the ascending values; p in [0,1]
func (s *MonteCarloSimulation) Percentile(p float64) decimal.Decimal {
	sorted := s.sortedValues()
	if len(sorted) == 0 {
		return decimal.Zero
	}
	idx := int(math.Floor(p * float64(len(sorted))))
	if idx < 0 {
		idx = 0
	}
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ReturnStatistics computes moments of the horizon returns
func (s *MonteCarloSimulation) ReturnStatistics() ReturnStatistics {
	if len(s.FinalValues) == 0 {
		return ReturnStatistics{}
	}
	returns := s.horizonReturns()
	f := Floats(returns)
	sd := StdDev(f)
	return ReturnStatistics{
		Mean:              MeanDecimal(returns),
		StandardDeviation: decimal.NewFromFloat(sd).Round(RatioScale),
		Variance:          decimal.NewFromFloat(sd * sd).Round(RatioScale),
		Skewness:          decimal.NewFromFloat(Skewness(f)).Round(RatioScale),
		Kurtosis:          decimal.NewFromFloat(ExcessKurtosis(f)).Round(RatioScale),
	}
}

// IsConverged checks the coefficient of variation of the trailing min(1000, n/10) runs
func (s *MonteCarloSimulation) IsConverged(tolerance float64) bool {
	n := len(s.FinalValues)
	window := n / 10
	if window > 1000 {
		window = 1000
	}
	if window < 2 {
		return false
	}
	recent := Floats(s.FinalValues[n-window:])
	mean := Mean(recent)
	if mean == 0 {
		return false
	}
	return StdDev(recent)/mean < tolerance
}

// QualityScore rates the simulation 0..100: runs 30, convergence 25, horizon 20, data 25
func (s *MonteCarloSimulation) QualityScore() int {
	score := 0

	switch runs := s.Config.NumberOfRuns; {
	case runs >= 100000:
		score += 30
	case runs >= 50000:
		score += 25
	case runs >= 10000:
		score += 20
	case runs >= 5000:
		score += 15
	case runs >= 1000:
		score += 10
	}

	switch {
	case s.IsConverged(0.01):
		score += 25
	case s.IsConverged(0.05):
		score += 20
	case s.IsConverged(0.10):
		score += 15
	}

	switch h := s.Config.TimeHorizonDays; {
	case h >= 252:
		score += 20
	case h >= 126:
		score += 15
	case h >= 63:
		score += 10
	case h >= 21:
		score += 5
	}

	in := s.Config.Inputs
	if len(s.FinalValues) > 0 {
		score += 10
	}
	if len(in.ExpectedReturns) > 0 {
		score += 5
	}
	if len(in.Volatilities) > 0 {
		score += 5
	}
	if len(in.Correlations) > 0 {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

func (s *MonteCarloSimulation) computeStatistics() SimulationStatistics {
	sorted := s.sortedValues()
	if len(sorted) == 0 {
		return SimulationStatistics{}
	}
	f := Floats(sorted)

	return SimulationStatistics{
		MeanFinalValue:    MeanDecimal(s.FinalValues),
		MedianFinalValue:  decimal.NewFromFloat(Percentile(f, 50)).Round(RatioScale),
		StandardDeviation: decimal.NewFromFloat(StdDev(f)).Round(RatioScale),
		Percentile5:       s.Percentile(0.05),
		Percentile95:      s.Percentile(0.95),
		Percentile99:      s.Percentile(0.99),
		VaR95:             s.VaR(0.95),
		VaR99:             s.VaR(0.99),
		ExpectedShortfall: s.ExpectedShortfall(s.Config.ConfidenceLevel),
		ProbabilityOfLoss: s.ProbabilityOfLoss(),
		WorstCase:         lossOf(sorted[0].Sub(s.InitialValue)),
		Returns:           s.ReturnStatistics(),
		QualityScore:      s.QualityScore(),
	}
}

// lossOf turns a signed P&L into a positive loss, zero for gains
func lossOf(pnl decimal.Decimal) decimal.Decimal {
	if pnl.IsNegative() {
		return pnl.Neg()
	}
	return decimal.Zero
}
