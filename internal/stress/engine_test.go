package stress

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/scenario"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func crash20(t *testing.T) scenario.RiskScenario {
	t.Helper()
	s, err := scenario.New(scenario.Params{
		ID:                 "CRASH_20",
		Name:               "Twenty percent crash",
		Type:               scenario.TypeMarketCrash,
		Severity:           scenario.SeveritySevere,
		Probability:        d(0.05),
		MarketShocks:       map[string]decimal.Decimal{scenario.SegmentGeneral: d(-0.20)},
		LiquidityImpact:    d(0.10),
		StressDurationDays: 30,
	})
	require.NoError(t, err)
	return s
}

func onePosition() ([]contracts.Position, contracts.PriceMap) {
	positions := []contracts.Position{
		{PortfolioID: 7, InstrumentKey: "A", Quantity: decimal.NewFromInt(100)},
	}
	return positions, contracts.PriceMap{"A": decimal.NewFromInt(100)}
}

func newTestEngine(seed int64) *Engine {
	e := NewEngine(nil, Options{Runs: 5000, Seed: seed, Workers: 4}, nil)
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return e
}

func TestRunSingle_TwentyPercentShock(t *testing.T) {
	e := newTestEngine(1)
	positions, prices := onePosition()
	// held but unpriced: contributes nothing
	positions = append(positions, contracts.Position{PortfolioID: 7, InstrumentKey: "B", Quantity: decimal.NewFromInt(10)})

	r, err := e.RunSingle(crash20(t), positions, prices)
	require.NoError(t, err)

	assert.Regexp(t, `^ST_1700000000000_[0-9a-f]{8}$`, r.TestID)
	assert.Equal(t, int64(7), r.PortfolioID)
	assert.Equal(t, "CRASH_20", r.ScenarioID)
	assert.Equal(t, 1, r.SimulationRuns)
	assert.Equal(t, 0.99, r.ConfidenceLevel)

	assert.True(t, r.PortfolioValue.Equal(decimal.NewFromInt(10000)))
	assert.True(t, r.StressedValue.Equal(decimal.NewFromInt(8000)))
	for _, v := range []decimal.Decimal{r.PortfolioLoss, r.WorstCaseLoss, r.ExpectedLoss, r.VaR95, r.VaR99, r.CVaR} {
		assert.True(t, v.Equal(decimal.NewFromInt(2000)), "got %s", v)
	}

	assert.True(t, r.AssetContributions["A"].Equal(decimal.NewFromInt(2000)))
	assert.True(t, r.AssetContributions["B"].IsZero())
	assert.True(t, r.DeltaSensitivity["A"].Equal(decimal.NewFromInt(100)))
	assert.True(t, r.GammaSensitivity["A"].IsZero())

	require.NotNil(t, r.ConcentrationRisk)
	assert.InDelta(t, 1.0, *r.ConcentrationRisk, 1e-9)
	assert.Equal(t, 1, r.EffectiveAssetCount)

	// (180/4 + 2/10) × 1.5
	require.NotNil(t, r.LiquidationTimeframe)
	assert.Equal(t, 67, *r.LiquidationTimeframe)
	require.True(t, r.LiquidationCost.Valid)
	assert.True(t, r.LiquidationCost.Decimal.Equal(decimal.NewFromInt(800)))

	require.NoError(t, r.Validate())
}

func TestRunSingle_VolatilityOverlayFloorsAtZero(t *testing.T) {
	e := newTestEngine(1)
	positions, prices := onePosition()

	s := crash20(t)
	s.VolatilityMultiplier = decimal.NewNullDecimal(d(2))
	r, err := e.RunSingle(s, positions, prices)
	require.NoError(t, err)
	// 100 × 0.8 - 100 × 0.1 × 2 = 60
	assert.True(t, r.StressedValue.Equal(decimal.NewFromInt(6000)))

	s.VolatilityMultiplier = decimal.NewNullDecimal(d(10))
	r, err = e.RunSingle(s, positions, prices)
	require.NoError(t, err)
	assert.True(t, r.StressedValue.IsZero())
	assert.True(t, r.PortfolioLoss.Equal(decimal.NewFromInt(10000)))
}

func TestRunSingle_Concentration(t *testing.T) {
	e := newTestEngine(1)
	positions := []contracts.Position{
		{PortfolioID: 1, InstrumentKey: "A", Quantity: decimal.NewFromInt(10)},
		{PortfolioID: 1, InstrumentKey: "B", Quantity: decimal.NewFromInt(10)},
		{PortfolioID: 1, InstrumentKey: "C", Quantity: decimal.NewFromInt(10)},
		{PortfolioID: 1, InstrumentKey: "D", Quantity: decimal.NewFromInt(10)},
	}
	prices := contracts.PriceMap{"A": d(50), "B": d(50), "C": d(50), "D": d(50)}

	r, err := e.RunSingle(crash20(t), positions, prices)
	require.NoError(t, err)
	require.NotNil(t, r.ConcentrationRisk)
	assert.InDelta(t, 0.25, *r.ConcentrationRisk, 1e-9)
	assert.Equal(t, 4, r.EffectiveAssetCount)
}

func TestRunSingle_InvalidInputs(t *testing.T) {
	e := newTestEngine(1)
	positions, prices := onePosition()

	_, err := e.RunSingle(crash20(t), nil, prices)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.RunSingle(crash20(t), positions, contracts.PriceMap{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.RunSingle(crash20(t), positions, contracts.PriceMap{"A": decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidInput)

	bad := crash20(t)
	bad.StressDurationDays = 0
	_, err = e.RunSingle(bad, positions, prices)
	assert.ErrorIs(t, err, scenario.ErrInvalidScenario)
}

func TestRunMonteCarlo_Ordering(t *testing.T) {
	e := newTestEngine(42)
	positions, prices := onePosition()

	r, err := e.RunMonteCarlo(context.Background(), crash20(t), positions, prices, 0)
	require.NoError(t, err)

	assert.Equal(t, 5000, r.SimulationRuns)
	assert.Equal(t, 0.95, r.ConfidenceLevel)
	assert.True(t, r.VaR99.GreaterThanOrEqual(r.VaR95))
	assert.True(t, r.CVaR.GreaterThanOrEqual(r.VaR95))
	assert.True(t, r.WorstCaseLoss.GreaterThanOrEqual(r.VaR99))
	assert.True(t, r.ExpectedLoss.IsPositive())
	require.True(t, r.MaxDrawdown.Valid)
	assert.False(t, r.MaxDrawdown.Decimal.IsNegative())

	// σ = 10%: the 95% loss sits near 1.645σ of 10,000
	assert.InDelta(t, 1645, r.VaR95.InexactFloat64(), 150)
}

func TestRunMonteCarlo_Reproducible(t *testing.T) {
	positions, prices := onePosition()
	s := crash20(t)

	a, err := newTestEngine(7).RunMonteCarlo(context.Background(), s, positions, prices, 2000)
	require.NoError(t, err)
	b, err := newTestEngine(7).RunMonteCarlo(context.Background(), s, positions, prices, 2000)
	require.NoError(t, err)

	assert.True(t, a.VaR99.Equal(b.VaR99))
	assert.True(t, a.CVaR.Equal(b.CVaR))
	assert.True(t, a.ExpectedLoss.Equal(b.ExpectedLoss))
	assert.Equal(t, 2000, a.SimulationRuns)
}

func TestRunMonteCarlo_Cancelled(t *testing.T) {
	positions, prices := onePosition()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(1).RunMonteCarlo(ctx, crash20(t), positions, prices, 100)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunMulti(t *testing.T) {
	e := newTestEngine(1)
	positions, prices := onePosition()

	results, err := e.RunMulti([]scenario.RiskScenario{crash20(t), scenario.FinancialCrisis2008()}, positions, prices)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "CRASH_20", results[0].ScenarioID)
	assert.True(t, results[1].PortfolioLoss.GreaterThan(results[0].PortfolioLoss))

	bad := crash20(t)
	bad.Name = ""
	_, err = e.RunMulti([]scenario.RiskScenario{crash20(t), bad}, positions, prices)
	assert.ErrorIs(t, err, scenario.ErrInvalidScenario)
}

func TestRunComprehensive_StandardSet(t *testing.T) {
	e := newTestEngine(1)
	positions, prices := onePosition()

	c, err := e.RunComprehensive(nil, positions, prices)
	require.NoError(t, err)
	require.Len(t, c.Results, len(scenario.StandardScenarios()))
	assert.Len(t, c.ScenarioLosses, len(c.Results))
	assert.Len(t, c.ScenarioProbabilities, len(c.Results))

	require.NotNil(t, c.Worst)
	for _, r := range c.Results {
		assert.True(t, c.Worst.PortfolioLoss.GreaterThanOrEqual(r.PortfolioLoss))
		assert.Equal(t, c.ScenarioLosses, r.ScenarioLosses)
	}
	assert.True(t, c.ProbabilityWeightedLoss().IsPositive())
}

func TestRunHistorical(t *testing.T) {
	e := newTestEngine(1)
	positions, prices := onePosition()
	history := map[string][]decimal.Decimal{
		"A": {d(100), d(110), d(90), d(95)},
		"B": {d(1), d(1), d(1)}, // shortest series bounds the replay
	}

	r, err := e.RunHistorical(crash20(t), positions, prices, history)
	require.NoError(t, err)

	assert.Equal(t, 3, r.SimulationRuns)
	assert.True(t, r.WorstCaseLoss.Equal(decimal.NewFromInt(1000)))
	assert.True(t, r.VaR95.Equal(decimal.NewFromInt(1000)))
	assert.True(t, r.VaR99.Equal(decimal.NewFromInt(1000)))
	assert.True(t, r.StressedValue.Equal(decimal.NewFromInt(9000)))
	require.True(t, r.MaxDrawdown.Valid)
	assert.True(t, r.MaxDrawdown.Decimal.Equal(d(0.181818)))
	assert.Equal(t, 1, r.DrawdownDuration)
}

func TestRunHistorical_EmptyHistory(t *testing.T) {
	e := newTestEngine(1)
	positions, prices := onePosition()

	_, err := e.RunHistorical(crash20(t), positions, prices, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.RunHistorical(crash20(t), positions, prices, map[string][]decimal.Decimal{"A": {}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAttachPerformance(t *testing.T) {
	e := newTestEngine(1)
	positions, prices := onePosition()
	r := &Result{}

	e.AttachPerformance(r, positions, prices, Performance{
		AssetReturns: map[string][]decimal.Decimal{"A": {d(0.01), d(0.02), d(-0.01), d(0.03)}},
		Benchmark:    []decimal.Decimal{d(0.0), d(0.01), d(0.0), d(0.01)},
	})

	require.NotNil(t, r.SharpeRatio)
	require.NotNil(t, r.SortinoRatio)
	require.NotNil(t, r.InformationRatio)
	require.NotNil(t, r.DiversificationRatio)
	// a single asset has no diversification
	assert.InDelta(t, 1.0, *r.DiversificationRatio, 1e-9)
	assert.InDelta(t, 0.0, r.DiversificationBenefit(), 1e-6)

	empty := &Result{}
	e.AttachPerformance(empty, positions, prices, Performance{})
	assert.Nil(t, empty.SharpeRatio)
}
