package risk

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-risk/internal/contracts"
)

func twoAssets() MarketInputs {
	return MarketInputs{
		Positions: []contracts.Position{
			{InstrumentKey: "A", Quantity: decimal.NewFromInt(100)},
			{InstrumentKey: "B", Quantity: decimal.NewFromInt(200)},
		},
		Prices:          contracts.PriceMap{"A": decimal.NewFromInt(100), "B": decimal.NewFromInt(50)},
		ExpectedReturns: map[string]float64{"A": 0.08, "B": 0.05},
		Volatilities:    map[string]float64{"A": 0.25, "B": 0.15},
		Correlations:    CorrelationMatrix{"A": {"B": 0.3}, "B": {"A": 0.3}},
	}
}

func TestSampler_CoversEveryRunOnce(t *testing.T) {
	s := NewSampler(10_001, 1, 7)
	var count int64
	seen := make([]int32, s.Runs)

	err := s.ForEachBlock(context.Background(), func(_ context.Context, _ int, _ *rand.Rand, lo, hi int) error {
		for i := lo; i < hi; i++ {
			atomic.AddInt32(&seen[i], 1)
			atomic.AddInt64(&count, 1)
		}
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 10_001, count)
	for i, n := range seen {
		require.EqualValues(t, 1, n, "run %d", i)
	}
}

func TestSample_ReproducibleForSeed(t *testing.T) {
	draw := func(rng *rand.Rand) float64 { return rng.NormFloat64() }

	a, err := Sample(context.Background(), NewSampler(5000, 42, 4), draw)
	require.NoError(t, err)
	b, err := Sample(context.Background(), NewSampler(5000, 42, 4), draw)
	require.NoError(t, err)
	c, err := Sample(context.Background(), NewSampler(5000, 43, 4), draw)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSample_IndependentOfWorkerCount(t *testing.T) {
	draw := func(rng *rand.Rand) float64 { return rng.NormFloat64() }

	one, err := Sample(context.Background(), NewSampler(10_001, 42, 1), draw)
	require.NoError(t, err)
	eight, err := Sample(context.Background(), NewSampler(10_001, 42, 8), draw)
	require.NoError(t, err)

	assert.Equal(t, one, eight)
}

func TestSampler_Blocks(t *testing.T) {
	assert.Equal(t, 0, Sampler{Runs: 0}.Blocks())
	assert.Equal(t, 1, Sampler{Runs: SampleBlockSize}.Blocks())
	assert.Equal(t, 2, Sampler{Runs: SampleBlockSize + 1}.Blocks())
	// workers are capped at the block count
	assert.Equal(t, 2, NewSampler(SampleBlockSize+1, 1, 16).Workers)
}

func TestSample_Errors(t *testing.T) {
	draw := func(rng *rand.Rand) int { return rng.Int() }

	_, err := Sample(context.Background(), Sampler{Runs: 0, Seed: 1, Workers: 1}, draw)
	assert.ErrorIs(t, err, ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Sample(ctx, NewSampler(100, 1, 2), draw)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSampler_Defaults(t *testing.T) {
	s := NewSampler(3, 0, 0)
	assert.NotZero(t, s.Seed)
	assert.LessOrEqual(t, s.Workers, 3)
	assert.Positive(t, s.Workers)
}

func TestMonteCarloVaR_Reproducible(t *testing.T) {
	opts := Options{Seed: 2024, Workers: 4}
	ctx := context.Background()

	first, err := NewCalculator(opts, nil).MonteCarloVaR(ctx, twoAssets(), 0.99, 100_000, 10)
	require.NoError(t, err)
	second, err := NewCalculator(opts, nil).MonteCarloVaR(ctx, twoAssets(), 0.99, 100_000, 10)
	require.NoError(t, err)

	assert.True(t, first.Equal(second), "%s != %s", first, second)
	assert.True(t, first.IsPositive())

	var95, err := NewCalculator(opts, nil).MonteCarloVaR(ctx, twoAssets(), 0.95, 100_000, 10)
	require.NoError(t, err)
	assert.True(t, first.GreaterThanOrEqual(var95))
}

func TestMonteCarloVaR_SameSeedAnyWorkerCount(t *testing.T) {
	ctx := context.Background()

	one, err := NewCalculator(Options{Seed: 2024, Workers: 1}, nil).MonteCarloVaR(ctx, twoAssets(), 0.99, 100_000, 10)
	require.NoError(t, err)
	for _, workers := range []int{2, 4, 8} {
		got, err := NewCalculator(Options{Seed: 2024, Workers: workers}, nil).MonteCarloVaR(ctx, twoAssets(), 0.99, 100_000, 10)
		require.NoError(t, err)
		assert.True(t, one.Equal(got), "workers %d: %s != %s", workers, got, one)
	}
}

func TestMonteCarloVaR_Cholesky(t *testing.T) {
	ctx := context.Background()
	c := NewCalculator(Options{MonteCarlo: Cholesky, Seed: 9, Workers: 2}, nil)

	v, err := c.MonteCarloVaR(ctx, twoAssets(), 0.99, 20_000, 10)
	require.NoError(t, err)
	assert.True(t, v.IsPositive())

	// not positive definite: falls back to independent draws
	in := twoAssets()
	in.Correlations = CorrelationMatrix{"A": {"B": 1.5}}
	fallback, err := c.MonteCarloVaR(ctx, in, 0.99, 20_000, 10)
	require.NoError(t, err)

	independent, err := NewCalculator(Options{Seed: 9, Workers: 2}, nil).MonteCarloVaR(ctx, in, 0.99, 20_000, 10)
	require.NoError(t, err)
	assert.True(t, fallback.Equal(independent))
}

func TestMonteCarloVaR_Validation(t *testing.T) {
	c := NewCalculator(DefaultOptions(), nil)

	_, err := c.MonteCarloVaR(context.Background(), twoAssets(), 0.99, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in := twoAssets()
	in.ExpectedReturns = nil
	_, err = c.MonteCarloVaR(context.Background(), in, 0.99, 1000, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPearsonCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.0, PearsonCorrelation(x, []float64{2, 4, 6, 8, 10}), 1e-12)
	assert.InDelta(t, -1.0, PearsonCorrelation(x, []float64{5, 4, 3, 2, 1}), 1e-12)
	assert.Zero(t, PearsonCorrelation(x, []float64{1, 1, 1, 1, 1}))
	assert.Zero(t, PearsonCorrelation(x, []float64{1, 2}))
	assert.InDelta(t, 0.8, PearsonCorrelation(x, []float64{2, 1, 4, 3, 5}), 1e-12)
	assert.Zero(t, PearsonCorrelation([]float64{2, 2, 2}, []float64{1, 2, 3}))
}
