package risk

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-risk/internal/contracts"
)

func TestEstimateInputs(t *testing.T) {
	positions := []contracts.Position{
		{InstrumentKey: "A", Quantity: decimal.NewFromInt(10)},
		{InstrumentKey: "B", Quantity: decimal.NewFromInt(20)},
		{InstrumentKey: "C", Quantity: decimal.NewFromInt(5)},
	}
	prices := contracts.PriceMap{"A": decimal.NewFromInt(99), "B": decimal.NewFromFloat(49.5), "C": decimal.NewFromInt(10)}
	history := map[string][]decimal.Decimal{
		"A": decs(100, 110, 99),
		"B": decs(40, 50, 55, 49.5),
		"C": decs(10),
	}

	in := EstimateInputs(positions, prices, history)

	require.Len(t, in.ExpectedReturns, 2)
	assert.NotContains(t, in.Volatilities, "C")
	assert.InDelta(t, 0, in.ExpectedReturns["A"], 1e-9)
	assert.InDelta(t, math.Sqrt(0.02)*math.Sqrt(TradingDaysPerYear), in.Volatilities["A"], 1e-9)

	rho, ok := in.Correlations.Get("A", "B")
	require.True(t, ok)
	assert.InDelta(t, 1.0, rho, 1e-9)

	// the estimate feeds the simulation directly
	_, err := NewCalculator(DefaultOptions(), nil).Simulate(context.Background(), SimulationConfig{
		PortfolioID:     1,
		NumberOfRuns:    MinSimulationRuns,
		TimeHorizonDays: 5,
		Inputs:          in,
	})
	assert.NoError(t, err)
}
