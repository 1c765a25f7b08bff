package risk

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/contracts"
)

// EstimateInputs derives annualized expected returns, volatilities and pairwise
// correlations from daily closing prices (oldest first). Instruments with fewer
// than two prices are left out; pairs are correlated over their common tail.
func EstimateInputs(positions []contracts.Position, prices contracts.PriceMap, history map[string][]decimal.Decimal) MarketInputs {
	in := MarketInputs{
		Positions:       positions,
		Prices:          prices,
		ExpectedReturns: make(map[string]float64),
		Volatilities:    make(map[string]float64),
		Correlations:    make(CorrelationMatrix),
	}

	returns := make(map[string][]float64)
	for _, key := range contracts.InstrumentKeys(positions) {
		r := Floats(Returns(history[key]))
		if len(r) == 0 {
			continue
		}
		returns[key] = r
		in.ExpectedReturns[key] = Mean(r) * TradingDaysPerYear
		in.Volatilities[key] = StdDev(r) * math.Sqrt(TradingDaysPerYear)
	}

	keys := make([]string, 0, len(returns))
	for k := range returns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, a := range keys {
		for _, b := range keys[i+1:] {
			x, y := tail(returns[a], returns[b])
			rho := PearsonCorrelation(x, y)
			if in.Correlations[a] == nil {
				in.Correlations[a] = make(map[string]float64)
			}
			in.Correlations[a][b] = rho
		}
	}

	return in
}

// tail trims the longer series so both end on the same observation
func tail(x, y []float64) ([]float64, []float64) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	return x[len(x)-n:], y[len(y)-n:]
}
