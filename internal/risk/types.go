package risk

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/contracts"
)

// =============================================================================
// Conventions
// =============================================================================

// TradingDaysPerYear scales annual inputs to the horizon
const TradingDaysPerYear = 252.0

// Decimal scales used for half-up rounding
const (
	RatioScale       = 6 // weights, returns, drawdowns
	SensitivityScale = 4 // delta, gamma
)

// ErrInvalidInput is wrapped by every validation failure of this package
var ErrInvalidInput = errors.New("invalid risk input")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// =============================================================================
// Inputs
// =============================================================================

// CorrelationMatrix maps asset -> asset -> correlation
type CorrelationMatrix map[string]map[string]float64

// Get returns the correlation of a and b when one is recorded under either key order
func (m CorrelationMatrix) Get(a, b string) (float64, bool) {
	if v, ok := m[a][b]; ok {
		return v, true
	}
	v, ok := m[b][a]
	return v, ok
}

// MarketInputs is the portfolio snapshot plus per-asset return assumptions.
// ExpectedReturns and Volatilities are annualized.
type MarketInputs struct {
	Positions       []contracts.Position
	Prices          contracts.PriceMap
	ExpectedReturns map[string]float64
	Volatilities    map[string]float64
	Correlations    CorrelationMatrix
}

func (in MarketInputs) validate() error {
	if len(in.Positions) == 0 {
		return invalid("positions are required")
	}
	if len(in.Prices) == 0 {
		return invalid("current prices are required")
	}
	if len(in.ExpectedReturns) == 0 {
		return invalid("expected returns are required")
	}
	if len(in.Volatilities) == 0 {
		return invalid("volatilities are required")
	}
	return nil
}

// assets returns the assets with an expected return, sorted for reproducible draws
func (in MarketInputs) assets() []string {
	out := make([]string, 0, len(in.ExpectedReturns))
	for k := range in.ExpectedReturns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Results
// =============================================================================

// Drawdown is the result of MaxDrawdown
type Drawdown struct {
	MaxDrawdown decimal.Decimal `json:"max_drawdown"` // fraction of peak
	Duration    int             `json:"duration"`     // EndIndex - StartIndex
	Recovered   bool            `json:"recovered"`    // last value >= value at StartIndex
	StartIndex  int             `json:"start_index"`
	EndIndex    int             `json:"end_index"`
}

// VaRResult pairs VaR and CVaR for one confidence level
type VaRResult struct {
	Confidence float64         `json:"confidence"`
	VaR        decimal.Decimal `json:"var"`  // loss, positive
	CVaR       decimal.Decimal `json:"cvar"` // loss, positive
}
