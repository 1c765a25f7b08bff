package stress

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel buckets the overall risk score
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "VERY_LOW"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// Result is the output of one stress run, owned by the caller.
// Optional metrics are nil (or invalid NullDecimal) when the run did not produce them.
type Result struct {
	TestID          string    `json:"test_id"`
	ScenarioID      string    `json:"scenario_id"`
	PortfolioID     int64     `json:"portfolio_id"`
	ExecutedAt      time.Time `json:"executed_at"`
	SimulationRuns  int       `json:"simulation_runs"`
	ConfidenceLevel float64   `json:"confidence_level,omitempty"`

	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	StressedValue  decimal.Decimal `json:"stressed_value"`
	PortfolioLoss  decimal.Decimal `json:"portfolio_loss"`

	WorstCaseLoss    decimal.Decimal     `json:"worst_case_loss"`
	ExpectedLoss     decimal.Decimal     `json:"expected_loss"`
	VaR95            decimal.Decimal     `json:"var_95"`
	VaR99            decimal.Decimal     `json:"var_99"`
	CVaR             decimal.Decimal     `json:"cvar"`
	MaxDrawdown      decimal.NullDecimal `json:"max_drawdown"`
	DrawdownDuration int                 `json:"drawdown_duration"`

	ScenarioLosses        map[string]decimal.Decimal `json:"scenario_losses,omitempty"`
	ScenarioProbabilities map[string]float64         `json:"scenario_probabilities,omitempty"`

	AssetContributions map[string]decimal.Decimal `json:"asset_contributions,omitempty"`
	DeltaSensitivity   map[string]decimal.Decimal `json:"delta_sensitivity,omitempty"`
	GammaSensitivity   map[string]decimal.Decimal `json:"gamma_sensitivity,omitempty"`
	// Linear positions carry no vega or theta; set by option-aware callers
	VegaSensitivity  map[string]decimal.Decimal `json:"vega_sensitivity,omitempty"`
	ThetaSensitivity map[string]decimal.Decimal `json:"theta_sensitivity,omitempty"`

	SharpeRatio      *float64 `json:"sharpe_ratio,omitempty"`
	SortinoRatio     *float64 `json:"sortino_ratio,omitempty"`
	InformationRatio *float64 `json:"information_ratio,omitempty"`

	ConcentrationRisk    *float64 `json:"concentration_risk,omitempty"` // HHI
	DiversificationRatio *float64 `json:"diversification_ratio,omitempty"`
	EffectiveAssetCount  int      `json:"effective_asset_count,omitempty"`

	LiquidationCost      decimal.NullDecimal `json:"liquidation_cost"`
	LiquidationTimeframe *int                `json:"liquidation_timeframe,omitempty"` // days
}

// Validate checks identity fields and optional ranges
func (r *Result) Validate() error {
	switch {
	case r.TestID == "":
		return fmt.Errorf("%w: test id is required", ErrInvalidInput)
	case r.ScenarioID == "":
		return fmt.Errorf("%w: scenario id is required", ErrInvalidInput)
	case r.PortfolioID <= 0:
		return fmt.Errorf("%w: portfolio id must be > 0", ErrInvalidInput)
	case r.SimulationRuns < 0:
		return fmt.Errorf("%w: simulation runs must be > 0", ErrInvalidInput)
	case r.ConfidenceLevel < 0 || r.ConfidenceLevel >= 1:
		return fmt.Errorf("%w: confidence level must be in (0,1)", ErrInvalidInput)
	}
	return nil
}

// =============================================================================
// Scoring
// =============================================================================

// OverallRiskScore blends VaR 30%, drawdown 25%, concentration 20%, liquidity 15%
// and inverse Sharpe 10% over the metrics present, 0..100
func (r *Result) OverallRiskScore() int {
	var score, weightSum float64
	pv := r.PortfolioValue
	hasValue := pv.IsPositive()

	if hasValue {
		ratio := r.VaR99.Abs().DivRound(pv, 4).InexactFloat64()
		score += math.Min(ratio*1000, 100) * 0.30
		weightSum += 0.30
	}
	if r.MaxDrawdown.Valid {
		score += math.Min(r.MaxDrawdown.Decimal.Abs().InexactFloat64()*100, 100) * 0.25
		weightSum += 0.25
	}
	if r.ConcentrationRisk != nil {
		score += math.Min(*r.ConcentrationRisk*100, 100) * 0.20
		weightSum += 0.20
	}
	if r.LiquidationCost.Valid && hasValue {
		ratio := r.LiquidationCost.Decimal.DivRound(pv, 4).InexactFloat64()
		score += math.Min(ratio*500, 100) * 0.15
		weightSum += 0.15
	}
	if r.SharpeRatio != nil && *r.SharpeRatio > 0 {
		score += math.Max(0, 100-*r.SharpeRatio*20) * 0.10
		weightSum += 0.10
	}

	if weightSum == 0 {
		return 0
	}
	return int(math.Min(math.Round(score/weightSum), 100))
}

// RiskLevel buckets OverallRiskScore at 20/40/60/80
func (r *Result) RiskLevel() RiskLevel {
	switch score := r.OverallRiskScore(); {
	case score >= 80:
		return RiskVeryHigh
	case score >= 60:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	case score >= 20:
		return RiskLow
	}
	return RiskVeryLow
}

// ExceedsRiskLimit reports |VaR99| > limit
func (r *Result) ExceedsRiskLimit(limit decimal.Decimal) bool {
	return r.VaR99.Abs().GreaterThan(limit)
}

// Contribution is one instrument's share of the stress loss
type Contribution struct {
	InstrumentKey string          `json:"instrument_key"`
	Loss          decimal.Decimal `json:"loss"`
}

// TopLossContributors returns the n largest asset contributions, largest first
func (r *Result) TopLossContributors(n int) []Contribution {
	out := make([]Contribution, 0, len(r.AssetContributions))
	for k, v := range r.AssetContributions {
		out = append(out, Contribution{InstrumentKey: k, Loss: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Loss.Cmp(out[j].Loss); c != 0 {
			return c > 0
		}
		return out[i].InstrumentKey < out[j].InstrumentKey
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// DiversificationBenefit is max(0, (ratio - 1) × 100)
func (r *Result) DiversificationBenefit() float64 {
	if r.DiversificationRatio == nil {
		return 0
	}
	return math.Max(0, (*r.DiversificationRatio-1.0)*100)
}

// ExpectedLiquidationTime stretches the timeframe for concentrated portfolios.
// math.MaxInt when no timeframe was estimated.
func (r *Result) ExpectedLiquidationTime() int {
	if r.LiquidationTimeframe == nil {
		return math.MaxInt
	}
	if r.ConcentrationRisk != nil && *r.ConcentrationRisk > 0.5 {
		return int(float64(*r.LiquidationTimeframe) * (1 + *r.ConcentrationRisk))
	}
	return *r.LiquidationTimeframe
}

// RecommendedActions lists actions keyed on score, concentration and liquidation time
func (r *Result) RecommendedActions() []string {
	var actions []string

	switch score := r.OverallRiskScore(); {
	case score >= 80:
		actions = append(actions,
			"Review immediate position reduction",
			"Strengthen hedging strategy",
			"Increase cash allocation")
	case score >= 60:
		actions = append(actions,
			"Tighten risk monitoring",
			"Consider portfolio rebalancing",
			"Increase defensive asset weight")
	case score >= 40:
		actions = append(actions,
			"Schedule periodic risk review",
			"Check diversification level")
	}

	if r.ConcentrationRisk != nil && *r.ConcentrationRisk > 0.3 {
		actions = append(actions,
			"Reduce portfolio concentration",
			"Diversify into additional asset classes")
	}
	if r.LiquidationTimeframe != nil && *r.LiquidationTimeframe > 30 {
		actions = append(actions,
			"Increase weight of liquid assets",
			"Rotate into higher-volume instruments")
	}
	return actions
}
