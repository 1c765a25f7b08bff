package scenario

import (
	"math"

	"github.com/shopspring/decimal"
)

// Severity classifies how hard a scenario hits the portfolio
type Severity string

const (
	SeverityMild         Severity = "MILD"
	SeverityModerate     Severity = "MODERATE"
	SeveritySevere       Severity = "SEVERE"
	SeverityExtreme      Severity = "EXTREME"
	SeverityCatastrophic Severity = "CATASTROPHIC"
)

// SeverityProfile holds the constants attached to a severity
type SeverityProfile struct {
	DisplayName string
	// Impact range in sigmas
	MinImpact float64
	MaxImpact float64

	RecommendedConfidence float64
	MonitoringMinutes     int
	AlertThreshold        float64
	Score                 int
	MinBacktestDays       int
	// Scales the liquidation-time estimate of a stress test
	LiquidationMultiplier decimal.Decimal
	RecommendedActions    []string
}

var severityTable = map[Severity]SeverityProfile{
	SeverityMild: {
		DisplayName:           "Mild",
		MinImpact:             1.0,
		MaxImpact:             2.0,
		RecommendedConfidence: 0.90,
		MonitoringMinutes:     60,
		AlertThreshold:        0.05,
		Score:                 20,
		MinBacktestDays:       90,
		LiquidationMultiplier: decimal.NewFromFloat(0.5),
		RecommendedActions: []string{
			"Maintain routine monitoring",
			"Rebalance on schedule",
		},
	},
	SeverityModerate: {
		DisplayName:           "Moderate",
		MinImpact:             2.0,
		MaxImpact:             3.5,
		RecommendedConfidence: 0.95,
		MonitoringMinutes:     30,
		AlertThreshold:        0.03,
		Score:                 40,
		MinBacktestDays:       180,
		LiquidationMultiplier: decimal.NewFromInt(1),
		RecommendedActions: []string{
			"Tighten risk monitoring",
			"Review position sizes",
			"Review hedge ratios",
		},
	},
	SeveritySevere: {
		DisplayName:           "Severe",
		MinImpact:             3.5,
		MaxImpact:             5.0,
		RecommendedConfidence: 0.99,
		MonitoringMinutes:     15,
		AlertThreshold:        0.02,
		Score:                 60,
		MinBacktestDays:       365,
		LiquidationMultiplier: decimal.NewFromFloat(1.5),
		RecommendedActions: []string{
			"Consider reducing positions",
			"Increase defensive assets",
			"Tighten stop-loss levels",
			"Secure liquidity",
		},
	},
	SeverityExtreme: {
		DisplayName:           "Extreme",
		MinImpact:             5.0,
		MaxImpact:             8.0,
		RecommendedConfidence: 0.995,
		MonitoringMinutes:     5,
		AlertThreshold:        0.01,
		Score:                 80,
		MinBacktestDays:       730,
		LiquidationMultiplier: decimal.NewFromInt(2),
		RecommendedActions: []string{
			"Cut positions substantially",
			"Expand hedge positions substantially",
			"Raise cash allocation",
			"Reset risk limits",
		},
	},
	SeverityCatastrophic: {
		DisplayName:           "Catastrophic",
		MinImpact:             8.0,
		MaxImpact:             math.Inf(1),
		RecommendedConfidence: 0.999,
		MonitoringMinutes:     1,
		AlertThreshold:        0.005,
		Score:                 100,
		MinBacktestDays:       1825,
		LiquidationMultiplier: decimal.NewFromInt(3),
		RecommendedActions: []string{
			"Full portfolio review",
			"Convene emergency risk committee",
			"Close all non-core positions",
			"Activate crisis playbook",
		},
	},
}

// Severities lists every severity from mildest to worst
var Severities = []Severity{
	SeverityMild, SeverityModerate, SeveritySevere, SeverityExtreme, SeverityCatastrophic,
}

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	_, ok := severityTable[s]
	return ok
}

// Profile returns the constants for s; the zero profile for unknown values
func (s Severity) Profile() SeverityProfile {
	return severityTable[s]
}

// SeverityForImpact returns the severity whose sigma range contains impact.
// Impacts below the mildest range map to MILD.
func SeverityForImpact(impact float64) Severity {
	for _, s := range Severities {
		p := severityTable[s]
		if impact >= p.MinImpact && impact < p.MaxImpact {
			return s
		}
	}
	return SeverityMild
}
