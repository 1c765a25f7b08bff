package scenario

import "github.com/shopspring/decimal"

// Type is the family a scenario belongs to
type Type string

const (
	TypeBlackSwan            Type = "BLACK_SWAN"
	TypeMarketCrash          Type = "MARKET_CRASH"
	TypeCorrelationBreakdown Type = "CORRELATION_BREAKDOWN"
	TypeLiquidityCrisis      Type = "LIQUIDITY_CRISIS"
	TypeSystemicRisk         Type = "SYSTEMIC_RISK"
	TypeInterestRateShock    Type = "INTEREST_RATE_SHOCK"
)

// TypeProfile holds the defaults attached to a scenario type
type TypeProfile struct {
	DisplayName                 string
	TypicalProbability          decimal.Decimal
	AnalysisPeriodDays          int
	DefaultVolatilityMultiplier decimal.Decimal
	DefaultStressDurationDays   int
	MitigationStrategies        []string
}

var typeTable = map[Type]TypeProfile{
	TypeBlackSwan: {
		DisplayName:                 "Black swan",
		TypicalProbability:          decimal.NewFromFloat(0.01),
		AnalysisPeriodDays:          1825,
		DefaultVolatilityMultiplier: decimal.NewFromInt(5),
		DefaultStressDurationDays:   30,
		MitigationStrategies: []string{
			"Broaden portfolio diversification",
			"Increase hedge positions",
			"Raise cash allocation",
			"Monitor tail-risk indicators",
		},
	},
	TypeMarketCrash: {
		DisplayName:                 "Market crash",
		TypicalProbability:          decimal.NewFromFloat(0.05),
		AnalysisPeriodDays:          1095,
		DefaultVolatilityMultiplier: decimal.NewFromInt(3),
		DefaultStressDurationDays:   180,
		MitigationStrategies: []string{
			"Increase defensive asset weight",
			"Run beta-neutral strategies",
			"Hedge volatility",
			"Secure liquidity",
		},
	},
	TypeCorrelationBreakdown: {
		DisplayName:                 "Correlation breakdown",
		TypicalProbability:          decimal.NewFromFloat(0.15),
		AnalysisPeriodDays:          365,
		DefaultVolatilityMultiplier: decimal.NewFromInt(2),
		DefaultStressDurationDays:   90,
		MitigationStrategies: []string{
			"Diversify across asset classes",
			"Consider alternative investments",
			"Hedge dynamically",
			"Apply risk-parity allocation",
		},
	},
	TypeLiquidityCrisis: {
		DisplayName:                 "Liquidity crisis",
		TypicalProbability:          decimal.NewFromFloat(0.10),
		AnalysisPeriodDays:          180,
		DefaultVolatilityMultiplier: decimal.NewFromFloat(2.5),
		DefaultStressDurationDays:   60,
		MitigationStrategies: []string{
			"Hold a liquidity buffer",
			"Reduce trade sizes",
			"Split order execution",
			"Route to alternative venues",
		},
	},
	TypeSystemicRisk: {
		DisplayName:                 "Systemic risk",
		TypicalProbability:          decimal.NewFromFloat(0.08),
		AnalysisPeriodDays:          1095,
		DefaultVolatilityMultiplier: decimal.NewFromInt(4),
		DefaultStressDurationDays:   365,
		MitigationStrategies: []string{
			"Hedge systemic exposure",
			"Manage counterparty risk",
			"Track regulatory changes",
			"Plan against named scenarios",
		},
	},
	TypeInterestRateShock: {
		DisplayName:                 "Interest rate shock",
		TypicalProbability:          decimal.NewFromFloat(0.20),
		AnalysisPeriodDays:          730,
		DefaultVolatilityMultiplier: decimal.NewFromFloat(2.2),
		DefaultStressDurationDays:   120,
		MitigationStrategies: []string{
			"Adjust duration",
			"Hedge interest rates",
			"Add floating-rate assets",
			"Add inflation protection",
		},
	},
}

// Types lists every scenario type
var Types = []Type{
	TypeBlackSwan, TypeMarketCrash, TypeCorrelationBreakdown,
	TypeLiquidityCrisis, TypeSystemicRisk, TypeInterestRateShock,
}

// Valid reports whether t is a known scenario type
func (t Type) Valid() bool {
	_, ok := typeTable[t]
	return ok
}

// Profile returns the defaults for t; the zero profile for unknown values
func (t Type) Profile() TypeProfile {
	return typeTable[t]
}
