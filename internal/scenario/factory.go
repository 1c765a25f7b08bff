package scenario

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewID returns prefix + "_" + 8 hex characters
func NewID(prefix string) string {
	return strings.TrimSuffix(prefix, "_") + "_" + uuid.NewString()[:8]
}

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func vm(v float64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromFloat(v)) }

func date(y int, m time.Month, day, hh, mm int) *time.Time {
	t := time.Date(y, m, day, hh, mm, 0, 0, time.UTC)
	return &t
}

func validFor(now time.Time, years, months int) *time.Time {
	t := now.AddDate(years, months, 0)
	return &t
}

// =============================================================================
// Standard catalog
// =============================================================================

// FinancialCrisis2008 replays the 2008 subprime crisis
func FinancialCrisis2008() RiskScenario {
	now := time.Now()
	return build(Params{
		ID:          NewID("CRISIS_2008"),
		Name:        "2008 Financial Crisis",
		Description: "Global financial crisis triggered by the subprime mortgage collapse",
		Type:        TypeSystemicRisk,
		Severity:    SeverityExtreme,
		Probability: d(0.02),
		MarketShocks: map[string]decimal.Decimal{
			SegmentGeneral: d(-0.40),
			"FINANCIAL":    d(-0.60),
			"REAL_ESTATE":  d(-0.50),
			"COMMODITIES":  d(-0.30),
		},
		CorrelationBreakdown: map[string]decimal.Decimal{
			"STOCK_BOND":     d(-0.3),
			"GLOBAL_MARKETS": d(0.5),
		},
		VolatilityMultiplier:  vm(4.0),
		LiquidityImpact:       d(0.15),
		StressDurationDays:    540,
		CreatedAt:             now,
		ValidUntil:            validFor(now, 1, 0),
		HistoricalStart:       date(2007, time.July, 1, 0, 0),
		HistoricalEnd:         date(2009, time.March, 1, 0, 0),
		HistoricalDescription: "From the start of the subprime collapse to the market bottom",
	})
}

// Covid19Pandemic replays the 2020 pandemic lockdown sell-off
func Covid19Pandemic() RiskScenario {
	now := time.Now()
	return build(Params{
		ID:          NewID("COVID19"),
		Name:        "COVID-19 Pandemic",
		Description: "Global economic lockdown caused by the COVID-19 pandemic",
		Type:        TypeBlackSwan,
		Severity:    SeveritySevere,
		Probability: d(0.01),
		MarketShocks: map[string]decimal.Decimal{
			SegmentGeneral: d(-0.35),
			"TRAVEL":       d(-0.70),
			"HOSPITALITY":  d(-0.65),
			"TECH":         d(0.20),
			"HEALTHCARE":   d(0.15),
		},
		CorrelationBreakdown: map[string]decimal.Decimal{
			"SECTOR_CORRELATION": d(-0.4),
		},
		VolatilityMultiplier:  vm(3.5),
		LiquidityImpact:       d(0.12),
		StressDurationDays:    90,
		CreatedAt:             now,
		ValidUntil:            validFor(now, 1, 0),
		HistoricalStart:       date(2020, time.February, 1, 0, 0),
		HistoricalEnd:         date(2020, time.May, 1, 0, 0),
		HistoricalDescription: "Spread of COVID-19 and global lockdowns",
	})
}

// BlackMonday replays the October 19, 1987 crash
func BlackMonday() RiskScenario {
	now := time.Now()
	return build(Params{
		ID:          NewID("BLACK_MONDAY"),
		Name:        "Black Monday 1987",
		Description: "Single-day equity market crash of October 19, 1987",
		Type:        TypeMarketCrash,
		Severity:    SeverityExtreme,
		Probability: d(0.005),
		MarketShocks: map[string]decimal.Decimal{
			SegmentGeneral:  d(-0.22),
			"US_STOCKS":     d(-0.23),
			"GLOBAL_STOCKS": d(-0.25),
		},
		CorrelationBreakdown: map[string]decimal.Decimal{
			"GLOBAL_CORRELATION": d(0.7),
		},
		VolatilityMultiplier:  vm(8.0),
		LiquidityImpact:       d(0.25),
		StressDurationDays:    1,
		CreatedAt:             now,
		ValidUntil:            validFor(now, 1, 0),
		HistoricalStart:       date(1987, time.October, 19, 0, 0),
		HistoricalEnd:         date(1987, time.October, 19, 23, 59),
		HistoricalDescription: "Program trading and evaporating liquidity",
	})
}

// LiquidityCrisis models a sudden loss of market liquidity
func LiquidityCrisis() RiskScenario {
	now := time.Now()
	return build(Params{
		ID:          NewID("LIQUIDITY_CRISIS"),
		Name:        "Liquidity Crisis",
		Description: "Sharp drop in market liquidity with trading halts",
		Type:        TypeLiquidityCrisis,
		Severity:    SeveritySevere,
		Probability: d(0.08),
		MarketShocks: map[string]decimal.Decimal{
			SegmentGeneral: d(-0.15),
			"SMALL_CAP":    d(-0.25),
			"EMERGING":     d(-0.30),
		},
		CorrelationBreakdown: map[string]decimal.Decimal{
			"SIZE_FACTOR": d(0.3),
		},
		VolatilityMultiplier: vm(2.5),
		LiquidityImpact:      d(0.35),
		StressDurationDays:   60,
		CreatedAt:            now,
		ValidUntil:           validFor(now, 0, 6),
	})
}

// InterestRateShock models an abrupt policy-driven rate rise
func InterestRateShock() RiskScenario {
	now := time.Now()
	return build(Params{
		ID:          NewID("RATE_SHOCK"),
		Name:        "Interest Rate Shock",
		Description: "Abrupt rate rise following a central bank policy shift",
		Type:        TypeInterestRateShock,
		Severity:    SeverityModerate,
		Probability: d(0.15),
		MarketShocks: map[string]decimal.Decimal{
			SegmentGeneral:  d(-0.10),
			"GROWTH_STOCKS": d(-0.20),
			"REIT":          d(-0.15),
			"BONDS":         d(-0.08),
			"FINANCIALS":    d(0.05),
		},
		VolatilityMultiplier: vm(2.2),
		LiquidityImpact:      d(0.08),
		StressDurationDays:   120,
		CreatedAt:            now,
		ValidUntil:           validFor(now, 0, 12),
	})
}

// CorrelationBreakdown models a regime change in cross-asset correlations
func CorrelationBreakdown() RiskScenario {
	now := time.Now()
	return build(Params{
		ID:          NewID("CORRELATION_BREAKDOWN"),
		Name:        "Correlation Breakdown",
		Description: "Traditional cross-asset correlations shift abruptly",
		Type:        TypeCorrelationBreakdown,
		Severity:    SeverityModerate,
		Probability: d(0.12),
		MarketShocks: map[string]decimal.Decimal{
			SegmentGeneral: d(-0.05),
		},
		CorrelationBreakdown: map[string]decimal.Decimal{
			"STOCK_BOND":  d(0.6),
			"COMMODITIES": d(-0.4),
			"CURRENCIES":  d(0.5),
			"SECTORS":     d(-0.3),
		},
		VolatilityMultiplier: vm(2.0),
		LiquidityImpact:      d(0.10),
		StressDurationDays:   90,
		CreatedAt:            now,
		ValidUntil:           validFor(now, 0, 9),
	})
}

// GeopoliticalCrisis models conflict and trade-dispute driven stress
func GeopoliticalCrisis() RiskScenario {
	now := time.Now()
	return build(Params{
		ID:          NewID("GEOPOLITICAL"),
		Name:        "Geopolitical Crisis",
		Description: "Market turmoil from geopolitical conflict and trade disputes",
		Type:        TypeBlackSwan,
		Severity:    SeveritySevere,
		Probability: d(0.06),
		MarketShocks: map[string]decimal.Decimal{
			SegmentGeneral: d(-0.18),
			"DEFENSE":      d(0.10),
			"ENERGY":       d(0.25),
			"AIRLINES":     d(-0.30),
			"EXPORT_HEAVY": d(-0.25),
		},
		CorrelationBreakdown: map[string]decimal.Decimal{
			"REGIONAL_CORRELATION": d(-0.2),
		},
		VolatilityMultiplier: vm(3.0),
		LiquidityImpact:      d(0.15),
		StressDurationDays:   180,
		CreatedAt:            now,
		ValidUntil:           validFor(now, 0, 18),
	})
}

// TechBubbleBurst models a collapse of overvalued technology stocks
func TechBubbleBurst() RiskScenario {
	now := time.Now()
	return build(Params{
		ID:          NewID("TECH_BUBBLE"),
		Name:        "Tech Bubble Burst",
		Description: "Collapse of excessive technology valuations",
		Type:        TypeMarketCrash,
		Severity:    SeveritySevere,
		Probability: d(0.10),
		MarketShocks: map[string]decimal.Decimal{
			SegmentGeneral: d(-0.25),
			"TECH":         d(-0.45),
			"GROWTH":       d(-0.35),
			"VALUE":        d(-0.10),
			"CRYPTO":       d(-0.60),
		},
		CorrelationBreakdown: map[string]decimal.Decimal{
			"GROWTH_VALUE": d(-0.3),
		},
		VolatilityMultiplier: vm(3.5),
		LiquidityImpact:      d(0.20),
		StressDurationDays:   365,
		CreatedAt:            now,
		ValidUntil:           validFor(now, 2, 0),
	})
}

// StandardScenarios returns a fresh copy of the eight standard scenarios
func StandardScenarios() []RiskScenario {
	return []RiskScenario{
		FinancialCrisis2008(),
		Covid19Pandemic(),
		BlackMonday(),
		LiquidityCrisis(),
		InterestRateShock(),
		CorrelationBreakdown(),
		GeopoliticalCrisis(),
		TechBubbleBurst(),
	}
}

// =============================================================================
// Custom scenarios
// =============================================================================

// CustomParams carries user-supplied inputs of NewCustomScenario
type CustomParams struct {
	Name         string
	Description  string
	Type         Type
	Severity     Severity
	MarketShocks map[string]decimal.Decimal

	// Optional; the type's defaults apply when unset
	VolatilityMultiplier decimal.NullDecimal
	StressDurationDays   int
}

// DefaultCustomLiquidityImpact is the liquidity impact of custom scenarios
var DefaultCustomLiquidityImpact = decimal.NewFromFloat(0.10)

// NewCustomScenario builds a validated CUSTOM_ scenario valid for one year
func NewCustomScenario(c CustomParams) (RiskScenario, error) {
	profile := c.Type.Profile()

	volatility := c.VolatilityMultiplier
	if !volatility.Valid && c.Type.Valid() {
		volatility = decimal.NewNullDecimal(profile.DefaultVolatilityMultiplier)
	}
	duration := c.StressDurationDays
	if duration <= 0 && c.Type.Valid() {
		duration = profile.DefaultStressDurationDays
	}

	now := time.Now()
	return New(Params{
		ID:                   NewID("CUSTOM"),
		Name:                 c.Name,
		Description:          c.Description,
		Type:                 c.Type,
		Severity:             c.Severity,
		Probability:          profile.TypicalProbability,
		MarketShocks:         c.MarketShocks,
		VolatilityMultiplier: volatility,
		LiquidityImpact:      DefaultCustomLiquidityImpact,
		StressDurationDays:   duration,
		CreatedAt:            now,
		ValidUntil:           validFor(now, 1, 0),
	})
}
