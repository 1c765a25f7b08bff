package scenario

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SegmentGeneral is the market segment applied to every instrument
const SegmentGeneral = "GENERAL"

// ErrInvalidScenario is wrapped by every ValidationError
var ErrInvalidScenario = errors.New("invalid scenario")

// ValidationError names the offending field of a rejected scenario
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid scenario: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidScenario
}

// =============================================================================
// RiskScenario
// =============================================================================

// RiskScenario describes a hypothetical market shock.
// Values are read-only once built; constructors copy every map they receive.
type RiskScenario struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        Type     `json:"type"`
	Severity    Severity `json:"severity"`

	Probability decimal.Decimal `json:"probability"`

	// segment -> signed fractional shock (-0.20 = 20% drop)
	MarketShocks map[string]decimal.Decimal `json:"market_shocks,omitempty"`
	// asset pair -> additive correlation delta
	CorrelationBreakdown map[string]decimal.Decimal `json:"correlation_breakdown,omitempty"`

	VolatilityMultiplier decimal.NullDecimal `json:"volatility_multiplier"`
	LiquidityImpact      decimal.Decimal     `json:"liquidity_impact"`
	StressDurationDays   int                 `json:"stress_duration_days"`

	CreatedAt  time.Time  `json:"created_at"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	HistoricalStart       *time.Time `json:"historical_start,omitempty"`
	HistoricalEnd         *time.Time `json:"historical_end,omitempty"`
	HistoricalDescription string     `json:"historical_description,omitempty"`
}

// Params carries the inputs of New
type Params struct {
	ID                   string
	Name                 string
	Description          string
	Type                 Type
	Severity             Severity
	Probability          decimal.Decimal
	MarketShocks         map[string]decimal.Decimal
	CorrelationBreakdown map[string]decimal.Decimal
	VolatilityMultiplier decimal.NullDecimal
	LiquidityImpact      decimal.Decimal
	StressDurationDays   int
	CreatedAt            time.Time
	ValidUntil           *time.Time

	HistoricalStart       *time.Time
	HistoricalEnd         *time.Time
	HistoricalDescription string
}

// New builds a validated scenario from p
func New(p Params) (RiskScenario, error) {
	s := build(p)
	if err := s.Validate(); err != nil {
		return RiskScenario{}, err
	}
	return s, nil
}

func build(p Params) RiskScenario {
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return RiskScenario{
		ID:                    p.ID,
		Name:                  p.Name,
		Description:           p.Description,
		Type:                  p.Type,
		Severity:              p.Severity,
		Probability:           p.Probability,
		MarketShocks:          copyDecimals(p.MarketShocks),
		CorrelationBreakdown:  copyDecimals(p.CorrelationBreakdown),
		VolatilityMultiplier:  p.VolatilityMultiplier,
		LiquidityImpact:       p.LiquidityImpact,
		StressDurationDays:    p.StressDurationDays,
		CreatedAt:             created,
		ValidUntil:            copyTime(p.ValidUntil),
		HistoricalStart:       copyTime(p.HistoricalStart),
		HistoricalEnd:         copyTime(p.HistoricalEnd),
		HistoricalDescription: p.HistoricalDescription,
	}
}

// Validate rejects scenarios that cannot be applied
func (s RiskScenario) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Message: "required"}
	}
	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "required"}
	}
	if s.Type == "" {
		return &ValidationError{Field: "type", Message: "required"}
	}
	if !s.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", s.Type)}
	}
	if s.Severity == "" {
		return &ValidationError{Field: "severity", Message: "required"}
	}
	if !s.Severity.Valid() {
		return &ValidationError{Field: "severity", Message: fmt.Sprintf("unknown severity %q", s.Severity)}
	}
	if s.Probability.IsNegative() || s.Probability.GreaterThan(decimal.NewFromInt(1)) {
		return &ValidationError{Field: "probability", Message: fmt.Sprintf("must be within [0,1], got %s", s.Probability)}
	}
	if s.StressDurationDays <= 0 {
		return &ValidationError{Field: "stress_duration_days", Message: fmt.Sprintf("must be positive, got %d", s.StressDurationDays)}
	}
	if s.VolatilityMultiplier.Valid && s.VolatilityMultiplier.Decimal.IsNegative() {
		return &ValidationError{Field: "volatility_multiplier", Message: "must be >= 0"}
	}
	if s.LiquidityImpact.IsNegative() {
		return &ValidationError{Field: "liquidity_impact", Message: "must be >= 0"}
	}
	return nil
}

// =============================================================================
// Shock application
// =============================================================================

// Shock returns the market shock for segment
func (s RiskScenario) Shock(segment string) (decimal.Decimal, bool) {
	v, ok := s.MarketShocks[segment]
	return v, ok
}

// ApplyMarketShock returns price × (1 + shock[segment]); identity when segment is absent
func (s RiskScenario) ApplyMarketShock(segment string, price decimal.Decimal) decimal.Decimal {
	shock, ok := s.MarketShocks[segment]
	if !ok {
		return price
	}
	return price.Mul(decimal.NewFromInt(1).Add(shock))
}

// ApplyVolatilityShock scales vol by the multiplier; identity when none is set
func (s RiskScenario) ApplyVolatilityShock(vol decimal.Decimal) decimal.Decimal {
	if !s.VolatilityMultiplier.Valid {
		return vol
	}
	return vol.Mul(s.VolatilityMultiplier.Decimal)
}

// ApplyCorrelationShock adds the breakdown delta for pairKey; identity when absent
func (s RiskScenario) ApplyCorrelationShock(pairKey string, correlation decimal.Decimal) decimal.Decimal {
	delta, ok := s.CorrelationBreakdown[pairKey]
	if !ok {
		return correlation
	}
	return correlation.Add(delta)
}

// CalculateLiquidityImpact returns volume × liquidityImpact
func (s RiskScenario) CalculateLiquidityImpact(volume decimal.Decimal) decimal.Decimal {
	return volume.Mul(s.LiquidityImpact)
}

// =============================================================================
// Classification
// =============================================================================

// IsExpired reports whether ValidUntil has passed
func (s RiskScenario) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether ValidUntil lies before now
func (s RiskScenario) IsExpiredAt(now time.Time) bool {
	return s.ValidUntil != nil && s.ValidUntil.Before(now)
}

// HasHistoricalReference reports whether a historical window is attached
func (s RiskScenario) HasHistoricalReference() bool {
	return s.HistoricalStart != nil && s.HistoricalEnd != nil
}

// IntensityScore blends severity, volatility multiplier and duration into 0..100
func (s RiskScenario) IntensityScore() int {
	score := float64(s.Severity.Profile().Score)

	if s.VolatilityMultiplier.Valid {
		vm := s.VolatilityMultiplier.Decimal.InexactFloat64()
		score += math.Min((vm-1)*50, 20)
	}

	score += math.Min(float64(s.StressDurationDays)/30*10, 10)

	return int(math.Min(math.Round(score), 100))
}

// MitigationStrategies returns the fixed strategy list of the scenario type
func (s RiskScenario) MitigationStrategies() []string {
	return append([]string(nil), s.Type.Profile().MitigationStrategies...)
}

// RecommendedActions returns the fixed action list of the severity
func (s RiskScenario) RecommendedActions() []string {
	return append([]string(nil), s.Severity.Profile().RecommendedActions...)
}

// Segments returns the shocked segments in sorted order
func (s RiskScenario) Segments() []string {
	out := make([]string, 0, len(s.MarketShocks))
	for k := range s.MarketShocks {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copyDecimals(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	if in == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
