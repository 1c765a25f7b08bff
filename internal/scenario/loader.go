package scenario

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// File is the YAML scenario catalog document
type File struct {
	Scenarios []Spec `yaml:"scenarios" json:"scenarios"`
}

// Spec is one scenario entry of a YAML catalog
type Spec struct {
	ID                   string             `yaml:"id" json:"id"`
	Name                 string             `yaml:"name" json:"name"`
	Description          string             `yaml:"description" json:"description"`
	Type                 string             `yaml:"type" json:"type"`
	Severity             string             `yaml:"severity" json:"severity"`
	Probability          *float64           `yaml:"probability" json:"probability"`                     // default: type's typical probability
	MarketShocks         map[string]float64 `yaml:"market_shocks" json:"market_shocks"`
	CorrelationBreakdown map[string]float64 `yaml:"correlation_breakdown" json:"correlation_breakdown"`
	VolatilityMultiplier *float64           `yaml:"volatility_multiplier" json:"volatility_multiplier"` // nil = no volatility overlay
	LiquidityImpact      *float64           `yaml:"liquidity_impact" json:"liquidity_impact"`           // default 0.10
	StressDurationDays   int                `yaml:"stress_duration_days" json:"stress_duration_days"`   // default: type's duration
	ValidDays            int                `yaml:"valid_days" json:"valid_days"`                       // 0 = never expires
	Historical           *HistoricalSpec    `yaml:"historical" json:"historical"`
}

// HistoricalSpec is the optional reference window of a Spec
type HistoricalSpec struct {
	Start       string `yaml:"start" json:"start"` // YYYY-MM-DD
	End         string `yaml:"end" json:"end"`
	Description string `yaml:"description" json:"description"`
}

// LoadFile reads a YAML catalog and returns its validated scenarios plus content hash.
// Unknown fields fail the load.
func LoadFile(path string) ([]RiskScenario, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document
func Parse(data []byte) ([]RiskScenario, string, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, "", fmt.Errorf("decode scenario file: %w", err)
	}

	hash, err := Hash(&f)
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	out := make([]RiskScenario, 0, len(f.Scenarios))
	seen := make(map[string]struct{}, len(f.Scenarios))
	for i, spec := range f.Scenarios {
		s, err := spec.toScenario(now)
		if err != nil {
			return nil, hash, fmt.Errorf("scenarios[%d]: %w", i, err)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, hash, fmt.Errorf("scenarios[%d]: duplicate id %q: %w", i, s.ID, ErrInvalidScenario)
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out, hash, nil
}

// Hash returns the SHA-256 of the canonical JSON form of f
func Hash(f *File) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (s Spec) toScenario(now time.Time) (RiskScenario, error) {
	t := Type(s.Type)
	profile := t.Profile()

	p := Params{
		ID:                   s.ID,
		Name:                 s.Name,
		Description:          s.Description,
		Type:                 t,
		Severity:             Severity(s.Severity),
		Probability:          profile.TypicalProbability,
		MarketShocks:         toDecimals(s.MarketShocks),
		CorrelationBreakdown: toDecimals(s.CorrelationBreakdown),
		LiquidityImpact:      DefaultCustomLiquidityImpact,
		StressDurationDays:   s.StressDurationDays,
		CreatedAt:            now,
	}
	if p.ID == "" {
		p.ID = NewID("CUSTOM")
	}
	if s.Probability != nil {
		p.Probability = decimal.NewFromFloat(*s.Probability)
	}
	if s.VolatilityMultiplier != nil {
		p.VolatilityMultiplier = decimal.NewNullDecimal(decimal.NewFromFloat(*s.VolatilityMultiplier))
	}
	if s.LiquidityImpact != nil {
		p.LiquidityImpact = decimal.NewFromFloat(*s.LiquidityImpact)
	}
	if p.StressDurationDays == 0 {
		p.StressDurationDays = profile.DefaultStressDurationDays
	}
	if s.ValidDays > 0 {
		p.ValidUntil = validFor(now.AddDate(0, 0, s.ValidDays), 0, 0)
	}
	if h := s.Historical; h != nil {
		start, err := time.Parse(time.DateOnly, h.Start)
		if err != nil {
			return RiskScenario{}, &ValidationError{Field: "historical.start", Message: err.Error()}
		}
		end, err := time.Parse(time.DateOnly, h.End)
		if err != nil {
			return RiskScenario{}, &ValidationError{Field: "historical.end", Message: err.Error()}
		}
		if end.Before(start) {
			return RiskScenario{}, &ValidationError{Field: "historical.end", Message: "before start"}
		}
		p.HistoricalStart, p.HistoricalEnd = &start, &end
		p.HistoricalDescription = h.Description
	}

	return New(p)
}

func toDecimals(in map[string]float64) map[string]decimal.Decimal {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = decimal.NewFromFloat(v)
	}
	return out
}
