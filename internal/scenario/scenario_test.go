package scenario

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() Params {
	return Params{
		ID:                 "TEST_1",
		Name:               "test",
		Type:               TypeMarketCrash,
		Severity:           SeverityModerate,
		Probability:        decimal.NewFromFloat(0.1),
		MarketShocks:       map[string]decimal.Decimal{SegmentGeneral: decimal.NewFromFloat(-0.2)},
		StressDurationDays: 30,
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(p *Params)
		field string
	}{
		{"missing id", func(p *Params) { p.ID = "" }, "id"},
		{"missing name", func(p *Params) { p.Name = "" }, "name"},
		{"missing type", func(p *Params) { p.Type = "" }, "type"},
		{"unknown type", func(p *Params) { p.Type = "METEOR" }, "type"},
		{"missing severity", func(p *Params) { p.Severity = "" }, "severity"},
		{"probability above one", func(p *Params) { p.Probability = decimal.NewFromFloat(1.5) }, "probability"},
		{"negative probability", func(p *Params) { p.Probability = decimal.NewFromFloat(-0.1) }, "probability"},
		{"zero duration", func(p *Params) { p.StressDurationDays = 0 }, "stress_duration_days"},
		{"negative duration", func(p *Params) { p.StressDurationDays = -5 }, "stress_duration_days"},
		{"negative volatility", func(p *Params) {
			p.VolatilityMultiplier = decimal.NewNullDecimal(decimal.NewFromInt(-1))
		}, "volatility_multiplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mod(&p)

			_, err := New(p)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidScenario)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidate_BoundaryProbabilities(t *testing.T) {
	for _, prob := range []float64{0, 1} {
		p := validParams()
		p.Probability = decimal.NewFromFloat(prob)
		_, err := New(p)
		assert.NoError(t, err)
	}
}

func TestNew_CopiesMaps(t *testing.T) {
	p := validParams()
	s, err := New(p)
	require.NoError(t, err)

	p.MarketShocks[SegmentGeneral] = decimal.NewFromFloat(-0.9)
	shock, ok := s.Shock(SegmentGeneral)
	require.True(t, ok)
	assert.True(t, shock.Equal(decimal.NewFromFloat(-0.2)))
}

func TestApplyMarketShock(t *testing.T) {
	s, err := New(validParams())
	require.NoError(t, err)

	price := decimal.NewFromInt(100)
	assert.True(t, s.ApplyMarketShock(SegmentGeneral, price).Equal(decimal.NewFromInt(80)))
	assert.True(t, s.ApplyMarketShock("TECH", price).Equal(price), "absent segment is identity")
}

func TestApplyVolatilityAndCorrelationShock(t *testing.T) {
	p := validParams()
	p.CorrelationBreakdown = map[string]decimal.Decimal{"STOCK_BOND": decimal.NewFromFloat(-0.3)}
	s, err := New(p)
	require.NoError(t, err)

	vol := decimal.NewFromFloat(0.2)
	assert.True(t, s.ApplyVolatilityShock(vol).Equal(vol), "no multiplier is identity")

	corr := decimal.NewFromFloat(0.5)
	assert.True(t, s.ApplyCorrelationShock("STOCK_BOND", corr).Equal(decimal.NewFromFloat(0.2)))
	assert.True(t, s.ApplyCorrelationShock("FX", corr).Equal(corr))

	p.VolatilityMultiplier = decimal.NewNullDecimal(decimal.NewFromInt(3))
	s, err = New(p)
	require.NoError(t, err)
	assert.True(t, s.ApplyVolatilityShock(vol).Equal(decimal.NewFromFloat(0.6)))
}

func TestCalculateLiquidityImpact(t *testing.T) {
	p := validParams()
	p.LiquidityImpact = decimal.NewFromFloat(0.15)
	s, err := New(p)
	require.NoError(t, err)

	assert.True(t, s.CalculateLiquidityImpact(decimal.NewFromInt(1000)).Equal(decimal.NewFromInt(150)))
}

func TestIsExpiredAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := validParams()

	s, err := New(p)
	require.NoError(t, err)
	assert.False(t, s.IsExpiredAt(now), "no validity window never expires")

	past := now.Add(-time.Hour)
	p.ValidUntil = &past
	s, err = New(p)
	require.NoError(t, err)
	assert.True(t, s.IsExpiredAt(now))

	future := now.Add(time.Hour)
	p.ValidUntil = &future
	s, err = New(p)
	require.NoError(t, err)
	assert.False(t, s.IsExpiredAt(now))
}

func TestIntensityScore(t *testing.T) {
	tests := []struct {
		name     string
		severity Severity
		vm       *float64
		days     int
		want     int
	}{
		{"mild without multiplier", SeverityMild, nil, 15, 25},
		{"moderate capped components", SeverityModerate, ptr(3.0), 365, 70},
		{"partial multiplier", SeveritySevere, ptr(1.2), 30, 80},
		{"capped at 100", SeverityCatastrophic, ptr(5.0), 90, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			p.Severity = tt.severity
			p.StressDurationDays = tt.days
			if tt.vm != nil {
				p.VolatilityMultiplier = decimal.NewNullDecimal(decimal.NewFromFloat(*tt.vm))
			}
			s, err := New(p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.IntensityScore())
		})
	}
}

func TestLookupTables(t *testing.T) {
	for _, typ := range Types {
		assert.True(t, typ.Valid())
		assert.Len(t, typ.Profile().MitigationStrategies, 4, typ)
	}
	for _, sev := range Severities {
		assert.True(t, sev.Valid())
		assert.NotEmpty(t, sev.Profile().RecommendedActions, sev)
	}

	assert.Equal(t, 20, SeverityMild.Profile().Score)
	assert.Equal(t, 100, SeverityCatastrophic.Profile().Score)
	assert.True(t, SeverityCatastrophic.Profile().LiquidationMultiplier.Equal(decimal.NewFromInt(3)))
	assert.False(t, Severity("NOPE").Valid())

	assert.Equal(t, SeverityMild, SeverityForImpact(0.5))
	assert.Equal(t, SeveritySevere, SeverityForImpact(4))
	assert.Equal(t, SeverityCatastrophic, SeverityForImpact(12))
}

func TestMitigationStrategies_ReturnsCopy(t *testing.T) {
	s, err := New(validParams())
	require.NoError(t, err)

	got := s.MitigationStrategies()
	got[0] = "changed"
	assert.NotEqual(t, "changed", s.MitigationStrategies()[0])
}

func ptr(v float64) *float64 { return &v }
