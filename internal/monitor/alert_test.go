package monitor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAlertDerivedFields(t *testing.T) {
	a := Alert{
		PortfolioID:  3,
		RiskType:     RiskVaR99,
		CurrentLevel: decimal.NewFromInt(1200),
		Limit:        decimal.NewFromInt(1000),
		Severity:     SeverityHigh,
		Status:       AlertActive,
	}

	assert.True(t, a.ExceedancePercentage().Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 32, a.PriorityScore())
	assert.Equal(t, "[HIGH] VAR_99 portfolio 3 - current: 1200, limit: 1000 (+20.00%)", a.Summary())

	a.Status = AlertAcknowledged
	assert.Contains(t, a.Summary(), "ACKNOWLEDGED")
	assert.False(t, a.Resolved())
}

func TestAlertPriority_Ordering(t *testing.T) {
	base := Alert{CurrentLevel: decimal.NewFromInt(900), Limit: decimal.NewFromInt(1000)}

	low, medium, critical := base, base, base
	low.Severity = SeverityLow
	medium.Severity = SeverityMedium
	critical.Severity = SeverityCritical

	assert.Less(t, low.PriorityScore(), medium.PriorityScore())
	assert.Less(t, medium.PriorityScore(), critical.PriorityScore())
	assert.Equal(t, 1, Alert{}.PriorityScore())
	assert.True(t, Alert{}.ExceedancePercentage().IsZero())
}

func TestAlertMessage(t *testing.T) {
	assert.Equal(t, "VAR_99 exceeds its limit by 20.0% (current: 1200, limit: 1000)",
		alertMessage(RiskVaR99, decimal.NewFromInt(1200), decimal.NewFromInt(1000)))
	assert.Contains(t, alertMessage(RiskVaR99, decimal.NewFromInt(850), decimal.NewFromInt(1000)), "15.0% below")
}
