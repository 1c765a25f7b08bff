package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Severity grades an alert or limit violation
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// rank orders severities, CRITICAL highest
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// ViolationSeverity buckets an excess-over-limit percentage at 5/20/50
func ViolationSeverity(excessPct float64) Severity {
	switch {
	case excessPct >= 50:
		return SeverityCritical
	case excessPct >= 20:
		return SeverityHigh
	case excessPct >= 5:
		return SeverityMedium
	}
	return SeverityLow
}

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	AlertActive       AlertStatus = "ACTIVE"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertResolved     AlertStatus = "RESOLVED"
)

// Alert is raised when a risk level crosses its alert threshold
type Alert struct {
	ID           string          `json:"id"`
	PortfolioID  int64           `json:"portfolio_id"`
	RiskType     string          `json:"risk_type"`
	CurrentLevel decimal.Decimal `json:"current_level"`
	Limit        decimal.Decimal `json:"limit"`
	Severity     Severity        `json:"severity"`
	Status       AlertStatus     `json:"status"`
	Message      string          `json:"message"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
}

// Resolved reports whether the alert is closed
func (a Alert) Resolved() bool {
	return a.Status == AlertResolved
}

// ExceedancePercentage is (current - limit) / limit × 100, negative while under the limit
func (a Alert) ExceedancePercentage() decimal.Decimal {
	if a.Limit.IsZero() {
		return decimal.Zero
	}
	return a.CurrentLevel.Sub(a.Limit).DivRound(a.Limit, 4).Mul(decimal.NewFromInt(100))
}

// PriorityScore ranks alerts for triage: 10 per severity rank plus 1 per 10% over the limit, at least 1
func (a Alert) PriorityScore() int {
	score := a.Severity.rank() * 10
	if pct := a.ExceedancePercentage(); pct.IsPositive() {
		score += int(pct.IntPart()) / 10
	}
	if score < 1 {
		return 1
	}
	return score
}

// Summary is a one-line description for notifications
func (a Alert) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s portfolio %d - current: %s, limit: %s",
		a.Severity, a.RiskType, a.PortfolioID, a.CurrentLevel.String(), a.Limit.String())
	fmt.Fprintf(&b, " (%+.2f%%)", a.ExceedancePercentage().InexactFloat64())
	if a.Status != AlertActive {
		fmt.Fprintf(&b, " %s", a.Status)
	}
	return b.String()
}

func alertMessage(riskType string, current, limit decimal.Decimal) string {
	pct := current.Sub(limit).DivRound(limit, 4).InexactFloat64() * 100
	if pct >= 0 {
		return fmt.Sprintf("%s exceeds its limit by %.1f%% (current: %s, limit: %s)",
			riskType, pct, current.String(), limit.String())
	}
	return fmt.Sprintf("%s is approaching its limit, %.1f%% below (current: %s, limit: %s)",
		riskType, -pct, current.String(), limit.String())
}

// Violation is a risk type currently above its limit
type Violation struct {
	RiskType         string          `json:"risk_type"`
	CurrentLevel     decimal.Decimal `json:"current_level"`
	Limit            decimal.Decimal `json:"limit"`
	ExcessAmount     decimal.Decimal `json:"excess_amount"`
	ExcessPercentage float64         `json:"excess_percentage"`
	Severity         Severity        `json:"severity"`
	DetectedAt       time.Time       `json:"detected_at"`
}
