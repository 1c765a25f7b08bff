package monitor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/risk"
	"github.com/wonny/aegis-risk/internal/stress"
	"github.com/wonny/aegis-risk/pkg/logger"
)

// Risk types tracked by the monitor
const (
	RiskVaR99         = "VAR_99"
	RiskCVaR          = "CVAR"
	RiskMaxDrawdown   = "MAX_DRAWDOWN"
	RiskConcentration = "CONCENTRATION"
	RiskLiquidity     = "LIQUIDITY"

	// Overall aggregates every other status
	Overall = "OVERALL"
)

// LiquidityRiskPlaceholder stands in for the liquidity metric until volume and spread data are wired in
const LiquidityRiskPlaceholder = 0.05

// DefaultMaxHistorySize bounds the in-memory level history
const DefaultMaxHistorySize = 1000

var (
	// ErrInvalidLimit rejects a non-positive limit or a threshold outside (0,1]
	ErrInvalidLimit = errors.New("invalid risk limit")
	// ErrAlertNotFound is returned for unknown or already resolved alert ids
	ErrAlertNotFound = errors.New("alert not found")
)

// Status is the traffic-light state of a risk type
type Status string

const (
	StatusGreen  Status = "GREEN"
	StatusYellow Status = "YELLOW"
	StatusRed    Status = "RED"
)

// AlertHook receives every new alert after the monitor lock is released. It must not block.
type AlertHook func(Alert)

// Limit is a configured limit and the fraction of it that turns a status YELLOW
type Limit struct {
	RiskType       string          `json:"risk_type"`
	Limit          decimal.Decimal `json:"limit"`
	AlertThreshold float64         `json:"alert_threshold"`
}

// Options configures a Monitor
type Options struct {
	MaxHistorySize int       // <= 0 = DefaultMaxHistorySize
	OnAlert        AlertHook // optional
}

// HistoryEntry is one recorded set of risk levels
type HistoryEntry struct {
	At     time.Time                  `json:"at"`
	Levels map[string]decimal.Decimal `json:"levels"`
}

// Update is the outcome of one UpdateRiskLevels call
type Update struct {
	PortfolioID      int64                      `json:"portfolio_id"`
	UpdatedAt        time.Time                  `json:"updated_at"`
	RiskLevels       map[string]decimal.Decimal `json:"risk_levels"`
	Statuses         map[string]Status          `json:"statuses"`
	NewAlerts        []Alert                    `json:"new_alerts"`
	OverallRiskScore int                        `json:"overall_risk_score"`
	Recommendation   string                     `json:"recommendation"`
}

// Snapshot is a deep copy of the monitor state
type Snapshot struct {
	Limits       []Limit                    `json:"limits"`
	RiskLevels   map[string]decimal.Decimal `json:"risk_levels"`
	Statuses     map[string]Status          `json:"statuses"`
	ActiveAlerts []Alert                    `json:"active_alerts"`
	LastUpdateAt time.Time                  `json:"last_update_at"`
	HistorySize  int                        `json:"history_size"`
}

// Monitor holds limits, current levels, statuses, the alert ledger and a bounded history.
// All methods are safe for concurrent use.
type Monitor struct {
	mu sync.RWMutex

	limits     map[string]decimal.Decimal
	thresholds map[string]float64
	levels     map[string]decimal.Decimal
	statuses   map[string]Status
	alerts     []Alert // unresolved, in creation order
	history    []HistoryEntry
	lastUpdate time.Time

	maxHistory int
	onAlert    AlertHook
	log        *logger.Logger
	now        func() time.Time
}

// New creates a monitor with no limits; a nil logger discards output
func New(opts Options, log *logger.Logger) *Monitor {
	if opts.MaxHistorySize <= 0 {
		opts.MaxHistorySize = DefaultMaxHistorySize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Monitor{
		limits:     make(map[string]decimal.Decimal),
		thresholds: make(map[string]float64),
		levels:     make(map[string]decimal.Decimal),
		statuses:   map[string]Status{Overall: StatusGreen},
		maxHistory: opts.MaxHistorySize,
		onAlert:    opts.OnAlert,
		log:        log.Component("monitor"),
		now:        time.Now,
	}
}

// =============================================================================
// Limits
// =============================================================================

// SetRiskLimit sets the limit for riskType; YELLOW starts at limit × alertThreshold
func (m *Monitor) SetRiskLimit(riskType string, limit decimal.Decimal, alertThreshold float64) error {
	riskType = strings.TrimSpace(riskType)
	if riskType == "" {
		return fmt.Errorf("%w: risk type is required", ErrInvalidLimit)
	}
	if !limit.IsPositive() {
		return fmt.Errorf("%w: %s limit must be > 0, got %s", ErrInvalidLimit, riskType, limit)
	}
	if !(alertThreshold > 0 && alertThreshold <= 1) {
		return fmt.Errorf("%w: %s alert threshold must be in (0,1], got %g", ErrInvalidLimit, riskType, alertThreshold)
	}

	m.mu.Lock()
	m.limits[riskType] = limit
	m.thresholds[riskType] = alertThreshold
	m.lastUpdate = m.now()
	m.mu.Unlock()
	return nil
}

// Limits returns the configured limits sorted by risk type
func (m *Monitor) Limits() []Limit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limitsLocked()
}

func (m *Monitor) limitsLocked() []Limit {
	out := make([]Limit, 0, len(m.limits))
	for _, rt := range sortedKeys(m.limits) {
		out = append(out, Limit{RiskType: rt, Limit: m.limits[rt], AlertThreshold: m.thresholds[rt]})
	}
	return out
}

// =============================================================================
// Update
// =============================================================================

// UpdateRiskLevels recomputes every level and status from scratch, raises alerts for
// threshold crossings not already open for (riskType, portfolioID) and records history.
// latest may be nil; only concentration and liquidity are then reported.
func (m *Monitor) UpdateRiskLevels(portfolioID int64, positions []contracts.Position, prices contracts.PriceMap, latest *stress.Result) Update {
	levels := CurrentRiskLevels(positions, prices, latest)

	update, hook := m.apply(portfolioID, levels)
	alerts := update.NewAlerts
	statuses := update.Statuses

	m.log.WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"overall":      string(statuses[Overall]),
		"score":        update.OverallRiskScore,
		"new_alerts":   len(alerts),
	}).Info("risk levels updated")

	if hook != nil {
		for _, a := range alerts {
			hook(a)
		}
	}
	return update
}

// apply stores levels, statuses, new alerts and history under the lock
func (m *Monitor) apply(portfolioID int64, levels map[string]decimal.Decimal) (Update, AlertHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	statuses := m.statusesLocked(levels)
	alerts := m.newAlertsLocked(portfolioID, levels, now)

	m.levels = levels
	m.statuses = statuses
	m.alerts = append(m.alerts, alerts...)
	m.lastUpdate = now
	m.recordLocked(now, levels)

	return Update{
		PortfolioID:      portfolioID,
		UpdatedAt:        now,
		RiskLevels:       copyLevels(levels),
		Statuses:         copyStatuses(statuses),
		NewAlerts:        append([]Alert(nil), alerts...),
		OverallRiskScore: m.overallScoreLocked(levels),
		Recommendation:   recommendation(statuses[Overall]),
	}, m.onAlert
}

// CurrentRiskLevels derives VAR_99, CVAR and MAX_DRAWDOWN from the stress result when present,
// plus concentration (HHI) and the liquidity placeholder
func CurrentRiskLevels(positions []contracts.Position, prices contracts.PriceMap, latest *stress.Result) map[string]decimal.Decimal {
	levels := make(map[string]decimal.Decimal, 5)
	if latest != nil {
		levels[RiskVaR99] = latest.VaR99
		levels[RiskCVaR] = latest.CVaR
		if latest.MaxDrawdown.Valid {
			levels[RiskMaxDrawdown] = latest.MaxDrawdown.Decimal
		}
	}
	levels[RiskConcentration] = ConcentrationRisk(positions, prices)
	levels[RiskLiquidity] = decimal.NewFromFloat(LiquidityRiskPlaceholder)
	return levels
}

// ConcentrationRisk is the Herfindahl index Σ weight² with weights at six decimals.
// Zero for an empty or worthless portfolio.
func ConcentrationRisk(positions []contracts.Position, prices contracts.PriceMap) decimal.Decimal {
	hhi := decimal.Zero
	for _, w := range risk.PortfolioWeights(positions, prices) {
		hhi = hhi.Add(w.Mul(w))
	}
	return hhi
}

func (m *Monitor) statusesLocked(levels map[string]decimal.Decimal) map[string]Status {
	statuses := make(map[string]Status, len(levels)+1)
	overall := StatusGreen
	for rt, level := range levels {
		s := StatusGreen
		limit, okL := m.limits[rt]
		threshold, okT := m.thresholds[rt]
		if okL && okT {
			switch {
			case level.GreaterThanOrEqual(limit):
				s = StatusRed
			case level.GreaterThanOrEqual(limit.Mul(decimal.NewFromFloat(threshold))):
				s = StatusYellow
			}
		}
		statuses[rt] = s
		if s == StatusRed || (s == StatusYellow && overall == StatusGreen) {
			overall = s
		}
	}
	statuses[Overall] = overall
	return statuses
}

func (m *Monitor) newAlertsLocked(portfolioID int64, levels map[string]decimal.Decimal, now time.Time) []Alert {
	var alerts []Alert
	for _, rt := range sortedKeys(levels) {
		level := levels[rt]
		limit, okL := m.limits[rt]
		threshold, okT := m.thresholds[rt]
		if !okL || !okT {
			continue
		}
		if level.LessThan(limit.Mul(decimal.NewFromFloat(threshold))) {
			continue
		}
		if m.hasOpenAlertLocked(rt, portfolioID) {
			continue
		}

		sev := SeverityMedium
		if level.GreaterThanOrEqual(limit) {
			sev = SeverityHigh
		}
		alerts = append(alerts, Alert{
			ID:           uuid.NewString(),
			PortfolioID:  portfolioID,
			RiskType:     rt,
			CurrentLevel: level,
			Limit:        limit,
			Severity:     sev,
			Status:       AlertActive,
			Message:      alertMessage(rt, level, limit),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return alerts
}

func (m *Monitor) hasOpenAlertLocked(riskType string, portfolioID int64) bool {
	for _, a := range m.alerts {
		if a.RiskType == riskType && a.PortfolioID == portfolioID && !a.Resolved() {
			return true
		}
	}
	return false
}

// recordLocked appends to history and prunes the oldest entries in the same critical section
func (m *Monitor) recordLocked(at time.Time, levels map[string]decimal.Decimal) {
	m.history = append(m.history, HistoryEntry{At: at, Levels: copyLevels(levels)})
	if over := len(m.history) - m.maxHistory; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
}

// overallScoreLocked averages min(level/limit × 100, 100) over limited risk types
func (m *Monitor) overallScoreLocked(levels map[string]decimal.Decimal) int {
	var total float64
	count := 0
	for rt, level := range levels {
		limit, ok := m.limits[rt]
		if !ok || !limit.IsPositive() {
			continue
		}
		ratio := level.DivRound(limit, 4).InexactFloat64() * 100
		if ratio > 100 {
			ratio = 100
		}
		total += ratio
		count++
	}
	if count == 0 {
		return 0
	}
	return int(total/float64(count) + 0.5)
}

func recommendation(overall Status) string {
	switch overall {
	case StatusRed:
		return "Reduce positions immediately and strengthen hedges."
	case StatusYellow:
		return "Increase monitoring and consider rebalancing the portfolio."
	}
	return "Risk is within limits. Keep regular monitoring."
}

// =============================================================================
// Alert ledger
// =============================================================================

// ActiveAlerts returns unresolved alerts in creation order
func (m *Monitor) ActiveAlerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Alert(nil), m.alerts...)
}

// AcknowledgeAlert marks an open alert as seen; it still blocks duplicates
func (m *Monitor) AcknowledgeAlert(id string) (Alert, error) {
	return m.transition(id, AlertAcknowledged)
}

// ResolveAlert closes an alert and drops it from the ledger
func (m *Monitor) ResolveAlert(id string) (Alert, error) {
	return m.transition(id, AlertResolved)
}

func (m *Monitor) transition(id string, to AlertStatus) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID != id {
			continue
		}
		now := m.now()
		a := m.alerts[i]
		a.Status = to
		a.UpdatedAt = now
		if to == AlertResolved {
			a.ResolvedAt = &now
			m.alerts = append(m.alerts[:i], m.alerts[i+1:]...)
		} else {
			m.alerts[i] = a
		}
		return a, nil
	}
	return Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
}

// Restore loads previously persisted unresolved alerts, skipping ids already present
func (m *Monitor) Restore(alerts []Alert) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(m.alerts))
	for _, a := range m.alerts {
		seen[a.ID] = struct{}{}
	}
	n := 0
	for _, a := range alerts {
		if a.Resolved() {
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		m.alerts = append(m.alerts, a)
		seen[a.ID] = struct{}{}
		n++
	}
	sort.SliceStable(m.alerts, func(i, j int) bool { return m.alerts[i].CreatedAt.Before(m.alerts[j].CreatedAt) })
	return n
}

// =============================================================================
// Read side
// =============================================================================

// Snapshot returns a deep copy of the current state
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Limits:       m.limitsLocked(),
		RiskLevels:   copyLevels(m.levels),
		Statuses:     copyStatuses(m.statuses),
		ActiveAlerts: append([]Alert(nil), m.alerts...),
		LastUpdateAt: m.lastUpdate,
		HistorySize:  len(m.history),
	}
}

// Status returns the current status of riskType, GREEN when unknown
func (m *Monitor) Status(riskType string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.statuses[riskType]; ok {
		return s
	}
	return StatusGreen
}

// History returns the recorded levels oldest first
func (m *Monitor) History() []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]HistoryEntry, len(m.history))
	for i, h := range m.history {
		out[i] = HistoryEntry{At: h.At, Levels: copyLevels(h.Levels)}
	}
	return out
}

// =============================================================================
// Violations and recommendations
// =============================================================================

// CheckRiskLimitViolations lists every risk type strictly above its limit, sorted by type
func (m *Monitor) CheckRiskLimitViolations() []Violation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.violationsLocked()
}

func (m *Monitor) violationsLocked() []Violation {
	var out []Violation
	now := m.now()
	for _, rt := range sortedKeys(m.levels) {
		level := m.levels[rt]
		limit, ok := m.limits[rt]
		if !ok || !level.GreaterThan(limit) {
			continue
		}
		excess := level.Sub(limit)
		pct := excess.DivRound(limit, 4).InexactFloat64() * 100
		out = append(out, Violation{
			RiskType:         rt,
			CurrentLevel:     level,
			Limit:            limit,
			ExcessAmount:     excess,
			ExcessPercentage: pct,
			Severity:         ViolationSeverity(pct),
			DetectedAt:       now,
		})
	}
	return out
}

// GenerateAutomaticResponseRecommendations maps violations and the overall status to
// a deduplicated action list
func (m *Monitor) GenerateAutomaticResponseRecommendations() []string {
	m.mu.RLock()
	violations := m.violationsLocked()
	overall := m.statuses[Overall]
	m.mu.RUnlock()

	var recs []string
	for _, v := range violations {
		switch v.Severity {
		case SeverityCritical:
			recs = append(recs,
				"Cut positions by 50% immediately - "+v.RiskType,
				"Halt all new trades",
				"Expand hedge positions substantially")
		case SeverityHigh:
			recs = append(recs,
				"Consider cutting positions by 30% - "+v.RiskType,
				"Restrict new trades",
				"Increase defensive asset weight")
		case SeverityMedium:
			recs = append(recs,
				"Tighten position monitoring - "+v.RiskType,
				"Review rebalancing")
		}
	}

	switch overall {
	case StatusRed:
		recs = append(recs,
			"Full portfolio review required",
			"Increase cash allocation",
			"Diversify into low-correlation assets")
	case StatusYellow:
		recs = append(recs,
			"Increase risk monitoring frequency",
			"Review stop-loss orders")
	}

	return dedupe(recs)
}

// RecommendPositionAdjustments scales held positions that have a risk contribution by
// 0.5 when OVERALL is RED and 0.8 when YELLOW. Only adjustments above 0.01 units are returned.
func (m *Monitor) RecommendPositionAdjustments(positions []contracts.Position, prices contracts.PriceMap, contributions map[string]decimal.Decimal) map[string]decimal.Decimal {
	factor := decimal.NewFromInt(1)
	switch m.Status(Overall) {
	case StatusRed:
		factor = decimal.NewFromFloat(0.5)
	case StatusYellow:
		factor = decimal.NewFromFloat(0.8)
	}

	minAdj := decimal.NewFromFloat(0.01)
	out := make(map[string]decimal.Decimal)
	for _, p := range positions {
		if !p.HasPosition() {
			continue
		}
		if _, ok := contributions[p.InstrumentKey]; !ok {
			continue
		}
		if _, ok := prices[p.InstrumentKey]; !ok {
			continue
		}
		adj := p.Quantity.Mul(factor).Sub(p.Quantity)
		if adj.Abs().GreaterThan(minAdj) {
			out[p.InstrumentKey] = adj
		}
	}
	return out
}

// MinCorrelationObservations is the sample size needed before a pair is tracked
const MinCorrelationObservations = 10

// TrackCorrelationChanges returns current minus baseline Pearson correlation per asset pair,
// keyed "a_b" with a < b. Pairs with unequal or short series are skipped; a missing baseline counts as 0.
func (m *Monitor) TrackCorrelationChanges(recent map[string][]decimal.Decimal, baseline risk.CorrelationMatrix) map[string]float64 {
	out := make(map[string]float64)
	if len(recent) < 2 {
		return out
	}
	assets := make([]string, 0, len(recent))
	for k := range recent {
		assets = append(assets, k)
	}
	sort.Strings(assets)

	for i := 0; i < len(assets); i++ {
		for j := i + 1; j < len(assets); j++ {
			a1, a2 := assets[i], assets[j]
			r1, r2 := recent[a1], recent[a2]
			if len(r1) != len(r2) || len(r1) < MinCorrelationObservations {
				continue
			}
			current := risk.PearsonCorrelation(risk.Floats(r1), risk.Floats(r2))
			base, _ := baseline.Get(a1, a2)
			out[a1+"_"+a2] = current - base
		}
	}
	return out
}

// =============================================================================
// Helpers
// =============================================================================

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyLevels(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStatuses(in map[string]Status) map[string]Status {
	out := make(map[string]Status, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
