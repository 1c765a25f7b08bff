package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/metrics"
	"github.com/wonny/aegis-risk/internal/monitor"
	"github.com/wonny/aegis-risk/internal/scenario"
	"github.com/wonny/aegis-risk/internal/stress"
	"github.com/wonny/aegis-risk/pkg/config"
	"github.com/wonny/aegis-risk/pkg/logger"
)

// ErrNoPrices is returned when none of the held instruments has a current price
var ErrNoPrices = errors.New("no prices for portfolio instruments")

// =============================================================================
// Collaborators
// =============================================================================

// ScenarioSource returns the scenarios valid at now
type ScenarioSource func(ctx context.Context, now time.Time) ([]scenario.RiskScenario, error)

// FromCatalog serves the active scenarios of an in-memory catalog
func FromCatalog(c *scenario.Catalog) ScenarioSource {
	return func(_ context.Context, now time.Time) ([]scenario.RiskScenario, error) {
		return c.Active(now), nil
	}
}

// activeFinder is the part of store.ScenarioStore used here
type activeFinder interface {
	FindActive(ctx context.Context, now time.Time) ([]scenario.RiskScenario, error)
}

// FromStore serves the active scenarios of a persisted catalog
func FromStore(s activeFinder) ScenarioSource {
	return s.FindActive
}

// ResultStore persists stress results
type ResultStore interface {
	Save(ctx context.Context, results ...*stress.Result) error
}

// AlertStore persists the alert ledger
type AlertStore interface {
	Save(ctx context.Context, alerts ...monitor.Alert) error
	FindOpen(ctx context.Context, portfolioID int64) ([]monitor.Alert, error)
}

// Broadcaster pushes monitor updates to live subscribers
type Broadcaster interface {
	Broadcast(v interface{})
}

// Deps are the collaborators of a Service. Results, Alerts and Stream are optional.
type Deps struct {
	Positions contracts.PositionSource
	Scenarios ScenarioSource
	Engine    *stress.Engine
	Monitor   *monitor.Monitor
	Results   ResultStore
	Alerts    AlertStore
	Stream    Broadcaster
}

// =============================================================================
// Service
// =============================================================================

// Service runs monitoring ticks: stress the portfolio, feed the monitor, persist and publish
// SSOT: the monitoring pipeline is coordinated only here
type Service struct {
	deps Deps
	log  *logger.Logger
	now  func() time.Time
}

// TickResult holds the outcome of one monitoring tick
type TickResult struct {
	PortfolioID     int64                 `json:"portfolio_id"`
	StartedAt       time.Time             `json:"started_at"`
	Duration        time.Duration         `json:"duration"`
	CompletedStages []string              `json:"completed_stages"`
	Comprehensive   *stress.Comprehensive `json:"comprehensive"`
	MonteCarlo      *stress.Result        `json:"monte_carlo"`
	Update          monitor.Update        `json:"update"`
}

// New creates a monitoring service; Scenarios defaults to the standard catalog
func New(deps Deps, log *logger.Logger) *Service {
	if deps.Scenarios == nil {
		deps.Scenarios = FromCatalog(scenario.StandardCatalog())
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{deps: deps, log: log.Component("orchestrator"), now: time.Now}
}

// Monitor returns the monitor fed by this service
func (s *Service) Monitor() *monitor.Monitor { return s.deps.Monitor }

// ConfigureLimits applies configured limits to m
func ConfigureLimits(m *monitor.Monitor, limits []config.RiskLimitConfig) error {
	for _, l := range limits {
		if math.IsNaN(l.Limit) || math.IsInf(l.Limit, 0) {
			return fmt.Errorf("risk limit %s: %w: limit must be finite", l.RiskType, monitor.ErrInvalidLimit)
		}
		if err := m.SetRiskLimit(l.RiskType, decimal.NewFromFloat(l.Limit), l.Threshold); err != nil {
			return fmt.Errorf("risk limit %s: %w", l.RiskType, err)
		}
	}
	return nil
}

// RestoreAlerts reloads unresolved alerts of a portfolio into the monitor
func (s *Service) RestoreAlerts(ctx context.Context, portfolioID int64) (int, error) {
	if s.deps.Alerts == nil {
		return 0, nil
	}
	open, err := s.deps.Alerts.FindOpen(ctx, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to load open alerts: %w", err)
	}
	n := s.deps.Monitor.Restore(open)
	s.log.WithField("portfolio_id", portfolioID).Infof("Restored %d open alerts", n)
	return n, nil
}

// RunMonitoringTick stresses the portfolio against every active scenario, runs a
// Monte Carlo stress on the worst one and feeds the result to the monitor
func (s *Service) RunMonitoringTick(ctx context.Context, portfolioID int64) (*TickResult, error) {
	start := s.now()
	result := &TickResult{PortfolioID: portfolioID, StartedAt: start}
	log := s.log.WithField("portfolio_id", portfolioID)

	// 1. Portfolio snapshot
	positions, err := s.deps.Positions.Positions(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	prices, err := s.deps.Positions.Prices(ctx, contracts.InstrumentKeys(positions))
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: portfolio %d", ErrNoPrices, portfolioID)
	}
	result.CompletedStages = append(result.CompletedStages, "snapshot")

	// 2. Scenario stress
	scenarios, err := s.deps.Scenarios(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		scenarios = scenario.StandardScenarios()
	}

	stressStart := time.Now()
	comp, err := s.deps.Engine.RunComprehensive(scenarios, positions, prices)
	metrics.RecordStressRun("comprehensive", time.Since(stressStart), err)
	if err != nil {
		return nil, fmt.Errorf("stress test failed: %w", err)
	}
	result.Comprehensive = comp
	label := strconv.FormatInt(portfolioID, 10)
	for id, loss := range comp.ScenarioLosses {
		metrics.RecordScenarioLoss(label, id, loss)
	}
	result.CompletedStages = append(result.CompletedStages, "stress")

	// 3. Monte Carlo on the worst scenario
	worst := scenarioByID(scenarios, comp.Worst.ScenarioID)
	mcStart := time.Now()
	mc, err := s.deps.Engine.RunMonteCarlo(ctx, worst, positions, prices, s.deps.Engine.Options().Runs)
	metrics.RecordStressRun("monte_carlo", time.Since(mcStart), err)
	if err != nil {
		return nil, fmt.Errorf("monte carlo stress failed: %w", err)
	}
	result.MonteCarlo = mc
	result.CompletedStages = append(result.CompletedStages, "monte_carlo")

	if s.deps.Results != nil {
		all := append(append([]*stress.Result{}, comp.Results...), mc)
		if err := s.deps.Results.Save(ctx, all...); err != nil {
			log.WithError(err).Warn("Failed to persist stress results")
		} else {
			result.CompletedStages = append(result.CompletedStages, "persist_results")
		}
	}

	// 4. Monitor
	update := s.deps.Monitor.UpdateRiskLevels(portfolioID, positions, prices, mc)
	result.Update = update
	result.CompletedStages = append(result.CompletedStages, "monitor")

	statuses := make(map[string]string, len(update.Statuses))
	for rt, st := range update.Statuses {
		statuses[rt] = string(st)
	}
	metrics.RecordRiskLevels(label, update.RiskLevels, statuses, update.OverallRiskScore)
	for _, a := range update.NewAlerts {
		metrics.RecordAlert(a.RiskType, string(a.Severity))
	}

	if s.deps.Alerts != nil && len(update.NewAlerts) > 0 {
		if err := s.deps.Alerts.Save(ctx, update.NewAlerts...); err != nil {
			log.WithError(err).Warn("Failed to persist alerts")
		} else {
			result.CompletedStages = append(result.CompletedStages, "persist_alerts")
		}
	}

	if s.deps.Stream != nil {
		s.deps.Stream.Broadcast(update)
		result.CompletedStages = append(result.CompletedStages, "broadcast")
	}

	result.Duration = time.Since(start)
	log.WithFields(map[string]interface{}{
		"worst_scenario": comp.Worst.ScenarioID,
		"var_99":         mc.VaR99.StringFixed(2),
		"overall_score":  update.OverallRiskScore,
		"new_alerts":     len(update.NewAlerts),
		"duration":       result.Duration,
	}).Info("Monitoring tick completed")

	return result, nil
}

// AcknowledgeAlert acknowledges an alert and persists the transition
func (s *Service) AcknowledgeAlert(ctx context.Context, id string) (monitor.Alert, error) {
	a, err := s.deps.Monitor.AcknowledgeAlert(id)
	if err != nil {
		return monitor.Alert{}, err
	}
	return a, s.persist(ctx, a)
}

// ResolveAlert resolves an alert and persists the transition
func (s *Service) ResolveAlert(ctx context.Context, id string) (monitor.Alert, error) {
	a, err := s.deps.Monitor.ResolveAlert(id)
	if err != nil {
		return monitor.Alert{}, err
	}
	return a, s.persist(ctx, a)
}

func (s *Service) persist(ctx context.Context, a monitor.Alert) error {
	if s.deps.Alerts == nil {
		return nil
	}
	if err := s.deps.Alerts.Save(ctx, a); err != nil {
		return fmt.Errorf("failed to persist alert %s: %w", a.ID, err)
	}
	return nil
}

func scenarioByID(scenarios []scenario.RiskScenario, id string) scenario.RiskScenario {
	for _, sc := range scenarios {
		if sc.ID == id {
			return sc
		}
	}
	return scenarios[0]
}
