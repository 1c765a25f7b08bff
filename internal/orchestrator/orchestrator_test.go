package orchestrator

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/monitor"
	"github.com/wonny/aegis-risk/internal/scenario"
	"github.com/wonny/aegis-risk/internal/stress"
	"github.com/wonny/aegis-risk/pkg/config"
)

type staticSource struct {
	positions []contracts.Position
	prices    contracts.PriceMap
}

func (s staticSource) Positions(_ context.Context, portfolioID int64) ([]contracts.Position, error) {
	if portfolioID != 1 {
		return nil, errors.New("unknown portfolio")
	}
	return s.positions, nil
}

func (s staticSource) Prices(_ context.Context, keys []string) (contracts.PriceMap, error) {
	out := contracts.PriceMap{}
	for _, k := range keys {
		if p, ok := s.prices[k]; ok {
			out[k] = p
		}
	}
	return out, nil
}

func twoAssetSource() staticSource {
	return staticSource{
		positions: []contracts.Position{
			{PortfolioID: 1, InstrumentKey: "A", Quantity: decimal.NewFromInt(100)},
			{PortfolioID: 1, InstrumentKey: "B", Quantity: decimal.NewFromInt(100)},
		},
		prices: contracts.PriceMap{"A": decimal.NewFromInt(50), "B": decimal.NewFromInt(50)},
	}
}

type memResults struct{ saved []*stress.Result }

func (m *memResults) Save(_ context.Context, results ...*stress.Result) error {
	m.saved = append(m.saved, results...)
	return nil
}

type memAlerts struct {
	mu    sync.Mutex
	byID  map[string]monitor.Alert
	fails bool
}

func newMemAlerts() *memAlerts { return &memAlerts{byID: map[string]monitor.Alert{}} }

func (m *memAlerts) Save(_ context.Context, alerts ...monitor.Alert) error {
	if m.fails {
		return errors.New("db down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range alerts {
		m.byID[a.ID] = a
	}
	return nil
}

func (m *memAlerts) FindOpen(_ context.Context, portfolioID int64) ([]monitor.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []monitor.Alert
	for _, a := range m.byID {
		if a.PortfolioID == portfolioID && !a.Resolved() {
			out = append(out, a)
		}
	}
	return out, nil
}

type memStream struct{ msgs []interface{} }

func (m *memStream) Broadcast(v interface{}) { m.msgs = append(m.msgs, v) }

func newService(t *testing.T, alerts *memAlerts, results *memResults, stream *memStream) *Service {
	t.Helper()
	m := monitor.New(monitor.Options{}, nil)
	require.NoError(t, ConfigureLimits(m, []config.RiskLimitConfig{
		{RiskType: monitor.RiskConcentration, Limit: 0.1, Threshold: 0.5},
	}))

	deps := Deps{
		Positions: twoAssetSource(),
		Engine:    stress.NewEngine(nil, stress.Options{Runs: 2000, Seed: 7, Workers: 2}, nil),
		Monitor:   m,
	}
	if alerts != nil {
		deps.Alerts = alerts
	}
	if results != nil {
		deps.Results = results
	}
	if stream != nil {
		deps.Stream = stream
	}
	return New(deps, nil)
}

func TestRunMonitoringTick(t *testing.T) {
	alerts := newMemAlerts()
	results := &memResults{}
	stream := &memStream{}
	svc := newService(t, alerts, results, stream)

	res, err := svc.RunMonitoringTick(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"snapshot", "stress", "monte_carlo", "persist_results", "monitor", "persist_alerts", "broadcast",
	}, res.CompletedStages)

	assert.Len(t, res.Comprehensive.Results, len(scenario.StandardScenarios()))
	assert.Equal(t, 2000, res.MonteCarlo.SimulationRuns)
	assert.Equal(t, res.Comprehensive.Worst.ScenarioID, res.MonteCarlo.ScenarioID)
	assert.Len(t, results.saved, len(res.Comprehensive.Results)+1)

	require.Len(t, res.Update.NewAlerts, 1)
	assert.Equal(t, monitor.RiskConcentration, res.Update.NewAlerts[0].RiskType)
	assert.Len(t, alerts.byID, 1)
	assert.Len(t, stream.msgs, 1)
	assert.Equal(t, monitor.StatusRed, res.Update.Statuses[monitor.RiskConcentration])
}

func TestRunMonitoringTick_OptionalStores(t *testing.T) {
	svc := newService(t, nil, nil, nil)

	res, err := svc.RunMonitoringTick(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshot", "stress", "monte_carlo", "monitor"}, res.CompletedStages)
}

func TestRunMonitoringTick_PersistFailureDoesNotAbort(t *testing.T) {
	alerts := newMemAlerts()
	alerts.fails = true
	svc := newService(t, alerts, nil, nil)

	res, err := svc.RunMonitoringTick(context.Background(), 1)
	require.NoError(t, err)
	assert.NotContains(t, res.CompletedStages, "persist_alerts")
	assert.Len(t, svc.Monitor().ActiveAlerts(), 1)
}

func TestRunMonitoringTick_Errors(t *testing.T) {
	svc := newService(t, nil, nil, nil)
	_, err := svc.RunMonitoringTick(context.Background(), 2)
	assert.Error(t, err)

	svc.deps.Positions = staticSource{
		positions: twoAssetSource().positions,
		prices:    contracts.PriceMap{},
	}
	_, err = svc.RunMonitoringTick(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNoPrices))
}

func TestRunMonitoringTick_UsesActiveScenarios(t *testing.T) {
	svc := newService(t, nil, nil, nil)

	custom, err := scenario.NewCustomScenario(scenario.CustomParams{
		Name:         "Desk drop",
		Type:         scenario.TypeMarketCrash,
		Severity:     scenario.SeverityModerate,
		MarketShocks: map[string]decimal.Decimal{scenario.SegmentGeneral: decimal.NewFromFloat(-0.05)},
	})
	require.NoError(t, err)
	svc.deps.Scenarios = func(context.Context, time.Time) ([]scenario.RiskScenario, error) {
		return []scenario.RiskScenario{custom}, nil
	}

	res, err := svc.RunMonitoringTick(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, res.Comprehensive.Results, 1)
	assert.Equal(t, custom.ID, res.MonteCarlo.ScenarioID)
}

func TestAlertLifecyclePersists(t *testing.T) {
	alerts := newMemAlerts()
	svc := newService(t, alerts, nil, nil)

	res, err := svc.RunMonitoringTick(context.Background(), 1)
	require.NoError(t, err)
	id := res.Update.NewAlerts[0].ID

	acked, err := svc.AcknowledgeAlert(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, monitor.AlertAcknowledged, alerts.byID[id].Status)
	assert.Equal(t, monitor.AlertAcknowledged, acked.Status)

	_, err = svc.ResolveAlert(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, monitor.AlertResolved, alerts.byID[id].Status)

	_, err = svc.ResolveAlert(context.Background(), id)
	assert.True(t, errors.Is(err, monitor.ErrAlertNotFound))
}

func TestRestoreAlerts(t *testing.T) {
	alerts := newMemAlerts()
	require.NoError(t, alerts.Save(context.Background(), monitor.Alert{
		ID: "old", PortfolioID: 1, RiskType: monitor.RiskConcentration,
		Status: monitor.AlertActive, CreatedAt: time.Now(),
	}))
	svc := newService(t, alerts, nil, nil)

	n, err := svc.RestoreAlerts(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// restored alert deduplicates the next breach
	res, err := svc.RunMonitoringTick(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, res.Update.NewAlerts)
}

func TestConfigureLimits_Invalid(t *testing.T) {
	m := monitor.New(monitor.Options{}, nil)
	err := ConfigureLimits(m, []config.RiskLimitConfig{{RiskType: "VAR_99", Limit: -1, Threshold: 0.8}})
	assert.True(t, errors.Is(err, monitor.ErrInvalidLimit))

	for _, l := range []config.RiskLimitConfig{
		{RiskType: "VAR_99", Limit: math.NaN(), Threshold: 0.8},
		{RiskType: "VAR_99", Limit: math.Inf(1), Threshold: 0.8},
		{RiskType: "VAR_99", Limit: 1000, Threshold: math.NaN()},
	} {
		assert.NotPanics(t, func() {
			err := ConfigureLimits(m, []config.RiskLimitConfig{l})
			assert.True(t, errors.Is(err, monitor.ErrInvalidLimit))
		})
	}
	assert.Empty(t, m.Limits())
}
