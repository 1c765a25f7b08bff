package monitor

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/risk"
	"github.com/wonny/aegis-risk/internal/stress"
)

func newTestMonitor(t *testing.T, opts Options) *Monitor {
	t.Helper()
	m := New(opts, nil)
	clock := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return m
}

func portfolio() ([]contracts.Position, contracts.PriceMap) {
	return []contracts.Position{
			{PortfolioID: 1, InstrumentKey: "A", Quantity: decimal.NewFromInt(100)},
			{PortfolioID: 1, InstrumentKey: "B", Quantity: decimal.NewFromInt(100)},
		}, contracts.PriceMap{
			"A": decimal.NewFromInt(50),
			"B": decimal.NewFromInt(50),
		}
}

func varResult(v int64) *stress.Result {
	return &stress.Result{VaR99: decimal.NewFromInt(v), CVaR: decimal.NewFromInt(v)}
}

func TestUpdateRiskLevels_YellowBelowLimit(t *testing.T) {
	m := newTestMonitor(t, Options{})
	require.NoError(t, m.SetRiskLimit(RiskVaR99, decimal.NewFromInt(1000), 0.8))
	positions, prices := portfolio()

	u := m.UpdateRiskLevels(1, positions, prices, varResult(850))

	assert.Equal(t, StatusYellow, u.Statuses[RiskVaR99])
	assert.Equal(t, StatusYellow, u.Statuses[Overall])
	assert.Equal(t, StatusGreen, u.Statuses[RiskConcentration])
	require.Len(t, u.NewAlerts, 1)
	assert.Equal(t, SeverityMedium, u.NewAlerts[0].Severity)
	assert.Equal(t, 85, u.OverallRiskScore)
	assert.Equal(t, StatusYellow, m.Status(RiskVaR99))
}

func TestUpdateRiskLevels_RedAtLimit(t *testing.T) {
	m := newTestMonitor(t, Options{})
	require.NoError(t, m.SetRiskLimit(RiskVaR99, decimal.NewFromInt(1000), 0.8))
	positions, prices := portfolio()

	u := m.UpdateRiskLevels(1, positions, prices, varResult(1000))

	assert.Equal(t, StatusRed, u.Statuses[RiskVaR99])
	assert.Equal(t, StatusRed, u.Statuses[Overall])
	require.Len(t, u.NewAlerts, 1)
	a := u.NewAlerts[0]
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.Equal(t, RiskVaR99, a.RiskType)
	assert.Equal(t, int64(1), a.PortfolioID)
	assert.Equal(t, AlertActive, a.Status)
	assert.Contains(t, u.Recommendation, "Reduce positions")
}

func TestUpdateRiskLevels_DeduplicatesOpenAlerts(t *testing.T) {
	m := newTestMonitor(t, Options{})
	require.NoError(t, m.SetRiskLimit(RiskVaR99, decimal.NewFromInt(1000), 0.8))
	positions, prices := portfolio()

	first := m.UpdateRiskLevels(1, positions, prices, varResult(850))
	require.Len(t, first.NewAlerts, 1)

	assert.Empty(t, m.UpdateRiskLevels(1, positions, prices, varResult(1000)).NewAlerts)

	// another portfolio is tracked separately
	assert.Len(t, m.UpdateRiskLevels(2, positions, prices, varResult(1000)).NewAlerts, 1)

	// acknowledged alerts still block duplicates
	_, err := m.AcknowledgeAlert(first.NewAlerts[0].ID)
	require.NoError(t, err)
	assert.Empty(t, m.UpdateRiskLevels(1, positions, prices, varResult(1000)).NewAlerts)

	resolved, err := m.ResolveAlert(first.NewAlerts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, AlertResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Len(t, m.ActiveAlerts(), 1)

	again := m.UpdateRiskLevels(1, positions, prices, varResult(1000))
	require.Len(t, again.NewAlerts, 1)
	assert.Equal(t, SeverityHigh, again.NewAlerts[0].Severity)

	_, err = m.ResolveAlert(first.NewAlerts[0].ID)
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestUpdateRiskLevels_NoStressResult(t *testing.T) {
	m := newTestMonitor(t, Options{})
	positions, prices := portfolio()

	u := m.UpdateRiskLevels(1, positions, prices, nil)

	assert.NotContains(t, u.RiskLevels, RiskVaR99)
	assert.NotContains(t, u.RiskLevels, RiskMaxDrawdown)
	assert.True(t, u.RiskLevels[RiskConcentration].Equal(decimal.RequireFromString("0.5")))
	assert.True(t, u.RiskLevels[RiskLiquidity].Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, StatusGreen, u.Statuses[Overall])
	assert.Zero(t, u.OverallRiskScore)
	assert.Contains(t, u.Recommendation, "within limits")
}

func TestUpdateRiskLevels_RecomputedFromScratch(t *testing.T) {
	m := newTestMonitor(t, Options{})
	positions, prices := portfolio()

	r := varResult(10)
	r.MaxDrawdown = decimal.NewNullDecimal(decimal.RequireFromString("0.2"))
	m.UpdateRiskLevels(1, positions, prices, r)
	assert.Contains(t, m.Snapshot().RiskLevels, RiskMaxDrawdown)

	m.UpdateRiskLevels(1, positions, prices, varResult(10))
	assert.NotContains(t, m.Snapshot().RiskLevels, RiskMaxDrawdown)
}

func TestSetRiskLimit_Validation(t *testing.T) {
	m := newTestMonitor(t, Options{})

	assert.ErrorIs(t, m.SetRiskLimit("", decimal.NewFromInt(1), 0.5), ErrInvalidLimit)
	assert.ErrorIs(t, m.SetRiskLimit(RiskCVaR, decimal.Zero, 0.5), ErrInvalidLimit)
	assert.ErrorIs(t, m.SetRiskLimit(RiskCVaR, decimal.NewFromInt(-5), 0.5), ErrInvalidLimit)
	assert.ErrorIs(t, m.SetRiskLimit(RiskCVaR, decimal.NewFromInt(1), 0), ErrInvalidLimit)
	assert.ErrorIs(t, m.SetRiskLimit(RiskCVaR, decimal.NewFromInt(1), 1.1), ErrInvalidLimit)
	assert.ErrorIs(t, m.SetRiskLimit(RiskCVaR, decimal.NewFromInt(1), math.NaN()), ErrInvalidLimit)
	assert.ErrorIs(t, m.SetRiskLimit(RiskCVaR, decimal.NewFromInt(1), math.Inf(1)), ErrInvalidLimit)
	assert.Empty(t, m.Limits())
	assert.NoError(t, m.SetRiskLimit(RiskCVaR, decimal.NewFromInt(1), 1.0))

	limits := m.Limits()
	require.Len(t, limits, 1)
	assert.Equal(t, RiskCVaR, limits[0].RiskType)
}

func TestUpdateRiskLevels_PanicReleasesLock(t *testing.T) {
	m := newTestMonitor(t, Options{})
	positions, prices := portfolio()

	// bypass SetRiskLimit to plant a threshold that cannot become a decimal
	m.limits[RiskConcentration] = decimal.NewFromInt(1)
	m.thresholds[RiskConcentration] = math.NaN()

	assert.Panics(t, func() { m.UpdateRiskLevels(1, positions, prices, nil) })

	done := make(chan struct{})
	go func() {
		_ = m.Snapshot()
		_ = m.SetRiskLimit(RiskConcentration, decimal.NewFromInt(1), 0.9)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor lock still held after panic")
	}

	update := m.UpdateRiskLevels(1, positions, prices, nil)
	assert.Equal(t, StatusGreen, update.Statuses[RiskConcentration])
}

func TestConcentrationRisk_Bounds(t *testing.T) {
	for n := 1; n <= 5; n++ {
		positions := make([]contracts.Position, n)
		prices := contracts.PriceMap{}
		for i := range positions {
			key := string(rune('A' + i))
			positions[i] = contracts.Position{InstrumentKey: key, Quantity: decimal.NewFromInt(10)}
			prices[key] = decimal.NewFromInt(20)
		}
		hhi := ConcentrationRisk(positions, prices).InexactFloat64()
		assert.InDelta(t, 1.0/float64(n), hhi, 1e-5, "n=%d", n)
	}

	single := []contracts.Position{{InstrumentKey: "A", Quantity: decimal.NewFromInt(1)}}
	assert.True(t, ConcentrationRisk(single, contracts.PriceMap{"A": decimal.NewFromInt(3)}).Equal(decimal.NewFromInt(1)))
	assert.True(t, ConcentrationRisk(nil, nil).IsZero())
}

func TestHistory_PrunedToMax(t *testing.T) {
	m := newTestMonitor(t, Options{MaxHistorySize: 3})
	positions, prices := portfolio()

	for i := 1; i <= 5; i++ {
		m.UpdateRiskLevels(1, positions, prices, varResult(int64(i)))
	}

	h := m.History()
	require.Len(t, h, 3)
	assert.True(t, h[0].Levels[RiskVaR99].Equal(decimal.NewFromInt(3)))
	assert.True(t, h[2].Levels[RiskVaR99].Equal(decimal.NewFromInt(5)))
	assert.True(t, h[0].At.Before(h[1].At))
	assert.Equal(t, 3, m.Snapshot().HistorySize)
}

func TestViolationsAndRecommendations(t *testing.T) {
	m := newTestMonitor(t, Options{})
	require.NoError(t, m.SetRiskLimit(RiskVaR99, decimal.NewFromInt(1000), 0.8))
	require.NoError(t, m.SetRiskLimit(RiskCVaR, decimal.NewFromInt(1000), 0.8))
	positions, prices := portfolio()

	m.UpdateRiskLevels(1, positions, prices, &stress.Result{
		VaR99: decimal.NewFromInt(1600),
		CVaR:  decimal.NewFromInt(1250),
	})

	v := m.CheckRiskLimitViolations()
	require.Len(t, v, 2)
	assert.Equal(t, RiskCVaR, v[0].RiskType)
	assert.Equal(t, SeverityHigh, v[0].Severity)
	assert.Equal(t, RiskVaR99, v[1].RiskType)
	assert.Equal(t, SeverityCritical, v[1].Severity)
	assert.True(t, v[1].ExcessAmount.Equal(decimal.NewFromInt(600)))
	assert.InDelta(t, 60.0, v[1].ExcessPercentage, 1e-9)

	recs := m.GenerateAutomaticResponseRecommendations()
	assert.Contains(t, recs, "Cut positions by 50% immediately - VAR_99")
	assert.Contains(t, recs, "Consider cutting positions by 30% - CVAR")
	assert.Contains(t, recs, "Full portfolio review required")
	assert.Equal(t, len(dedupe(recs)), len(recs))
}

func TestViolationSeverity(t *testing.T) {
	assert.Equal(t, SeverityLow, ViolationSeverity(4.99))
	assert.Equal(t, SeverityMedium, ViolationSeverity(5))
	assert.Equal(t, SeverityHigh, ViolationSeverity(20))
	assert.Equal(t, SeverityCritical, ViolationSeverity(50))
}

func TestRecommendPositionAdjustments(t *testing.T) {
	m := newTestMonitor(t, Options{})
	positions, prices := portfolio()
	contributions := map[string]decimal.Decimal{"A": decimal.NewFromInt(1)}

	assert.Empty(t, m.RecommendPositionAdjustments(positions, prices, contributions))

	require.NoError(t, m.SetRiskLimit(RiskVaR99, decimal.NewFromInt(1000), 0.8))
	m.UpdateRiskLevels(1, positions, prices, varResult(2000))

	adj := m.RecommendPositionAdjustments(positions, prices, contributions)
	require.Len(t, adj, 1)
	assert.True(t, adj["A"].Equal(decimal.NewFromInt(-50)))

	m.UpdateRiskLevels(1, positions, prices, varResult(900))
	adj = m.RecommendPositionAdjustments(positions, prices, contributions)
	assert.True(t, adj["A"].Equal(decimal.NewFromInt(-20)))
}

func TestTrackCorrelationChanges(t *testing.T) {
	m := newTestMonitor(t, Options{})
	x := make([]decimal.Decimal, 10)
	y := make([]decimal.Decimal, 10)
	for i := range x {
		x[i] = decimal.New(int64(i), -2)
		y[i] = decimal.New(int64(2*i), -2)
	}

	changes := m.TrackCorrelationChanges(
		map[string][]decimal.Decimal{"B": y, "A": x, "C": x[:9]},
		risk.CorrelationMatrix{"B": {"A": 0.25}},
	)

	require.Len(t, changes, 1)
	assert.InDelta(t, 0.75, changes["A_B"], 1e-9)
	assert.Empty(t, m.TrackCorrelationChanges(map[string][]decimal.Decimal{"A": x}, nil))
}

func TestAlertHook(t *testing.T) {
	var got []Alert
	m := newTestMonitor(t, Options{OnAlert: func(a Alert) { got = append(got, a) }})
	require.NoError(t, m.SetRiskLimit(RiskConcentration, decimal.RequireFromString("0.4"), 0.75))
	positions, prices := portfolio()

	m.UpdateRiskLevels(1, positions, prices, nil)

	require.Len(t, got, 1)
	assert.Equal(t, RiskConcentration, got[0].RiskType)
	assert.Equal(t, SeverityHigh, got[0].Severity)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	m := newTestMonitor(t, Options{})
	require.NoError(t, m.SetRiskLimit(RiskVaR99, decimal.NewFromInt(1000), 0.8))
	positions, prices := portfolio()
	m.UpdateRiskLevels(1, positions, prices, varResult(1200))

	snap := m.Snapshot()
	snap.RiskLevels[RiskVaR99] = decimal.Zero
	snap.Statuses[Overall] = StatusGreen
	snap.ActiveAlerts[0].Status = AlertResolved

	fresh := m.Snapshot()
	assert.True(t, fresh.RiskLevels[RiskVaR99].Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, StatusRed, fresh.Statuses[Overall])
	assert.Equal(t, AlertActive, fresh.ActiveAlerts[0].Status)
}

func TestRestore(t *testing.T) {
	m := newTestMonitor(t, Options{})
	now := time.Now()
	n := m.Restore([]Alert{
		{ID: "b", RiskType: RiskCVaR, PortfolioID: 1, Status: AlertActive, CreatedAt: now},
		{ID: "a", RiskType: RiskVaR99, PortfolioID: 1, Status: AlertAcknowledged, CreatedAt: now.Add(-time.Hour)},
		{ID: "c", RiskType: RiskVaR99, PortfolioID: 1, Status: AlertResolved, CreatedAt: now},
	})
	assert.Equal(t, 2, n)
	assert.Zero(t, m.Restore([]Alert{{ID: "a", Status: AlertActive}}))

	active := m.ActiveAlerts()
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
}

func TestConcurrentUpdates(t *testing.T) {
	m := newTestMonitor(t, Options{MaxHistorySize: 50})
	var mu sync.Mutex
	clock := time.Now()
	m.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}
	require.NoError(t, m.SetRiskLimit(RiskVaR99, decimal.NewFromInt(1000), 0.8))
	positions, prices := portfolio()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.UpdateRiskLevels(int64(i), positions, prices, varResult(int64(900+j)))
				_ = m.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.History(), 50)
	assert.Len(t, m.ActiveAlerts(), 8)
}
