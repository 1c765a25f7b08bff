package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-risk/internal/monitor"
	"github.com/wonny/aegis-risk/internal/orchestrator"
	"github.com/wonny/aegis-risk/internal/portfolio"
	"github.com/wonny/aegis-risk/internal/report"
	"github.com/wonny/aegis-risk/internal/risk"
	"github.com/wonny/aegis-risk/internal/scheduler"
	"github.com/wonny/aegis-risk/pkg/logger"
)

type fakeTicker struct {
	err error
	got int64
}

func (f *fakeTicker) RunMonitoringTick(_ context.Context, id int64) (*orchestrator.TickResult, error) {
	f.got = id
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.TickResult{PortfolioID: id, Update: monitor.Update{PortfolioID: id}}, nil
}

type fakeGenerator struct {
	err error
}

func (f *fakeGenerator) Generate(_ context.Context, id int64) (*report.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &report.Report{PortfolioID: id}, nil
}

type fakeDeleter struct {
	at    time.Time
	count int64
	err   error
}

func (f *fakeDeleter) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.at = now
	return f.count, f.err
}

func TestRiskMonitoringJob(t *testing.T) {
	tk := &fakeTicker{}
	job := NewRiskMonitoringJob(tk, 7, "", logger.Nop())

	assert.Equal(t, "risk_monitoring", job.Name())
	assert.Equal(t, "0 */5 * * * *", job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(7), tk.got)
}

func TestRiskMonitoringJob_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"invalid input", fmt.Errorf("stress: %w", risk.ErrInvalidInput), true},
		{"unknown portfolio", portfolio.ErrPortfolioNotFound, true},
		{"no prices", orchestrator.ErrNoPrices, false},
		{"transient", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewRiskMonitoringJob(&fakeTicker{err: tt.err}, 1, "@hourly", logger.Nop())
			err := job.Run(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.permanent, scheduler.IsPermanent(err))
		})
	}
}

func TestRiskReportJob(t *testing.T) {
	job := NewRiskReportJob(&fakeGenerator{}, 1, "", logger.Nop())
	assert.Equal(t, "risk_report", job.Name())
	assert.Equal(t, "0 0 18 * * *", job.Schedule())
	require.NoError(t, job.Run(context.Background()))

	failing := NewRiskReportJob(&fakeGenerator{err: portfolio.ErrPortfolioNotFound}, 1, "", logger.Nop())
	err := failing.Run(context.Background())
	assert.True(t, scheduler.IsPermanent(err))
}

func TestScenarioExpiryJob(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	del := &fakeDeleter{count: 2}
	job := NewScenarioExpiryJob(del, "0 30 * * * *", logger.Nop())
	job.now = func() time.Time { return now }

	assert.Equal(t, "scenario_expiry", job.Name())
	assert.Equal(t, "0 30 * * * *", job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.True(t, del.at.Equal(now))

	del.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))
}

func TestJobsRunUnderScheduler(t *testing.T) {
	s := scheduler.New(logger.Nop()).WithRetry(3, time.Millisecond)
	require.NoError(t, s.AddJob(NewRiskMonitoringJob(&fakeTicker{err: portfolio.ErrPortfolioNotFound}, 1, "", logger.Nop())))

	res, err := s.RunJobSync(context.Background(), "risk_monitoring")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
}
