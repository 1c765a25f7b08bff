package jobs

import (
	"context"
	"errors"

	"github.com/wonny/aegis-risk/internal/monitor"
	"github.com/wonny/aegis-risk/internal/orchestrator"
	"github.com/wonny/aegis-risk/internal/portfolio"
	"github.com/wonny/aegis-risk/internal/report"
	"github.com/wonny/aegis-risk/internal/risk"
	"github.com/wonny/aegis-risk/internal/scenario"
	"github.com/wonny/aegis-risk/internal/scheduler"
	"github.com/wonny/aegis-risk/internal/stress"
	"github.com/wonny/aegis-risk/pkg/logger"
)

// classify marks input errors as permanent; retrying the same portfolio cannot fix them
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, risk.ErrInvalidInput),
		errors.Is(err, stress.ErrInvalidInput),
		errors.Is(err, scenario.ErrInvalidScenario),
		errors.Is(err, monitor.ErrInvalidLimit),
		errors.Is(err, portfolio.ErrPortfolioNotFound):
		return scheduler.Permanent(err)
	default:
		return err
	}
}

// ticker runs one monitoring pass
type ticker interface {
	RunMonitoringTick(ctx context.Context, portfolioID int64) (*orchestrator.TickResult, error)
}

// RiskMonitoringJob stresses the portfolio and refreshes the risk monitor
type RiskMonitoringJob struct {
	svc         ticker
	portfolioID int64
	schedule    string
	logger      *logger.Logger
}

// NewRiskMonitoringJob creates a new monitoring job
func NewRiskMonitoringJob(svc ticker, portfolioID int64, schedule string, log *logger.Logger) *RiskMonitoringJob {
	if schedule == "" {
		schedule = "0 */5 * * * *" // Every 5 minutes
	}
	return &RiskMonitoringJob{
		svc:         svc,
		portfolioID: portfolioID,
		schedule:    schedule,
		logger:      log,
	}
}

// Name returns the job name
func (j *RiskMonitoringJob) Name() string {
	return "risk_monitoring"
}

// Schedule returns the cron schedule
func (j *RiskMonitoringJob) Schedule() string {
	return j.schedule
}

// Run executes one monitoring tick
func (j *RiskMonitoringJob) Run(ctx context.Context) error {
	res, err := j.svc.RunMonitoringTick(ctx, j.portfolioID)
	if err != nil {
		return classify(err)
	}

	j.logger.WithFields(map[string]interface{}{
		"portfolio_id": j.portfolioID,
		"risk_score":   res.Update.OverallRiskScore,
		"new_alerts":   len(res.Update.NewAlerts),
		"duration":     res.Duration,
	}).Info("Risk monitoring tick completed")

	return nil
}

// generator builds and sends a risk report
type generator interface {
	Generate(ctx context.Context, portfolioID int64) (*report.Report, error)
}

// RiskReportJob sends the daily risk report
type RiskReportJob struct {
	gen         generator
	portfolioID int64
	schedule    string
	logger      *logger.Logger
}

// NewRiskReportJob creates a new report job
func NewRiskReportJob(gen generator, portfolioID int64, schedule string, log *logger.Logger) *RiskReportJob {
	if schedule == "" {
		schedule = "0 0 18 * * *" // Every day at 6 PM
	}
	return &RiskReportJob{
		gen:         gen,
		portfolioID: portfolioID,
		schedule:    schedule,
		logger:      log,
	}
}

// Name returns the job name
func (j *RiskReportJob) Name() string {
	return "risk_report"
}

// Schedule returns the cron schedule
func (j *RiskReportJob) Schedule() string {
	return j.schedule
}

// Run generates and sends the report
func (j *RiskReportJob) Run(ctx context.Context) error {
	rep, err := j.gen.Generate(ctx, j.portfolioID)
	if err != nil {
		return classify(err)
	}

	j.logger.WithFields(map[string]interface{}{
		"portfolio_id": j.portfolioID,
		"violations":   len(rep.Violations),
	}).Info("Risk report generated")

	return nil
}
