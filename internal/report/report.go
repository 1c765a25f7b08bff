package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/monitor"
	"github.com/wonny/aegis-risk/internal/risk"
	"github.com/wonny/aegis-risk/internal/stress"
	"github.com/wonny/aegis-risk/pkg/logger"
)

// DefaultHistoryDays is the look-back used for the historical risk summary
const DefaultHistoryDays = 252

// =============================================================================
// Collaborators
// =============================================================================

// LatestResults returns the newest stress results of a portfolio
type LatestResults interface {
	Latest(ctx context.Context, portfolioID int64, limit int) ([]*stress.Result, error)
}

// Sender queues a notification; it must not block
type Sender interface {
	Enqueue(n contracts.Notification) bool
}

// Config wires a Generator. Results, History and Sender are optional.
type Config struct {
	Calculator  *risk.Calculator
	Monitor     *monitor.Monitor
	Positions   contracts.PositionSource
	History     contracts.HistorySource
	Results     LatestResults
	Sender      Sender
	Recipients  []string
	HistoryDays int
}

// =============================================================================
// Report types
// =============================================================================

// Report is a periodic summary of a portfolio's risk state
type Report struct {
	PortfolioID     int64               `json:"portfolio_id"`
	GeneratedAt     time.Time           `json:"generated_at"`
	PortfolioValue  decimal.Decimal     `json:"portfolio_value"`
	Monitor         monitor.Snapshot    `json:"monitor"`
	Violations      []monitor.Violation `json:"violations"`
	Recommendations []string            `json:"recommendations"`
	LatestStress    []*stress.Result    `json:"latest_stress,omitempty"`
	Historical      *HistoricalSummary  `json:"historical,omitempty"`
}

// HistoricalSummary is VaR, CVaR and drawdown over the portfolio's value history
type HistoricalSummary struct {
	SampleCount      int             `json:"sample_count"`
	VaR95            decimal.Decimal `json:"var_95"`
	VaR99            decimal.Decimal `json:"var_99"`
	CVaR95           decimal.Decimal `json:"cvar_95"`
	CVaR99           decimal.Decimal `json:"cvar_99"`
	MaxDrawdown      decimal.Decimal `json:"max_drawdown"`
	DrawdownDuration int             `json:"drawdown_duration"`
	SharpeRatio      float64         `json:"sharpe_ratio"`
}

// =============================================================================
// Generator
// =============================================================================

// Generator builds risk reports and sends them to recipients
// SSOT: risk reporting happens only here
type Generator struct {
	cfg Config
	log *logger.Logger
	now func() time.Time
}

// NewGenerator creates a report generator
func NewGenerator(cfg Config, log *logger.Logger) *Generator {
	if cfg.Calculator == nil {
		cfg.Calculator = risk.NewCalculator(risk.DefaultOptions(), log)
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = DefaultHistoryDays
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{cfg: cfg, log: log.Component("report"), now: time.Now}
}

// Generate builds the report for portfolioID and queues it for every recipient.
// Optional sections whose source fails are logged and left out.
func (g *Generator) Generate(ctx context.Context, portfolioID int64) (*Report, error) {
	positions, err := g.cfg.Positions.Positions(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	keys := contracts.InstrumentKeys(positions)
	prices, err := g.cfg.Positions.Prices(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}

	rep := &Report{
		PortfolioID:     portfolioID,
		GeneratedAt:     g.now(),
		PortfolioValue:  risk.PortfolioValue(positions, prices),
		Monitor:         g.cfg.Monitor.Snapshot(),
		Violations:      g.cfg.Monitor.CheckRiskLimitViolations(),
		Recommendations: g.cfg.Monitor.GenerateAutomaticResponseRecommendations(),
	}

	if g.cfg.Results != nil {
		latest, err := g.cfg.Results.Latest(ctx, portfolioID, 10)
		if err != nil {
			g.log.WithError(err).Warn("Failed to load latest stress results")
		} else {
			rep.LatestStress = latest
		}
	}

	if g.cfg.History != nil {
		history, err := g.cfg.History.PriceHistory(ctx, keys, g.cfg.HistoryDays)
		if err != nil {
			g.log.WithError(err).Warn("Failed to load price history")
		} else {
			rep.Historical = g.historical(positions, history, rep.PortfolioValue)
		}
	}

	g.send(rep)

	g.log.WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"violations":   len(rep.Violations),
		"recipients":   len(g.cfg.Recipients),
	}).Info("Risk report generated")

	return rep, nil
}

// historical revalues the portfolio along the common length of the price history
func (g *Generator) historical(positions []contracts.Position, history map[string][]decimal.Decimal, current decimal.Decimal) *HistoricalSummary {
	n := -1
	for _, series := range history {
		if n < 0 || len(series) < n {
			n = len(series)
		}
	}
	if n < 2 {
		return nil
	}

	values := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		snapshot := make(contracts.PriceMap, len(history))
		for k, series := range history {
			snapshot[k] = series[len(series)-n+i]
		}
		values[i] = risk.PortfolioValue(positions, snapshot)
	}

	returns := risk.Returns(values)
	if len(returns) == 0 {
		return nil
	}

	calc := g.cfg.Calculator
	r95, err := calc.HistoricalRisk(returns, current, 0.95)
	if err != nil {
		g.log.WithError(err).Warn("Historical risk at 95% failed")
		return nil
	}
	r99, err := calc.HistoricalRisk(returns, current, 0.99)
	if err != nil {
		g.log.WithError(err).Warn("Historical risk at 99% failed")
		return nil
	}
	dd := calc.MaxDrawdown(values)

	return &HistoricalSummary{
		SampleCount:      len(returns),
		VaR95:            r95.VaR,
		VaR99:            r99.VaR,
		CVaR95:           r95.CVaR,
		CVaR99:           r99.CVaR,
		MaxDrawdown:      dd.MaxDrawdown,
		DrawdownDuration: dd.Duration,
		SharpeRatio:      calc.SharpeRatio(returns, decimal.Zero),
	}
}

func (g *Generator) send(rep *Report) {
	if g.cfg.Sender == nil {
		return
	}
	subject := rep.Subject()
	body := rep.Text()
	for _, r := range g.cfg.Recipients {
		if !g.cfg.Sender.Enqueue(contracts.Notification{Recipient: r, Subject: subject, Body: body}) {
			g.log.WithField("recipient", r).Warn("Report notification not queued")
		}
	}
}

// Subject is the notification subject line
func (r *Report) Subject() string {
	overall := r.Monitor.Statuses[monitor.Overall]
	if overall == "" {
		overall = monitor.StatusGreen
	}
	return fmt.Sprintf("Risk report portfolio %d [%s] %s", r.PortfolioID, overall, r.GeneratedAt.UTC().Format("2006-01-02"))
}

// Text renders the report as plain text
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio %d risk report, %s\n", r.PortfolioID, r.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Portfolio value: %s\n\n", r.PortfolioValue.StringFixed(2))

	b.WriteString("Risk levels:\n")
	types := make([]string, 0, len(r.Monitor.RiskLevels))
	for rt := range r.Monitor.RiskLevels {
		types = append(types, rt)
	}
	sort.Strings(types)
	for _, rt := range types {
		fmt.Fprintf(&b, "  %-14s %-14s %s\n", rt, r.Monitor.RiskLevels[rt].StringFixed(4), r.Monitor.Statuses[rt])
	}

	if len(r.Violations) > 0 {
		b.WriteString("\nLimit violations:\n")
		for _, v := range r.Violations {
			fmt.Fprintf(&b, "  %s: %s over limit %s [%s]\n", v.RiskType, v.CurrentLevel.StringFixed(4), v.Limit.StringFixed(4), v.Severity)
		}
	}

	if len(r.Monitor.ActiveAlerts) > 0 {
		b.WriteString("\nOpen alerts:\n")
		for _, a := range r.Monitor.ActiveAlerts {
			fmt.Fprintf(&b, "  %s\n", a.Summary())
		}
	}

	if h := r.Historical; h != nil {
		b.WriteString("\nHistorical risk:\n")
		fmt.Fprintf(&b, "  samples %d, VaR95 %s, VaR99 %s, CVaR95 %s, CVaR99 %s\n",
			h.SampleCount, h.VaR95.StringFixed(2), h.VaR99.StringFixed(2), h.CVaR95.StringFixed(2), h.CVaR99.StringFixed(2))
		fmt.Fprintf(&b, "  max drawdown %s over %d periods, sharpe %.2f\n",
			h.MaxDrawdown.StringFixed(4), h.DrawdownDuration, h.SharpeRatio)
	}

	if len(r.LatestStress) > 0 {
		b.WriteString("\nLatest stress tests:\n")
		for _, s := range r.LatestStress {
			fmt.Fprintf(&b, "  %s loss %s VaR99 %s level %s\n",
				s.ScenarioID, s.PortfolioLoss.StringFixed(2), s.VaR99.StringFixed(2), s.RiskLevel())
		}
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}
	return b.String()
}
