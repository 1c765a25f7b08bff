package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	// Stress metrics
	StressRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_risk_stress_runs_total",
			Help: "Total number of stress test runs",
		},
		[]string{"kind", "status"}, // kind: single|monte_carlo|historical, status: success|error
	)

	StressDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aegis_risk_stress_duration_seconds",
			Help:    "Stress test duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	ScenarioLoss = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aegis_risk_scenario_loss",
			Help: "Latest portfolio loss per stress scenario",
		},
		[]string{"portfolio", "scenario"},
	)

	// Monitor metrics
	RiskLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aegis_risk_level",
			Help: "Current risk level per risk type",
		},
		[]string{"portfolio", "risk_type"},
	)

	RiskStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aegis_risk_status",
			Help: "Current risk status per risk type (0 green, 1 yellow, 2 red)",
		},
		[]string{"portfolio", "risk_type"},
	)

	OverallRiskScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aegis_risk_overall_score",
			Help: "Overall risk score 0..100",
		},
		[]string{"portfolio"},
	)

	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_risk_alerts_total",
			Help: "Total number of risk alerts raised",
		},
		[]string{"risk_type", "severity"},
	)

	// Notification metrics
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_risk_notifications_total",
			Help: "Total notification deliveries",
		},
		[]string{"sink", "status"}, // status: success|error|dropped|throttled
	)

	// Job metrics
	JobExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_risk_job_executions_total",
			Help: "Total number of scheduled job executions",
		},
		[]string{"job", "status"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aegis_risk_job_duration_seconds",
			Help:    "Scheduled job duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"job"},
	)

	// Ops server
	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aegis_risk_stream_subscribers",
			Help: "Connected monitor stream websocket clients",
		},
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry; safe to call more than once
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(StressRuns)
		prometheus.MustRegister(StressDuration)
		prometheus.MustRegister(ScenarioLoss)

		prometheus.MustRegister(RiskLevel)
		prometheus.MustRegister(RiskStatus)
		prometheus.MustRegister(OverallRiskScore)
		prometheus.MustRegister(AlertsRaised)

		prometheus.MustRegister(Notifications)

		prometheus.MustRegister(JobExecutions)
		prometheus.MustRegister(JobDuration)

		prometheus.MustRegister(StreamSubscribers)
	})
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordStressRun records one stress run
func RecordStressRun(kind string, duration time.Duration, err error) {
	StressRuns.WithLabelValues(kind, status(err)).Inc()
	StressDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordScenarioLoss sets the latest loss for a scenario
func RecordScenarioLoss(portfolio, scenario string, loss decimal.Decimal) {
	ScenarioLoss.WithLabelValues(portfolio, scenario).Set(loss.InexactFloat64())
}

// RecordRiskLevels sets levels and statuses for a portfolio. status values: GREEN, YELLOW, RED.
func RecordRiskLevels(portfolio string, levels map[string]decimal.Decimal, statuses map[string]string, overall int) {
	for rt, v := range levels {
		RiskLevel.WithLabelValues(portfolio, rt).Set(v.InexactFloat64())
	}
	for rt, s := range statuses {
		RiskStatus.WithLabelValues(portfolio, rt).Set(statusValue(s))
	}
	OverallRiskScore.WithLabelValues(portfolio).Set(float64(overall))
}

func statusValue(s string) float64 {
	switch s {
	case "RED":
		return 2
	case "YELLOW":
		return 1
	}
	return 0
}

// RecordAlert counts a raised alert
func RecordAlert(riskType, severity string) {
	AlertsRaised.WithLabelValues(riskType, severity).Inc()
}

// RecordNotification counts a delivery outcome for a sink
func RecordNotification(sink, outcome string) {
	Notifications.WithLabelValues(sink, outcome).Inc()
}

// RecordJobExecution records one scheduled job run
func RecordJobExecution(job string, duration time.Duration, err error) {
	JobExecutions.WithLabelValues(job, status(err)).Inc()
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}
