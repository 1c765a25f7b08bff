package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestInit_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestRecordStressRun(t *testing.T) {
	before := testutil.ToFloat64(StressRuns.WithLabelValues("single", "error"))
	RecordStressRun("single", time.Millisecond, errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(StressRuns.WithLabelValues("single", "error")))
}

func TestRecordRiskLevels(t *testing.T) {
	RecordRiskLevels("9",
		map[string]decimal.Decimal{"VAR_99": decimal.NewFromInt(850)},
		map[string]string{"VAR_99": "YELLOW", "OVERALL": "RED"},
		85)

	assert.Equal(t, 850.0, testutil.ToFloat64(RiskLevel.WithLabelValues("9", "VAR_99")))
	assert.Equal(t, 1.0, testutil.ToFloat64(RiskStatus.WithLabelValues("9", "VAR_99")))
	assert.Equal(t, 2.0, testutil.ToFloat64(RiskStatus.WithLabelValues("9", "OVERALL")))
	assert.Equal(t, 85.0, testutil.ToFloat64(OverallRiskScore.WithLabelValues("9")))
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	Init()
	RecordAlert("VAR_99", "HIGH")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "aegis_risk_alerts_total")
}
