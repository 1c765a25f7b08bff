package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/monitor"
	"github.com/wonny/aegis-risk/internal/orchestrator"
	"github.com/wonny/aegis-risk/pkg/logger"
)

type fakeService struct {
	m       *monitor.Monitor
	ticks   []int64
	tickErr error
}

func (f *fakeService) Monitor() *monitor.Monitor { return f.m }

func (f *fakeService) RunMonitoringTick(_ context.Context, id int64) (*orchestrator.TickResult, error) {
	f.ticks = append(f.ticks, id)
	if f.tickErr != nil {
		return nil, f.tickErr
	}
	return &orchestrator.TickResult{PortfolioID: id, Update: monitor.Update{PortfolioID: id}}, nil
}

func (f *fakeService) AcknowledgeAlert(_ context.Context, id string) (monitor.Alert, error) {
	return f.m.AcknowledgeAlert(id)
}

func (f *fakeService) ResolveAlert(_ context.Context, id string) (monitor.Alert, error) {
	return f.m.ResolveAlert(id)
}

func setup(t *testing.T) (*fakeService, http.Handler) {
	t.Helper()
	m := monitor.New(monitor.Options{}, nil)
	require.NoError(t, m.SetRiskLimit(monitor.RiskConcentration, decimal.RequireFromString("0.1"), 0.5))
	m.UpdateRiskLevels(1, []contracts.Position{
		{PortfolioID: 1, InstrumentKey: "A", Quantity: decimal.NewFromInt(10)},
	}, contracts.PriceMap{"A": decimal.NewFromInt(10)}, nil)

	svc := &fakeService{m: m}
	h := NewMonitorHandler(svc, 1, logger.Nop())

	r := mux.NewRouter()
	r.HandleFunc("/monitor/status", h.GetStatus).Methods("GET")
	r.HandleFunc("/monitor/history", h.GetHistory).Methods("GET")
	r.HandleFunc("/monitor/alerts", h.GetAlerts).Methods("GET")
	r.HandleFunc("/monitor/alerts/{id}/acknowledge", h.AcknowledgeAlert).Methods("POST")
	r.HandleFunc("/monitor/alerts/{id}/resolve", h.ResolveAlert).Methods("POST")
	r.HandleFunc("/monitor/tick", h.RunTick).Methods("POST")
	return svc, r
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestGetStatus(t *testing.T) {
	_, h := setup(t)
	rec := do(t, h, "GET", "/monitor/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	statuses := body["statuses"].(map[string]interface{})
	assert.Equal(t, "RED", statuses[monitor.Overall])
	assert.Len(t, body["violations"], 1)
	assert.NotEmpty(t, body["recommendations"])
	assert.Len(t, body["active_alerts"], 1)
}

func TestGetHistory(t *testing.T) {
	_, h := setup(t)
	rec := do(t, h, "GET", "/monitor/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []monitor.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}

func TestAlertTransitions(t *testing.T) {
	svc, h := setup(t)
	id := svc.m.ActiveAlerts()[0].ID

	rec := do(t, h, "GET", "/monitor/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []monitor.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)

	rec = do(t, h, "POST", "/monitor/alerts/"+id+"/acknowledge")
	require.Equal(t, http.StatusOK, rec.Code)
	var acked monitor.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acked))
	assert.Equal(t, monitor.AlertAcknowledged, acked.Status)

	rec = do(t, h, "POST", "/monitor/alerts/"+id+"/resolve")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "POST", "/monitor/alerts/"+id+"/resolve")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunTick(t *testing.T) {
	svc, h := setup(t)

	rec := do(t, h, "POST", "/monitor/tick")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, "POST", "/monitor/tick?portfolio_id=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 5}, svc.ticks)

	rec = do(t, h, "POST", "/monitor/tick?portfolio_id=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.tickErr = errors.New("db down")
	rec = do(t, h, "POST", "/monitor/tick")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
