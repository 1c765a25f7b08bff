package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-risk/internal/monitor"
	"github.com/wonny/aegis-risk/internal/orchestrator"
	"github.com/wonny/aegis-risk/pkg/logger"
)

// MonitorService is the part of orchestrator.Service used by the handlers
type MonitorService interface {
	Monitor() *monitor.Monitor
	RunMonitoringTick(ctx context.Context, portfolioID int64) (*orchestrator.TickResult, error)
	AcknowledgeAlert(ctx context.Context, id string) (monitor.Alert, error)
	ResolveAlert(ctx context.Context, id string) (monitor.Alert, error)
}

// MonitorHandler serves the real-time risk monitor
// SSOT: monitor API handlers live in this struct only
type MonitorHandler struct {
	svc              MonitorService
	defaultPortfolio int64
	logger           *logger.Logger
}

// NewMonitorHandler creates a new monitor handler
func NewMonitorHandler(svc MonitorService, defaultPortfolio int64, log *logger.Logger) *MonitorHandler {
	return &MonitorHandler{svc: svc, defaultPortfolio: defaultPortfolio, logger: log.Component("monitor_api")}
}

// StatusResponse is the body of GET /monitor/status
type StatusResponse struct {
	monitor.Snapshot
	Violations      []monitor.Violation `json:"violations"`
	Recommendations []string            `json:"recommendations"`
}

// GetStatus returns the monitor snapshot with current violations
// GET /monitor/status
func (h *MonitorHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	m := h.svc.Monitor()
	respondJSON(w, http.StatusOK, StatusResponse{
		Snapshot:        m.Snapshot(),
		Violations:      m.CheckRiskLimitViolations(),
		Recommendations: m.GenerateAutomaticResponseRecommendations(),
	})
}

// GetHistory returns the recorded risk levels, oldest first
// GET /monitor/history
func (h *MonitorHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Monitor().History())
}

// GetAlerts returns open alerts, most urgent first
// GET /monitor/alerts
func (h *MonitorHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.svc.Monitor().ActiveAlerts()
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].PriorityScore() > alerts[j].PriorityScore()
	})
	respondJSON(w, http.StatusOK, alerts)
}

// AcknowledgeAlert marks an alert as seen
// POST /monitor/alerts/{id}/acknowledge
func (h *MonitorHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.AcknowledgeAlert)
}

// ResolveAlert closes an alert
// POST /monitor/alerts/{id}/resolve
func (h *MonitorHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.ResolveAlert)
}

func (h *MonitorHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (monitor.Alert, error)) {
	id := mux.Vars(r)["id"]
	alert, err := fn(r.Context(), id)
	switch {
	case errors.Is(err, monitor.ErrAlertNotFound):
		respondError(w, http.StatusNotFound, "Alert not found")
		return
	case err != nil && alert.ID == "":
		h.logger.WithError(err).WithField("alert_id", id).Error("Alert transition failed")
		respondError(w, http.StatusInternalServerError, "Failed to update alert")
		return
	case err != nil:
		// transition applied in memory, persistence failed
		h.logger.WithError(err).WithField("alert_id", id).Warn("Alert transition not persisted")
	}
	respondJSON(w, http.StatusOK, alert)
}

// RunTick runs one monitoring tick
// POST /monitor/tick?portfolio_id=1
func (h *MonitorHandler) RunTick(w http.ResponseWriter, r *http.Request) {
	portfolioID := h.defaultPortfolio
	if raw := r.URL.Query().Get("portfolio_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid portfolio_id")
			return
		}
		portfolioID = id
	}

	result, err := h.svc.RunMonitoringTick(r.Context(), portfolioID)
	if err != nil {
		h.logger.WithError(err).WithField("portfolio_id", portfolioID).Error("Monitoring tick failed")
		respondError(w, http.StatusInternalServerError, "Monitoring tick failed")
		return
	}
	respondJSON(w, http.StatusOK, result.Update)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
