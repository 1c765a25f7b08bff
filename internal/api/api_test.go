package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-risk/internal/api/handlers"
	"github.com/wonny/aegis-risk/internal/monitor"
	"github.com/wonny/aegis-risk/internal/orchestrator"
	"github.com/wonny/aegis-risk/pkg/logger"
)

type stubService struct{ m *monitor.Monitor }

func (s stubService) Monitor() *monitor.Monitor { return s.m }
func (s stubService) RunMonitoringTick(context.Context, int64) (*orchestrator.TickResult, error) {
	return &orchestrator.TickResult{}, nil
}
func (s stubService) AcknowledgeAlert(_ context.Context, id string) (monitor.Alert, error) {
	return s.m.AcknowledgeAlert(id)
}
func (s stubService) ResolveAlert(_ context.Context, id string) (monitor.Alert, error) {
	return s.m.ResolveAlert(id)
}

func newTestRouter(hub *Hub) http.Handler {
	svc := stubService{m: monitor.New(monitor.Options{}, nil)}
	return NewRouter(handlers.NewMonitorHandler(svc, 1, logger.Nop()), hub, logger.Nop())
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/monitor/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := httptest.NewServer(newTestRouter(hub))
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/monitor/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(monitor.Update{PortfolioID: 42, OverallRiskScore: 55})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got monitor.Update
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, int64(42), got.PortfolioID)
	assert.Equal(t, 55, got.OverallRiskScore)
}

func TestHubCloseDisconnects(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := httptest.NewServer(newTestRouter(hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/monitor/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Zero(t, hub.Count())
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
