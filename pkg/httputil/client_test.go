package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-risk/pkg/logger"
)

func TestNew(t *testing.T) {
	client := New(logger.Nop())
	assert.Equal(t, 3, client.retryConfig.MaxRetries)
	assert.True(t, client.retryConfig.Enabled)

	client = NewWithTimeout(logger.Nop(), 2*time.Second)
	assert.Equal(t, 2*time.Second, client.httpClient.Timeout)
}

func TestPostJSON_RetriesWithBody(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "VAR_99", payload["risk_type"])

		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(logger.Nop()).WithRetry(3, time.Millisecond)
	resp, err := client.PostJSON(context.Background(), server.URL, map[string]string{"risk_type": "VAR_99"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPostJSON_NoRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(logger.Nop()).DisableRetry()
	resp, err := client.PostJSON(context.Background(), server.URL, map[string]string{})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(500))
	assert.True(t, IsRetryableError(503))
	assert.True(t, IsRetryableError(429))
	assert.False(t, IsRetryableError(200))
	assert.False(t, IsRetryableError(404))
}
