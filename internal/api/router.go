package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-risk/internal/api/handlers"
	"github.com/wonny/aegis-risk/internal/metrics"
	"github.com/wonny/aegis-risk/pkg/logger"
)

// NewRouter creates and configures the HTTP router; hub may be nil to disable streaming
// SSOT: routes are declared in this function only
func NewRouter(monitorHandler *handlers.MonitorHandler, hub *Hub, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	m := r.PathPrefix("/monitor").Subrouter()
	m.HandleFunc("/status", monitorHandler.GetStatus).Methods("GET")
	m.HandleFunc("/history", monitorHandler.GetHistory).Methods("GET")
	m.HandleFunc("/alerts", monitorHandler.GetAlerts).Methods("GET")
	m.HandleFunc("/alerts/{id}/acknowledge", monitorHandler.AcknowledgeAlert).Methods("POST")
	m.HandleFunc("/alerts/{id}/resolve", monitorHandler.ResolveAlert).Methods("POST")
	m.HandleFunc("/tick", monitorHandler.RunTick).Methods("POST")
	if hub != nil {
		m.HandleFunc("/stream", hub.ServeWS).Methods("GET")
	}

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "aegis-risk",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
