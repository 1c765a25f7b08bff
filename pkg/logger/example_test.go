package logger_test

import (
	"errors"

	"github.com/wonny/aegis-risk/pkg/config"
	"github.com/wonny/aegis-risk/pkg/logger"
)

// Example_withFields demonstrates structured logging with component tags
func Example_withFields() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	// Create logger (SSOT)
	log := logger.New(cfg)

	monitorLog := log.Component("monitor")
	monitorLog.WithFields(map[string]interface{}{
		"portfolio_id": 1,
		"risk_type":    "VAR_99",
		"status":       "YELLOW",
	}).Info("Risk status changed")

	// Attach an error
	monitorLog.WithError(errors.New("connection refused")).Warn("Failed to persist alert")
}
