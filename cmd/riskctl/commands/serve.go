package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-risk/internal/api"
	"github.com/wonny/aegis-risk/internal/api/handlers"
	"github.com/wonny/aegis-risk/internal/metrics"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the risk service",
	Long: `Run the scheduler and the ops HTTP server in one process.

Endpoints:
  GET  /health                              - Health check
  GET  /metrics                             - Prometheus metrics
  GET  /monitor/status                      - Monitor snapshot, violations, recommendations
  GET  /monitor/history                     - Risk level history
  GET  /monitor/alerts                      - Active alerts by priority
  POST /monitor/alerts/{id}/acknowledge     - Acknowledge an alert
  POST /monitor/alerts/{id}/resolve         - Resolve an alert
  POST /monitor/tick                        - Run a monitoring tick now
  GET  /monitor/stream                      - Websocket stream of monitor updates

Example:
  go run ./cmd/riskctl serve
  go run ./cmd/riskctl serve --port 9191`,
	RunE: runServe,
}

var (
	servePort string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "ops server port (default: METRICS_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Stream hub, shared by the orchestrator and the router
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	hub := api.NewHub(log)
	go hub.Run(ctx)

	if servePort != "" {
		cfg.MetricsPort = servePort
	}

	// 2. Application graph
	a, err := newApp(ctx, appOptions{cfg: cfg, log: log, hub: hub})
	if err != nil {
		return err
	}
	defer a.close()

	// 3. Metrics
	if cfg.MetricsEnabled {
		metrics.Init()
	}

	// 4. Scheduler
	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// 5. Ops server
	monitorHandler := handlers.NewMonitorHandler(a.service, cfg.Risk.PortfolioID, log)
	router := api.NewRouter(monitorHandler, hub, log)
	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Error("Ops server stopped")
			cancel()
		}
	}()
	sched.Start()

	log.WithFields(map[string]interface{}{
		"port":         cfg.MetricsPort,
		"portfolio_id": cfg.Risk.PortfolioID,
		"jobs":         sched.GetAllJobs(),
		"sinks":        a.dispatcher.Sinks(),
	}).Info("Risk service started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down risk service...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	hub.Close()

	log.Info("Risk service stopped")
	return nil
}
