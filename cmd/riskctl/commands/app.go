package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-risk/internal/api"
	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/monitor"
	"github.com/wonny/aegis-risk/internal/notify"
	"github.com/wonny/aegis-risk/internal/orchestrator"
	"github.com/wonny/aegis-risk/internal/portfolio"
	"github.com/wonny/aegis-risk/internal/report"
	"github.com/wonny/aegis-risk/internal/risk"
	"github.com/wonny/aegis-risk/internal/scenario"
	"github.com/wonny/aegis-risk/internal/scheduler"
	"github.com/wonny/aegis-risk/internal/scheduler/jobs"
	"github.com/wonny/aegis-risk/internal/store"
	"github.com/wonny/aegis-risk/internal/stress"
	"github.com/wonny/aegis-risk/pkg/config"
	"github.com/wonny/aegis-risk/pkg/database"
	"github.com/wonny/aegis-risk/pkg/logger"
	"github.com/wonny/aegis-risk/pkg/redis"
)

// errNoPortfolioSource is returned when neither the database nor a portfolio file is configured
var errNoPortfolioSource = errors.New("no portfolio source: set STORE_ENABLED=true or RISK_PORTFOLIO_FILE")

// portfolioSource serves positions, prices and history
type portfolioSource interface {
	contracts.PositionSource
	contracts.HistorySource
}

// appOptions tweak how the application graph is built
type appOptions struct {
	cfg           *config.Config // loaded from the environment when nil
	log           *logger.Logger
	portfolioFile string   // overrides RISK_PORTFOLIO_FILE
	hub           *api.Hub // optional websocket broadcaster
}

// app is the wired application graph shared by the commands
type app struct {
	cfg *config.Config
	log *logger.Logger

	db    *database.DB // nil when the store is disabled
	cache *redis.Client

	calc       *risk.Calculator
	engine     *stress.Engine
	monitor    *monitor.Monitor
	dispatcher *notify.Dispatcher

	source    portfolioSource
	catalog   *scenario.Catalog
	scenarios store.ScenarioStore // nil when the store is disabled
	results   *store.StressResultRepository
	alerts    *store.AlertRepository

	service *orchestrator.Service
	reports *report.Generator

	closers []func()
}

// loadConfig loads configuration and builds the logger
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// calculatorFor builds the risk calculator and stress engine from config
func calculatorFor(cfg *config.Config, log *logger.Logger) (*risk.Calculator, *stress.Engine, error) {
	zmode, err := risk.ParseZScoreMode(cfg.Risk.ZScoreMode)
	if err != nil {
		return nil, nil, err
	}
	mc := risk.Independent
	if cfg.Risk.Correlated {
		mc = risk.Cholesky
	}

	calc := risk.NewCalculator(risk.Options{
		ZScore:     zmode,
		MonteCarlo: mc,
		Seed:       cfg.Risk.MonteCarloSeed,
		Workers:    cfg.Risk.MonteCarloWorkers,
	}, log)

	engine := stress.NewEngine(calc, stress.Options{
		Runs:    cfg.Risk.MonteCarloRuns,
		Seed:    cfg.Risk.MonteCarloSeed,
		Workers: cfg.Risk.MonteCarloWorkers,
	}, log)

	return calc, engine, nil
}

// loadCatalog merges the optional scenario file over the standard scenarios
func loadCatalog(cfg *config.Config, log *logger.Logger) (*scenario.Catalog, error) {
	catalog := scenario.StandardCatalog()
	if cfg.Risk.ScenarioFile == "" {
		return catalog, nil
	}

	extra, hash, err := scenario.LoadFile(cfg.Risk.ScenarioFile)
	if err != nil {
		return nil, err
	}
	merged, err := catalog.With(extra...)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"file":      cfg.Risk.ScenarioFile,
		"scenarios": len(extra),
		"hash":      hash,
	}).Info("Loaded scenario file")

	return merged, nil
}

// newApp wires every component. Callers must call close.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, log := opts.cfg, opts.log
	if cfg == nil || log == nil {
		var err error
		if cfg, log, err = loadConfig(); err != nil {
			return nil, err
		}
	}
	a := &app{cfg: cfg, log: log}

	if err := a.init(ctx, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, opts appOptions) error {
	cfg, log := a.cfg, a.log

	// 1. Calculator and stress engine
	calc, engine, err := calculatorFor(cfg, log)
	if err != nil {
		return err
	}
	a.calc, a.engine = calc, engine

	// 2. Scenario catalog
	if a.catalog, err = loadCatalog(cfg, log); err != nil {
		return err
	}

	// 3. Database
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, db.Close)

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		log.Info("Connected to database")
	}

	// 4. Redis
	cache, err := redis.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	a.cache = cache
	a.closers = append(a.closers, func() { _ = cache.Close() })

	// 5. Portfolio source
	file := opts.portfolioFile
	if file == "" {
		file = cfg.Risk.PortfolioFile
	}
	switch {
	case file != "":
		src, err := portfolio.LoadFile(file)
		if err != nil {
			return err
		}
		a.source = src
	case a.db != nil:
		a.source = portfolio.NewRepository(a.db.Pool)
	default:
		return errNoPortfolioSource
	}

	// 6. Stores
	scenarios := orchestrator.FromCatalog(a.catalog)
	if a.db != nil {
		a.scenarios = store.NewCachedScenarioRepository(store.NewScenarioRepository(a.db.Pool), cache, log)
		if err := a.seedScenarios(ctx); err != nil {
			return err
		}
		scenarios = orchestrator.FromStore(a.scenarios)
		a.results = store.NewStressResultRepository(a.db.Pool)
		a.alerts = store.NewAlertRepository(a.db.Pool)
	}

	// 7. Notifications
	a.dispatcher = a.newDispatcher()

	// 8. Monitor
	a.monitor = monitor.New(monitor.Options{
		MaxHistorySize: cfg.Risk.HistorySize,
		OnAlert:        notify.AlertHook(a.dispatcher, cfg.Notify.Recipients),
	}, log)
	if err := orchestrator.ConfigureLimits(a.monitor, cfg.Risk.Limits); err != nil {
		return err
	}

	// 9. Orchestrator and reports
	deps := orchestrator.Deps{
		Positions: a.source,
		Scenarios: scenarios,
		Engine:    engine,
		Monitor:   a.monitor,
	}
	rc := report.Config{
		Calculator: calc,
		Monitor:    a.monitor,
		Positions:  a.source,
		History:    a.source,
		Sender:     a.dispatcher,
		Recipients: cfg.Notify.Recipients,
	}
	if a.db != nil {
		deps.Results = a.results
		deps.Alerts = a.alerts
		rc.Results = a.results
	}
	if opts.hub != nil {
		deps.Stream = opts.hub
	}
	a.service = orchestrator.New(deps, log)
	a.reports = report.NewGenerator(rc, log)

	if _, err := a.service.RestoreAlerts(ctx, cfg.Risk.PortfolioID); err != nil {
		log.WithError(err).Warn("Failed to restore open alerts")
	}

	return nil
}

// seedScenarios stores the catalog when the scenario table is empty
func (a *app) seedScenarios(ctx context.Context) error {
	n, err := a.scenarios.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, s := range a.catalog.All() {
		if err := a.scenarios.Save(ctx, s); err != nil {
			return err
		}
	}
	a.log.WithField("count", a.catalog.Len()).Info("Seeded scenario store")
	return nil
}

// newDispatcher builds the notification dispatcher and its sinks
func (a *app) newDispatcher() *notify.Dispatcher {
	cfg, log := a.cfg, a.log

	sinks := []contracts.Notifier{notify.NewLogSink(log)}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL, log))
	}
	if cfg.Kafka.Enabled {
		k := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic, log)
		sinks = append(sinks, k)
		a.closers = append(a.closers, func() { _ = k.Close() })
	}

	var limiter notify.RecipientLimiter
	if a.cache.Enabled() && cfg.Notify.RecipientLimit > 0 {
		limiter = notify.NewRedisRecipientLimiter(redis.NewRateLimiter(a.cache, "aegis-risk"), cfg.Notify.RecipientLimit)
	}

	d := notify.NewDispatcher(notify.DispatcherConfig{
		RatePerSec:  cfg.Notify.RatePerSec,
		QueueSize:   cfg.Notify.QueueSize,
		SendTimeout: 10 * time.Second,
	}, limiter, log, sinks...)

	d.Start(context.Background())
	// closers run in reverse, so the queue drains before sinks are closed
	a.closers = append(a.closers, d.Stop)

	return d
}

// newScheduler registers the risk jobs
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)
	id := a.cfg.Risk.PortfolioID

	if err := sched.AddJob(jobs.NewRiskMonitoringJob(a.service, id, a.cfg.Risk.MonitorSchedule, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewRiskReportJob(a.reports, id, a.cfg.Risk.ReportSchedule, a.log)); err != nil {
		return nil, err
	}
	if a.scenarios != nil {
		if err := sched.AddJob(jobs.NewScenarioExpiryJob(a.scenarios, a.cfg.Risk.ExpirySchedule, a.log)); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
