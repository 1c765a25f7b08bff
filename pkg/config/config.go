package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// SSOT: every environment variable is read here and nowhere else
type Config struct {
	Env string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Risk engine
	Risk RiskConfig

	// Notifications
	Notify NotifyConfig

	// Kafka alert stream
	Kafka KafkaConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL     string
	Enabled bool

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RiskConfig holds risk engine settings
type RiskConfig struct {
	PortfolioID int64

	MonteCarloRuns    int
	MonteCarloSeed    int64 // 0 = seeded from clock
	MonteCarloWorkers int
	Correlated        bool   // Cholesky-correlated draws in Monte Carlo VaR
	ZScoreMode        string // table, continuous

	HistorySize int

	MonitorSchedule string
	ReportSchedule  string
	ExpirySchedule  string

	ScenarioFile string // optional YAML catalog merged over the standard scenarios
	PortfolioFile string // JSON portfolio used when the database is disabled

	Limits []RiskLimitConfig
}

// RiskLimitConfig is one RISK_LIMITS entry (TYPE=limit:threshold)
type RiskLimitConfig struct {
	RiskType  string
	Limit     float64
	Threshold float64
}

// NotifyConfig holds notification sink settings
type NotifyConfig struct {
	Recipients     []string
	WebhookURL     string
	RatePerSec     float64
	RecipientLimit int // per recipient per hour, enforced through Redis
	QueueSize      int
}

// KafkaConfig holds Kafka producer settings
type KafkaConfig struct {
	Brokers    []string
	AlertTopic string
	Enabled    bool
}

// Load reads configuration from environment variables
// SSOT: only this function calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	limits, err := parseRiskLimits(getEnv("RISK_LIMITS", "VAR_99=100000:0.8,CVAR=150000:0.8,MAX_DRAWDOWN=0.25:0.8,CONCENTRATION=0.4:0.75,LIQUIDITY=0.1:0.8"))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Enabled:         getEnvAsBool("STORE_ENABLED", false),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Risk: RiskConfig{
			PortfolioID:       getEnvAsInt64("RISK_PORTFOLIO_ID", 1),
			MonteCarloRuns:    getEnvAsInt("RISK_MC_RUNS", 10000),
			MonteCarloSeed:    getEnvAsInt64("RISK_MC_SEED", 0),
			MonteCarloWorkers: getEnvAsInt("RISK_MC_WORKERS", runtime.NumCPU()),
			Correlated:        getEnvAsBool("RISK_MC_CORRELATED", false),
			ZScoreMode:        getEnv("RISK_ZSCORE_MODE", "table"),
			HistorySize:       getEnvAsInt("RISK_HISTORY_SIZE", 1000),
			MonitorSchedule:   getEnv("RISK_MONITOR_SCHEDULE", "0 */5 * * * *"),
			ReportSchedule:    getEnv("RISK_REPORT_SCHEDULE", "0 0 18 * * *"),
			ExpirySchedule:    getEnv("RISK_EXPIRY_SCHEDULE", "0 0 * * * *"),
			ScenarioFile:      getEnv("RISK_SCENARIO_FILE", ""),
			PortfolioFile:     getEnv("RISK_PORTFOLIO_FILE", ""),
			Limits:            limits,
		},

		Notify: NotifyConfig{
			Recipients:     getEnvAsSlice("NOTIFY_RECIPIENTS", nil),
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			RatePerSec:     getEnvAsFloat("NOTIFY_RATE_PER_SEC", 5),
			RecipientLimit: getEnvAsInt("NOTIFY_RECIPIENT_LIMIT", 30),
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		},

		Kafka: KafkaConfig{
			Brokers:    getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			AlertTopic: getEnv("KAFKA_ALERT_TOPIC", "risk.alerts"),
			Enabled:    getEnvAsBool("KAFKA_ENABLED", false),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_ENABLED=true")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Risk.MonteCarloRuns <= 0 {
		return fmt.Errorf("RISK_MC_RUNS must be > 0")
	}
	if c.Risk.MonteCarloWorkers <= 0 {
		return fmt.Errorf("RISK_MC_WORKERS must be > 0")
	}
	if c.Risk.HistorySize <= 0 {
		return fmt.Errorf("RISK_HISTORY_SIZE must be > 0")
	}
	if c.Risk.ZScoreMode != "table" && c.Risk.ZScoreMode != "continuous" {
		return fmt.Errorf("RISK_ZSCORE_MODE must be one of: table, continuous")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}

	return nil
}

// parseRiskLimits parses "VAR_99=1000:0.8,CVAR=1500:0.8"
func parseRiskLimits(raw string) ([]RiskLimitConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var limits []RiskLimitConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("RISK_LIMITS entry %q: expected TYPE=limit:threshold", entry)
		}
		limitStr, thresholdStr, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("RISK_LIMITS entry %q: expected TYPE=limit:threshold", entry)
		}

		limit, err := strconv.ParseFloat(limitStr, 64)
		if err != nil {
			return nil, fmt.Errorf("RISK_LIMITS entry %q: bad limit: %w", entry, err)
		}
		threshold, err := strconv.ParseFloat(thresholdStr, 64)
		if err != nil {
			return nil, fmt.Errorf("RISK_LIMITS entry %q: bad threshold: %w", entry, err)
		}
		if !(limit > 0) || math.IsInf(limit, 0) {
			return nil, fmt.Errorf("RISK_LIMITS entry %q: limit must be a finite number > 0", entry)
		}
		if !(threshold > 0 && threshold <= 1) {
			return nil, fmt.Errorf("RISK_LIMITS entry %q: threshold must be in (0,1]", entry)
		}

		limits = append(limits, RiskLimitConfig{
			RiskType:  strings.ToUpper(strings.TrimSpace(name)),
			Limit:     limit,
			Threshold: threshold,
		})
	}

	return limits, nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
