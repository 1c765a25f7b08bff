package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-risk/internal/portfolio"
	"github.com/wonny/aegis-risk/pkg/database"
	"github.com/wonny/aegis-risk/pkg/redis"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and connectivity",
	Long: `Load the configuration and check every configured dependency.

This command:
- loads config from the environment (.env when present)
- connects to PostgreSQL and shows pool statistics (STORE_ENABLED=true)
- connects to Redis (REDIS_ENABLED=true)
- loads RISK_SCENARIO_FILE and RISK_PORTFOLIO_FILE when set

Example:
  go run ./cmd/riskctl check`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	PrintSuccess(w, fmt.Sprintf("Config loaded (ENV: %s)", cfg.Env))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	catalog, err := loadCatalog(cfg, log)
	if err != nil {
		return fmt.Errorf("scenario catalog: %w", err)
	}
	PrintSuccess(w, fmt.Sprintf("Scenario catalog: %d scenarios", catalog.Len()))

	if cfg.Risk.PortfolioFile != "" {
		src, err := portfolio.LoadFile(cfg.Risk.PortfolioFile)
		if err != nil {
			return err
		}
		PrintSuccess(w, fmt.Sprintf("Portfolio file: portfolio %d", src.PortfolioID()))
	}

	if cfg.Database.Enabled {
		PrintKeyValue(w, "Database URL", maskPassword(cfg.Database.URL), 14)
		db, err := database.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		status, err := db.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		PrintSuccess(w, fmt.Sprintf("Database healthy (%v)", status.ResponseTime))
		PrintKeyValue(w, "Max Conns", fmt.Sprintf("%d", status.Stats.MaxConns), 14)
		PrintKeyValue(w, "Total Conns", fmt.Sprintf("%d", status.Stats.TotalConns), 14)
		PrintKeyValue(w, "Idle Conns", fmt.Sprintf("%d", status.Stats.IdleConns), 14)
	} else {
		PrintWarning(w, "Database disabled (STORE_ENABLED=false)")
	}

	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		PrintSuccess(w, fmt.Sprintf("Redis reachable at %s:%s", cfg.Redis.Host, cfg.Redis.Port))
	} else {
		PrintWarning(w, "Redis disabled (REDIS_ENABLED=false)")
	}

	PrintSuccess(w, "All checks passed")
	return nil
}

// maskPassword hides the password of a connection URL
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
