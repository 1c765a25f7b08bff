package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/portfolio"
	"github.com/wonny/aegis-risk/pkg/database"
)

// portfolioCmd represents the portfolio command
var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Portfolio data management",
}

var (
	portfolioImportCmd = &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import a JSON portfolio into the database",
		Long: `Replace the stored positions of the file's portfolio and upsert its prices.

History series are dated backwards from --as-of, one calendar day per element.
Requires STORE_ENABLED=true.

Example:
  go run ./cmd/riskctl portfolio import portfolio.json
  go run ./cmd/riskctl portfolio import portfolio.json --as-of 2024-03-15`,
		Args: cobra.ExactArgs(1),
		RunE: runPortfolioImport,
	}

	importAsOf string
)

func init() {
	rootCmd.AddCommand(portfolioCmd)
	portfolioCmd.AddCommand(portfolioImportCmd)

	portfolioImportCmd.Flags().StringVar(&importAsOf, "as-of", "", "price date YYYY-MM-DD (default: today)")
}

func runPortfolioImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	asOf := time.Now().UTC()
	if importAsOf != "" {
		t, err := time.Parse("2006-01-02", importAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
		asOf = t
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return fmt.Errorf("portfolio import requires STORE_ENABLED=true")
	}

	src, err := portfolio.LoadFile(args[0])
	if err != nil {
		return err
	}
	id := src.PortfolioID()
	positions, err := src.Positions(ctx, id)
	if err != nil {
		return err
	}
	keys := contracts.InstrumentKeys(positions)
	prices, err := src.Prices(ctx, keys)
	if err != nil {
		return err
	}
	history, err := src.PriceHistory(ctx, keys, 0)
	if err != nil {
		return err
	}

	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	repo := portfolio.NewRepository(db.Pool)
	if err := repo.SavePositions(ctx, id, positions); err != nil {
		return err
	}
	if err := repo.SaveHistory(ctx, asOf, history); err != nil {
		return err
	}
	if err := repo.SavePrices(ctx, asOf, prices); err != nil {
		return err
	}

	log.WithFields(map[string]interface{}{
		"portfolio_id": id,
		"positions":    len(positions),
		"prices":       len(prices),
	}).Info("Portfolio imported")

	w := cmd.OutOrStdout()
	PrintSuccess(w, fmt.Sprintf("imported %d positions into portfolio %d", len(positions), id))
	return nil
}
