package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/portfolio"
	"github.com/wonny/aegis-risk/internal/risk"
	"github.com/wonny/aegis-risk/internal/store"
	"github.com/wonny/aegis-risk/pkg/config"
	"github.com/wonny/aegis-risk/pkg/database"
)

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Monte Carlo portfolio simulation",
	Long: `Simulate portfolio value paths with geometric Brownian motion.

Expected returns, volatilities and correlations are estimated from the
price history in the portfolio file. Correlated draws follow RISK_MC_CORRELATED.

Example:
  go run ./cmd/riskctl simulate --portfolio portfolio.json
  go run ./cmd/riskctl simulate --portfolio portfolio.json --runs 50000 --horizon 20 --seed 7
  go run ./cmd/riskctl simulate --portfolio portfolio.json --save   # requires STORE_ENABLED=true`,
	RunE: runSimulate,
}

var (
	simPortfolio  string
	simRuns       int
	simHorizon    int
	simConfidence float64
	simSeed       int64
	simTolerance  float64
	simJSON       bool
	simSave       bool
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simPortfolio, "portfolio", "", "JSON portfolio file with history (required)")
	simulateCmd.Flags().IntVar(&simRuns, "runs", 0, "number of runs (default: RISK_MC_RUNS)")
	simulateCmd.Flags().IntVar(&simHorizon, "horizon", 10, "time horizon in trading days")
	simulateCmd.Flags().Float64Var(&simConfidence, "confidence", 0.95, "confidence level")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "seed (default: RISK_MC_SEED)")
	simulateCmd.Flags().Float64Var(&simTolerance, "tolerance", 0.01, "convergence tolerance")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "print JSON")
	simulateCmd.Flags().BoolVar(&simSave, "save", false, "persist the simulation to the database")

	_ = simulateCmd.MarkFlagRequired("portfolio")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if simRuns > 0 {
		cfg.Risk.MonteCarloRuns = simRuns
	}
	if cmd.Flags().Changed("seed") {
		cfg.Risk.MonteCarloSeed = simSeed
	}
	calc, _, err := calculatorFor(cfg, log)
	if err != nil {
		return err
	}

	src, err := portfolio.LoadFile(simPortfolio)
	if err != nil {
		return err
	}
	positions, err := src.Positions(ctx, src.PortfolioID())
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

	sim, err := calc.Simulate(ctx, risk.SimulationConfig{
		PortfolioID:     src.PortfolioID(),
		NumberOfRuns:    cfg.Risk.MonteCarloRuns,
		TimeHorizonDays: simHorizon,
		ConfidenceLevel: simConfidence,
		Inputs:          risk.EstimateInputs(positions, prices, history),
	})
	if err != nil {
		return err
	}

	if simSave {
		if err := saveSimulation(ctx, cfg, sim); err != nil {
			return err
		}
		log.WithField("simulation_id", sim.ID).Info("Simulation saved")
	}

	w := cmd.OutOrStdout()
	if simJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sim)
	}

	st := sim.Statistics
	PrintHeader(w, "Monte Carlo simulation")
	PrintKeyValue(w, "ID", sim.ID, 20)
	PrintKeyValue(w, "Runs / seed", fmt.Sprintf("%d / %d", len(sim.FinalValues), sim.Seed), 20)
	PrintKeyValue(w, "Horizon", fmt.Sprintf("%d days", simHorizon), 20)
	PrintKeyValue(w, "Initial value", money(sim.InitialValue), 20)
	PrintKeyValue(w, "Mean final value", money(st.MeanFinalValue), 20)
	PrintKeyValue(w, "Median final value", money(st.MedianFinalValue), 20)
	PrintKeyValue(w, "5th percentile", money(st.Percentile5), 20)
	PrintKeyValue(w, "95th percentile", money(st.Percentile95), 20)
	PrintKeyValue(w, "VaR 95", money(st.VaR95), 20)
	PrintKeyValue(w, "VaR 99", money(st.VaR99), 20)
	PrintKeyValue(w, "Expected shortfall", money(st.ExpectedShortfall), 20)
	PrintKeyValue(w, "P(loss)", percent(st.ProbabilityOfLoss), 20)
	PrintKeyValue(w, "Worst case", money(st.WorstCase), 20)
	PrintKeyValue(w, "Skew / ex. kurtosis", fmt.Sprintf("%s / %s", st.Returns.Skewness.StringFixed(3), st.Returns.Kurtosis.StringFixed(3)), 20)
	PrintKeyValue(w, "Quality score", fmt.Sprintf("%d", st.QualityScore), 20)

	if sim.IsConverged(simTolerance) {
		PrintSuccess(w, "simulation converged")
	} else {
		PrintWarning(w, "simulation has not converged; increase --runs")
	}
	return nil
}

// saveSimulation stores the simulation summary in Postgres
func saveSimulation(ctx context.Context, cfg *config.Config, sim *risk.MonteCarloSimulation) error {
	if !cfg.Database.Enabled {
		return fmt.Errorf("--save requires STORE_ENABLED=true")
	}
	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	return store.NewSimulationRepository(db.Pool).Save(ctx, sim)
}
