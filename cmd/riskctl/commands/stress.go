package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/portfolio"
	"github.com/wonny/aegis-risk/internal/risk"
	"github.com/wonny/aegis-risk/internal/scenario"
	"github.com/wonny/aegis-risk/internal/stress"
)

// stressCmd represents the stress command
var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Stress testing",
	Long: `Apply stress scenarios to a portfolio snapshot.

Example:
  go run ./cmd/riskctl stress run --portfolio portfolio.json
  go run ./cmd/riskctl stress run --portfolio portfolio.json --scenario "Black Monday 1987"
  go run ./cmd/riskctl stress run --portfolio portfolio.json --monte-carlo --runs 20000 --seed 42
  go run ./cmd/riskctl stress run --portfolio portfolio.json --historical`,
}

var (
	stressRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a stress test",
		Long: `Run every active catalog scenario against the portfolio, or one scenario with --scenario.

Flags:
  --portfolio    JSON portfolio file (required)
  --scenario     scenario id or name (default: all active scenarios)
  --monte-carlo  also run a Monte Carlo stress on the chosen or worst scenario
  --runs         Monte Carlo draws (default: RISK_MC_RUNS)
  --seed         Monte Carlo seed (default: RISK_MC_SEED)
  --historical   replay the portfolio over the file's price history
  --json         print results as JSON`,
		RunE: runStress,
	}

	stressPortfolio  string
	stressScenario   string
	stressMonteCarlo bool
	stressRuns       int
	stressSeed       int64
	stressHistorical bool
	stressJSON       bool
)

func init() {
	rootCmd.AddCommand(stressCmd)
	stressCmd.AddCommand(stressRunCmd)

	stressRunCmd.Flags().StringVar(&stressPortfolio, "portfolio", "", "JSON portfolio file (required)")
	stressRunCmd.Flags().StringVar(&stressScenario, "scenario", "", "scenario id or name")
	stressRunCmd.Flags().BoolVar(&stressMonteCarlo, "monte-carlo", false, "run a Monte Carlo stress")
	stressRunCmd.Flags().IntVar(&stressRuns, "runs", 0, "Monte Carlo draws")
	stressRunCmd.Flags().Int64Var(&stressSeed, "seed", 0, "Monte Carlo seed")
	stressRunCmd.Flags().BoolVar(&stressHistorical, "historical", false, "replay the file's price history")
	stressRunCmd.Flags().BoolVar(&stressJSON, "json", false, "print JSON")

	_ = stressRunCmd.MarkFlagRequired("portfolio")
}

// stressOutput is the JSON form of a stress run
type stressOutput struct {
	Comprehensive *stress.Comprehensive `json:"comprehensive,omitempty"`
	Single        *stress.Result        `json:"single,omitempty"`
	MonteCarlo    *stress.Result        `json:"monte_carlo,omitempty"`
	Historical    *stress.Result        `json:"historical,omitempty"`
}

func runStress(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if stressRuns > 0 {
		cfg.Risk.MonteCarloRuns = stressRuns
	}
	if cmd.Flags().Changed("seed") {
		cfg.Risk.MonteCarloSeed = stressSeed
	}

	_, engine, err := calculatorFor(cfg, log)
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg, log)
	if err != nil {
		return err
	}

	src, err := portfolio.LoadFile(stressPortfolio)
	if err != nil {
		return err
	}
	positions, err := src.Positions(ctx, src.PortfolioID())
	if err != nil {
		return err
	}
	prices, err := src.Prices(ctx, contracts.InstrumentKeys(positions))
	if err != nil {
		return err
	}

	history, err := src.PriceHistory(ctx, contracts.InstrumentKeys(positions), 0)
	if err != nil {
		return err
	}

	var (
		out     stressOutput
		target  scenario.RiskScenario // scenario for the Monte Carlo and historical runs
		primary *stress.Result
	)
	if stressScenario != "" {
		if target, err = catalog.Get(stressScenario); err != nil {
			if target, err = catalog.FindByName(stressScenario); err != nil {
				return err
			}
		}
		if out.Single, err = engine.RunSingle(target, positions, prices); err != nil {
			return err
		}
		primary = out.Single
	} else {
		active := catalog.Active(time.Now())
		if len(active) == 0 {
			active = catalog.All()
		}
		if out.Comprehensive, err = engine.RunComprehensive(active, positions, prices); err != nil {
			return err
		}
		primary = out.Comprehensive.Worst
		for _, s := range active {
			if s.ID == primary.ScenarioID {
				target = s
			}
		}
	}

	if stressMonteCarlo {
		if out.MonteCarlo, err = engine.RunMonteCarlo(ctx, target, positions, prices, cfg.Risk.MonteCarloRuns); err != nil {
			return err
		}
	}
	if stressHistorical {
		if out.Historical, err = engine.RunHistorical(target, positions, prices, history); err != nil {
			return err
		}
	}
	if len(history) > 0 {
		engine.AttachPerformance(primary, positions, prices, performanceFrom(history, src.Benchmark()))
	}

	w := cmd.OutOrStdout()
	if stressJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if out.Comprehensive != nil {
		printComprehensive(w, out.Comprehensive)
	}
	if out.Single != nil {
		printStressResult(w, "Scenario stress", out.Single)
	}
	if out.MonteCarlo != nil {
		printStressResult(w, "Monte Carlo stress", out.MonteCarlo)
	}
	if out.Historical != nil {
		printStressResult(w, "Historical replay", out.Historical)
	}
	return nil
}

// performanceFrom turns price history into per-asset period returns
func performanceFrom(history map[string][]decimal.Decimal, benchmark []decimal.Decimal) stress.Performance {
	assets := make(map[string][]decimal.Decimal, len(history))
	for key, series := range history {
		if r := risk.Returns(series); len(r) > 0 {
			assets[key] = r
		}
	}
	return stress.Performance{AssetReturns: assets, Benchmark: benchmark}
}

func printComprehensive(w io.Writer, c *stress.Comprehensive) {
	PrintHeader(w, "Comprehensive stress test")

	ids := make([]string, 0, len(c.ScenarioLosses))
	for id := range c.ScenarioLosses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return c.ScenarioLosses[ids[i]].GreaterThan(c.ScenarioLosses[ids[j]])
	})

	widths := []int{24, 16, 8}
	PrintTableHeader(w, []string{"SCENARIO", "LOSS", "PROB"}, widths)
	for _, id := range ids {
		PrintTableRow(w, []string{id, money(c.ScenarioLosses[id]), fmt.Sprintf("%.3f", c.ScenarioProbabilities[id])}, widths)
	}
	fmt.Fprintln(w)
	PrintKeyValue(w, "Probability-weighted loss", money(c.ProbabilityWeightedLoss()), 26)

	if c.Worst != nil {
		printStressResult(w, "Worst scenario", c.Worst)
	}
}

func printStressResult(w io.Writer, title string, r *stress.Result) {
	PrintHeader(w, title)
	PrintKeyValue(w, "Test ID", r.TestID, 18)
	PrintKeyValue(w, "Scenario", r.ScenarioID, 18)
	PrintKeyValue(w, "Portfolio value", money(r.PortfolioValue), 18)
	PrintKeyValue(w, "Stressed value", money(r.StressedValue), 18)
	PrintKeyValue(w, "Loss", money(r.PortfolioLoss), 18)
	if r.SimulationRuns > 1 {
		PrintKeyValue(w, "Runs", fmt.Sprintf("%d", r.SimulationRuns), 18)
		PrintKeyValue(w, "VaR 95", money(r.VaR95), 18)
		PrintKeyValue(w, "VaR 99", money(r.VaR99), 18)
		PrintKeyValue(w, "CVaR", money(r.CVaR), 18)
	}
	if r.MaxDrawdown.Valid {
		PrintKeyValue(w, "Max drawdown", percent(r.MaxDrawdown.Decimal.InexactFloat64()), 18)
	}
	if r.ConcentrationRisk != nil {
		PrintKeyValue(w, "Concentration", fmt.Sprintf("%.4f", *r.ConcentrationRisk), 18)
	}
	if r.SharpeRatio != nil {
		PrintKeyValue(w, "Sharpe / Sortino", fmt.Sprintf("%.3f / %.3f", *r.SharpeRatio, *r.SortinoRatio), 18)
	}
	PrintKeyValue(w, "Risk score", fmt.Sprintf("%d (%s)", r.OverallRiskScore(), r.RiskLevel()), 18)

	if top := r.TopLossContributors(3); len(top) > 0 {
		PrintSeparator(w)
		fmt.Fprintln(w, "  Top loss contributors")
		for _, c := range top {
			PrintKeyValue(w, c.InstrumentKey, money(c.Loss), 18)
		}
	}
	if actions := r.RecommendedActions(); len(actions) > 0 {
		PrintSeparator(w)
		fmt.Fprintln(w, "  Recommended actions")
		PrintList(w, actions)
	}
}
