package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-risk/internal/orchestrator"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Real-time risk monitor",
	Long: `Run the risk monitor once against the configured portfolio.

The portfolio comes from --portfolio, RISK_PORTFOLIO_FILE or the database.
Limits come from RISK_LIMITS; new alerts go to the configured notification sinks.

Example:
  go run ./cmd/riskctl monitor tick
  go run ./cmd/riskctl monitor tick --portfolio portfolio.json --json`,
}

var (
	monitorTickCmd = &cobra.Command{
		Use:   "tick",
		Short: "Run one monitoring tick",
		RunE:  runMonitorTick,
	}

	monitorPortfolio string
	monitorJSON      bool
)

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.AddCommand(monitorTickCmd)

	monitorTickCmd.Flags().StringVar(&monitorPortfolio, "portfolio", "", "JSON portfolio file")
	monitorTickCmd.Flags().BoolVar(&monitorJSON, "json", false, "print JSON")
}

func runMonitorTick(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, appOptions{portfolioFile: monitorPortfolio})
	if err != nil {
		return err
	}
	defer a.close()

	id := a.cfg.Risk.PortfolioID
	if src, ok := a.source.(interface{ PortfolioID() int64 }); ok {
		id = src.PortfolioID()
	}

	res, err := a.service.RunMonitoringTick(ctx, id)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if monitorJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printTick(w, res)
	return nil
}

func printTick(w io.Writer, res *orchestrator.TickResult) {
	u := res.Update

	PrintHeader(w, fmt.Sprintf("Monitoring tick: portfolio %d", res.PortfolioID))
	PrintKeyValue(w, "Duration", res.Duration.String(), 16)
	PrintKeyValue(w, "Stages", fmt.Sprintf("%v", res.CompletedStages), 16)
	if res.Comprehensive != nil && res.Comprehensive.Worst != nil {
		PrintKeyValue(w, "Worst scenario", res.Comprehensive.Worst.ScenarioID, 16)
	}
	PrintKeyValue(w, "Risk score", fmt.Sprintf("%d", u.OverallRiskScore), 16)
	PrintKeyValue(w, "Recommendation", u.Recommendation, 16)

	types := make([]string, 0, len(u.RiskLevels))
	for rt := range u.RiskLevels {
		types = append(types, rt)
	}
	sort.Strings(types)

	PrintSeparator(w)
	widths := []int{16, 18, 8}
	PrintTableHeader(w, []string{"RISK", "LEVEL", "STATUS"}, widths)
	for _, rt := range types {
		PrintTableRow(w, []string{rt, u.RiskLevels[rt].StringFixed(4), string(u.Statuses[rt])}, widths)
	}

	if len(u.NewAlerts) > 0 {
		PrintSeparator(w)
		for _, al := range u.NewAlerts {
			PrintWarning(w, al.Summary())
		}
	}
}
