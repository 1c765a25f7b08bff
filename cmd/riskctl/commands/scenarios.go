package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-risk/internal/scenario"
)

// scenariosCmd represents the scenarios command
var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Scenario catalog",
	Long: `Inspect the stress scenario catalog.

The catalog is the eight standard scenarios plus RISK_SCENARIO_FILE when set.

Subcommands:
  list      - list scenarios
  show      - show one scenario by id or name
  validate  - validate a YAML scenario file

Example:
  go run ./cmd/riskctl scenarios list
  go run ./cmd/riskctl scenarios show "2008 Financial Crisis"
  go run ./cmd/riskctl scenarios validate scenarios.yaml`,
}

var (
	scenariosListCmd = &cobra.Command{
		Use:   "list",
		Short: "List scenarios",
		RunE:  listScenarios,
	}

	scenariosShowCmd = &cobra.Command{
		Use:   "show [id|name]",
		Short: "Show one scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  showScenario,
	}

	scenariosValidateCmd = &cobra.Command{
		Use:   "validate [file.yaml]",
		Short: "Validate a YAML scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  validateScenarios,
	}

	scenariosType     string
	scenariosSeverity string
)

func init() {
	rootCmd.AddCommand(scenariosCmd)
	scenariosCmd.AddCommand(scenariosListCmd)
	scenariosCmd.AddCommand(scenariosShowCmd)
	scenariosCmd.AddCommand(scenariosValidateCmd)

	scenariosListCmd.Flags().StringVar(&scenariosType, "type", "", "filter by scenario type")
	scenariosListCmd.Flags().StringVar(&scenariosSeverity, "severity", "", "filter by severity")
}

func catalogFromConfig() (*scenario.Catalog, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return loadCatalog(cfg, log)
}

func listScenarios(cmd *cobra.Command, args []string) error {
	catalog, err := catalogFromConfig()
	if err != nil {
		return err
	}

	list := catalog.All()
	switch {
	case scenariosType != "":
		list = catalog.FindByType(scenario.Type(strings.ToUpper(scenariosType)))
	case scenariosSeverity != "":
		list = catalog.FindBySeverity(scenario.Severity(strings.ToUpper(scenariosSeverity)))
	}

	printScenarioTable(cmd.OutOrStdout(), list, time.Now())
	return nil
}

func printScenarioTable(w io.Writer, list []scenario.RiskScenario, now time.Time) {
	widths := []int{20, 32, 22, 10, 8, 9}
	PrintTableHeader(w, []string{"ID", "NAME", "TYPE", "SEVERITY", "PROB", "INTENSITY"}, widths)
	for _, s := range list {
		name := s.Name
		if s.IsExpiredAt(now) {
			name += " (expired)"
		}
		PrintTableRow(w, []string{
			s.ID,
			name,
			string(s.Type),
			string(s.Severity),
			s.Probability.StringFixed(3),
			fmt.Sprintf("%d", s.IntensityScore()),
		}, widths)
	}
	fmt.Fprintf(w, "\n%d scenarios\n", len(list))
}

func showScenario(cmd *cobra.Command, args []string) error {
	catalog, err := catalogFromConfig()
	if err != nil {
		return err
	}

	s, err := catalog.Get(args[0])
	if err != nil {
		if s, err = catalog.FindByName(args[0]); err != nil {
			return err
		}
	}

	printScenario(cmd.OutOrStdout(), s)
	return nil
}

func printScenario(w io.Writer, s scenario.RiskScenario) {
	PrintHeader(w, s.Name)
	PrintKeyValue(w, "ID", s.ID, 14)
	PrintKeyValue(w, "Type", s.Type.Profile().DisplayName, 14)
	PrintKeyValue(w, "Severity", s.Severity.Profile().DisplayName, 14)
	PrintKeyValue(w, "Probability", s.Probability.String(), 14)
	if s.VolatilityMultiplier.Valid {
		PrintKeyValue(w, "Volatility x", s.VolatilityMultiplier.Decimal.String(), 14)
	}
	PrintKeyValue(w, "Liquidity", s.LiquidityImpact.String(), 14)
	PrintKeyValue(w, "Duration", fmt.Sprintf("%d days", s.StressDurationDays), 14)
	PrintKeyValue(w, "Intensity", fmt.Sprintf("%d", s.IntensityScore()), 14)
	if s.ValidUntil != nil {
		PrintKeyValue(w, "Valid until", s.ValidUntil.Format("2006-01-02"), 14)
	}
	if s.HasHistoricalReference() {
		PrintKeyValue(w, "Historical", fmt.Sprintf("%s ~ %s", s.HistoricalStart.Format("2006-01-02"), s.HistoricalEnd.Format("2006-01-02")), 14)
	}
	if s.Description != "" {
		fmt.Fprintf(w, "\n   %s\n", s.Description)
	}

	PrintSeparator(w)
	fmt.Fprintln(w, "  Market shocks")
	for _, seg := range s.Segments() {
		PrintKeyValue(w, seg, s.MarketShocks[seg].String(), 14)
	}

	PrintSeparator(w)
	fmt.Fprintln(w, "  Mitigation")
	PrintList(w, s.MitigationStrategies())
	fmt.Fprintln(w, "  Recommended actions")
	PrintList(w, s.RecommendedActions())
}

func validateScenarios(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	list, hash, err := scenario.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	if _, err := scenario.StandardCatalog().With(list...); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	PrintSuccess(w, fmt.Sprintf("%s: %d scenarios valid", args[0], len(list)))
	PrintKeyValue(w, "sha256", hash, 6)
	return nil
}
