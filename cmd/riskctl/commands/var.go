package commands

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// varCmd represents the var command
var varCmd = &cobra.Command{
	Use:   "var",
	Short: "Historical VaR and CVaR",
	Long: `Compute historical Value-at-Risk and Conditional VaR from a return series.

Flags:
  --returns     comma separated period returns (0.01 = 1%)
  --value       current portfolio value
  --confidence  confidence level in (0,1), default 0.95

Example:
  go run ./cmd/riskctl var --returns 0.01,-0.02,0.005,-0.031 --value 1000000 --confidence 0.99`,
	RunE: runVaR,
}

var (
	varReturns    string
	varValue      string
	varConfidence float64
)

func init() {
	rootCmd.AddCommand(varCmd)

	varCmd.Flags().StringVar(&varReturns, "returns", "", "comma separated returns (required)")
	varCmd.Flags().StringVar(&varValue, "value", "", "portfolio value (required)")
	varCmd.Flags().Float64Var(&varConfidence, "confidence", 0.95, "confidence level")

	_ = varCmd.MarkFlagRequired("returns")
	_ = varCmd.MarkFlagRequired("value")
}

// parseReturns parses "0.01,-0.02"
func parseReturns(raw string) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := decimal.NewFromString(part)
		if err != nil {
			return nil, fmt.Errorf("bad return %q: %w", part, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func runVaR(cmd *cobra.Command, args []string) error {
	returns, err := parseReturns(varReturns)
	if err != nil {
		return err
	}
	value, err := decimal.NewFromString(varValue)
	if err != nil {
		return fmt.Errorf("bad value %q: %w", varValue, err)
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	calc, _, err := calculatorFor(cfg, log)
	if err != nil {
		return err
	}

	res, err := calc.HistoricalRisk(returns, value, varConfidence)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	PrintHeader(w, "Historical VaR")
	PrintKeyValue(w, "Observations", fmt.Sprintf("%d", len(returns)), 14)
	PrintKeyValue(w, "Value", money(value), 14)
	PrintKeyValue(w, "Confidence", percent(res.Confidence), 14)
	PrintKeyValue(w, "VaR", money(res.VaR), 14)
	PrintKeyValue(w, "CVaR", money(res.CVaR), 14)
	return nil
}
