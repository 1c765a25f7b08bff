package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "riskctl",
	Short: "Aegis Risk - portfolio risk analytics",
	Long: `Aegis Risk Unified CLI

Scenario catalog, stress testing, VaR and real-time risk monitoring.
Configuration is read from the environment (.env is loaded when present).

Usage:
  go run ./cmd/riskctl [command]

Examples:
  go run ./cmd/riskctl scenarios list
  go run ./cmd/riskctl stress run --portfolio portfolio.json
  go run ./cmd/riskctl var --returns 0.01,-0.02,0.005 --value 1000000
  go run ./cmd/riskctl serve`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}
