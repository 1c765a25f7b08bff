package main

import (
	"os"

	"github.com/wonny/aegis-risk/cmd/riskctl/commands"
)

// main is the entry point for the risk CLI: go run ./cmd/riskctl [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
