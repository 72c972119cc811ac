package main

import (
	"github.com/spf13/cobra"
)

// configPath is the --config flag shared by every subcommand that needs a
// node.yml (spec.md §6, SPEC_FULL.md "CLI/bootstrapping").
var configPath string

var rootCmd = &cobra.Command{
	Use:   "braned",
	Short: "Brane node daemon: serves the federated workflow orchestration services",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "node.yml", "path to node.yml")
}
