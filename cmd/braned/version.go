package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brane-run/brane/transport/api"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the braned version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(api.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
