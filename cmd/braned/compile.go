package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brane-run/brane/compiler"
	"github.com/brane-run/brane/lexer"
)

var compileCmd = &cobra.Command{
	Use:   "compile [file]",
	Short: "Compile a BraneScript program to WIR JSON, for CI batch checks",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	result, errs := compiler.Compile(string(src), compiler.Options{
		Dialect: lexer.DialectBraneScript,
		File:    args[0],
	})
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return fmt.Errorf("compile failed with %d error(s)", len(errs))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.Workflow)
}
