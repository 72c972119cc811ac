// Command braned is the Brane node daemon: it loads a node.yml, starts the
// services the node's kind names (spec.md §6), and serves them until
// signalled to stop. See root.go for the command tree.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
