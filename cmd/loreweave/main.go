// Command loreweave compiles rule bundles, runs world simulations and
// inspects recorded runs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/loreweave/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
