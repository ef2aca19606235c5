// Command factcalc resolves cited SEC facts and evaluates metric formulas
// from the command line.
package main

import (
	"fmt"
	"os"

	"factcalc/cmd/factcalc/commands"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
