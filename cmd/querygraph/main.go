// Command querygraph compiles visual query graphs to SPARQL and keeps a
// structural history of editing sessions.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/querygraph/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		// ExitErrors were already reported by the command's formatter.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
