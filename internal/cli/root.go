package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions are the persistent flags every subcommand sees.
type RootOptions struct {
	Verbose    bool
	Format     string // text or json
	ConfigPath string // empty means config.DefaultConfig
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand assembles the querygraph command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "querygraph",
		Short: "querygraph - visual query graphs compiled to SPARQL",
		Long: `Compile query graphs drawn in the graph editor to SPARQL, diff graph
states structurally, and keep a browsable history of editing sessions.`,
		SilenceUsage:  true,
		SilenceErrors: true, // main prints errors that no formatter reported
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "print error details and progress to stderr")
	flags.StringVar(&opts.Format, "format", "text", "output format: text or json")
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")

	cmd.AddCommand(
		NewCompileCommand(opts),
		NewValidateCommand(opts),
		NewDiffCommand(opts),
		NewHistoryCommand(opts),
		NewServeCommand(opts),
		NewTestCommand(opts),
	)

	return cmd
}
