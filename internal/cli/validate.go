package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/querygraph/internal/loader"
	"github.com/roach88/querygraph/internal/sparql"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Path     string   `json:"path"`
	Valid    bool     `json:"valid"`
	Nodes    int      `json:"nodes"`
	Links    int      `json:"links"`
	Warnings []string `json:"warnings"`
}

// WriteText lists the warnings, then a one-line verdict.
func (r ValidationResult) WriteText(w io.Writer) error {
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "! %s\n", warning)
	}
	if r.Valid {
		_, err := fmt.Fprintf(w, "✓ %s is valid (%d node(s), %d link(s))\n", r.Path, r.Nodes, r.Links)
		return err
	}
	_, err := fmt.Fprintf(w, "✗ %s has %d lint warning(s)\n", r.Path, len(r.Warnings))
	return err
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool // lint warnings fail validation
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <graph-file>",
		Short: "Check a query graph without printing the query",
		Long: `Decode a query graph payload, check its structure and lint it.

Structural problems (dangling links, subqueries without a link, unknown
constraint types) fail validation. Lint warnings only fail with --strict.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat lint warnings as failures")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	repo, err := loader.LoadFile(path, nil)
	if err != nil {
		return fail(formatter, "validation failed", err)
	}
	qs, err := repo.QuerySet()
	if err != nil {
		return fail(formatter, "validation failed", err)
	}
	lint := sparql.Lint(qs)

	result := ValidationResult{
		Path:     path,
		Valid:    lint.Clean || !opts.Strict,
		Nodes:    len(repo.Nodes),
		Links:    len(repo.Links),
		Warnings: lint.Warnings,
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d lint warning(s)", len(result.Warnings)))
	}
	return nil
}
