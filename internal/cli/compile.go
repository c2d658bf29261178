package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/querygraph/internal/canon"
	"github.com/roach88/querygraph/internal/loader"
	"github.com/roach88/querygraph/internal/sparql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output   string // output file path
	Limit    int
	Offset   int
	Distinct bool
}

// CompileResult is the JSON payload of a successful compile.
type CompileResult struct {
	Query      string `json:"query"`
	Paraphrase string `json:"paraphrase"`
	Digest     string `json:"digest"`
}

// WriteText prints the query alone so it can be piped to an endpoint.
func (r CompileResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintln(w, r.Query)
	return err
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <graph-file>",
		Short: "Compile a query graph to SPARQL",
		Long: `Compile a query graph payload (.json, .yaml or .cue) to a SPARQL SELECT
query. Limit, offset and distinct default to the query section of the
config file.

Examples:
  querygraph compile person.yaml
  querygraph compile person.cue --limit 10 --offset 20
  querygraph compile person.json --format json -o person.rq`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the query to this file")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "LIMIT clause; 0 omits it")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "OFFSET clause; 0 omits it")
	cmd.Flags().BoolVar(&opts.Distinct, "distinct", true, "emit SELECT DISTINCT")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return failWith(formatter, ErrCodeConfig, ExitCommandError, "loading config", err)
	}
	qopts := sparql.Options{Limit: cfg.Query.Limit, Offset: cfg.Query.Offset, Distinct: cfg.Query.Distinct}
	if cmd.Flags().Changed("limit") {
		qopts.Limit = opts.Limit
	}
	if cmd.Flags().Changed("offset") {
		qopts.Offset = opts.Offset
	}
	if cmd.Flags().Changed("distinct") {
		qopts.Distinct = opts.Distinct
	}
	if qopts.Limit < 0 || qopts.Offset < 0 {
		return failWith(formatter, ErrCodeGeneric, ExitCommandError, "invalid flags",
			fmt.Errorf("limit and offset must be >= 0"))
	}

	repo, err := loader.LoadFile(path, nil)
	if err != nil {
		return fail(formatter, "loading graph", err)
	}
	formatter.VerboseLog("Loaded %d node(s), %d link(s) from %s", len(repo.Nodes), len(repo.Links), path)

	qs, err := repo.QuerySet()
	if err != nil {
		return fail(formatter, "flattening graph", err)
	}
	query, err := sparql.Compile(qs, qopts)
	if err != nil {
		return fail(formatter, "compiling graph", err)
	}
	paraphrase, err := sparql.Readable(qs)
	if err != nil {
		return fail(formatter, "paraphrasing graph", err)
	}
	formatter.VerboseLog("Paraphrase:\n%s", paraphrase)

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(query+"\n"), 0644); err != nil {
			return failWith(formatter, ErrCodeWriteFailed, ExitCommandError, "writing output file", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	result := CompileResult{
		Query:      query,
		Paraphrase: paraphrase,
		Digest:     canon.DigestString(canon.DomainQuery, query),
	}
	return formatter.Success(result)
}
