package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/querygraph/internal/diff"
	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/loader"
)

// DiffResult is the JSON payload of the diff command.
type DiffResult struct {
	Empty   bool         `json:"empty"`
	Summary diff.Summary `json:"summary"`
}

func (r DiffResult) WriteText(w io.Writer) error {
	writeSummary(w, r.Summary)
	return nil
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <left-graph> <right-graph>",
		Short: "Show the structural difference between two graphs",
		Long: `Match nodes by internal id and links by link id and report which were
added, removed or changed. Geometry and display state are ignored.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runDiff(opts *RootOptions, leftPath, rightPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	left, err := loader.LoadFile(leftPath, nil)
	if err != nil {
		return fail(formatter, "loading left graph", err)
	}
	right, err := loader.LoadFile(rightPath, nil, graph.MatchIDs(left))
	if err != nil {
		return fail(formatter, "loading right graph", err)
	}
	d, err := diff.Repositories(left, right)
	if err != nil {
		return fail(formatter, "diffing graphs", err)
	}

	return formatter.Success(DiffResult{Empty: d.Empty(), Summary: d.Summarize()})
}

// writeSummary prints one line per added (+), removed (-) or changed (~)
// node and link.
func writeSummary(w io.Writer, s diff.Summary) {
	lines := 0
	emit := func(mark, kind string, ids []string) {
		for _, id := range ids {
			fmt.Fprintf(w, "%s %s %s\n", mark, kind, id)
			lines++
		}
	}
	emit("+", "node", s.NodesAdded)
	emit("-", "node", s.NodesRemoved)
	emit("~", "node", s.NodesChanged)
	emit("+", "link", s.LinksAdded)
	emit("-", "link", s.LinksRemoved)
	emit("~", "link", s.LinksChanged)
	if lines == 0 {
		fmt.Fprintln(w, "no structural changes")
	}
}
