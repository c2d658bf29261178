package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/querygraph/internal/config"
	"github.com/roach88/querygraph/internal/diff"
	"github.com/roach88/querygraph/internal/embedding"
	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/history"
	"github.com/roach88/querygraph/internal/loader"
	"github.com/roach88/querygraph/internal/sparql"
	"github.com/roach88/querygraph/internal/store"
)

// HistoryOptions holds flags shared by the history subcommands.
type HistoryOptions struct {
	*RootOptions
	DB string // database path; overrides the config file
}

// EntryView is the CLI form of a history entry.
type EntryView struct {
	Seq          int64             `json:"seq"`
	Timestamp    int64             `json:"timestamp"`
	Digest       string            `json:"digest"`
	Paraphrase   string            `json:"paraphrase"`
	HasEmbedding bool              `json:"has_embedding"`
	Diff         *diff.Summary     `json:"diff,omitempty"`
	Query        string            `json:"query,omitempty"`
	Graph        *graph.QueryGraph `json:"graph,omitempty"`
}

// AddResult is the outcome of history add.
type AddResult struct {
	Admitted bool       `json:"admitted"`
	Reason   string     `json:"reason,omitempty"` // why a state was not admitted
	Entry    *EntryView `json:"entry,omitempty"`
}

func (r AddResult) WriteText(w io.Writer) error {
	if !r.Admitted {
		_, err := fmt.Fprintf(w, "- not admitted: %s\n", r.Reason)
		return err
	}
	fmt.Fprintf(w, "✓ admitted entry %d\n", r.Entry.Seq)
	if r.Entry.Diff != nil {
		writeSummary(w, *r.Entry.Diff)
	}
	return nil
}

// WriteText prints an entry with its paraphrase, query and diff.
func (v EntryView) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Entry %d  %s\n", v.Seq, formatMillis(v.Timestamp))
	fmt.Fprintf(w, "Digest: %s\n\n", v.Digest)
	if v.Paraphrase != "" {
		fmt.Fprintf(w, "%s\n\n", v.Paraphrase)
	}
	if v.Query != "" {
		fmt.Fprintf(w, "%s\n", v.Query)
	}
	if v.Diff != nil {
		fmt.Fprintln(w)
		writeSummary(w, *v.Diff)
	}
	return nil
}

type sessionList []store.Session

func (l sessionList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		fmt.Fprintln(w, "No sessions.")
	}
	for _, s := range l {
		fmt.Fprintf(w, "%s  %s  %d entr%s  %s\n", s.ID, formatMillis(s.CreatedAt), s.Entries, plural(s.Entries, "y", "ies"), s.Name)
	}
	return nil
}

type entryList []EntryView

func (l entryList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		fmt.Fprintln(w, "No entries.")
	}
	for _, v := range l {
		fmt.Fprintf(w, "%4d  %s  %s  %s\n", v.Seq, formatMillis(v.Timestamp), shortDigest(v.Digest), firstLine(v.Paraphrase))
	}
	return nil
}

type matchList []MatchView

func (l matchList) WriteText(w io.Writer) error {
	for _, m := range l {
		fmt.Fprintf(w, "%4d  %.3f  %s\n", m.Entry.Seq, m.Score, firstLine(m.Entry.Paraphrase))
	}
	return nil
}

// MatchView is one similarity search hit.
type MatchView struct {
	Score float64   `json:"score"`
	Entry EntryView `json:"entry"`
}

func newEntryView(e *history.Entry) EntryView {
	v := EntryView{
		Seq:          e.Seq,
		Timestamp:    e.Timestamp,
		Digest:       e.Digest,
		Paraphrase:   e.Paraphrase,
		HasEmbedding: e.Embedding() != nil,
	}
	if e.Diff != nil {
		sum := e.Diff.Summarize()
		v.Diff = &sum
	}
	return v
}

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Record and browse editing sessions",
		Long: `A session is an ordered history of graph states. A state is admitted
only when it differs structurally from the previous one and is not mid-edit.`,
	}
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "database path (defaults to the config file's database)")

	cmd.AddCommand(
		newHistoryNewCommand(opts),
		newHistorySessionsCommand(opts),
		newHistoryAddCommand(opts),
		newHistoryListCommand(opts),
		newHistoryShowCommand(opts),
		newHistorySearchCommand(opts),
		newHistoryDeleteCommand(opts),
	)
	return cmd
}

// historyEnv is what a history subcommand runs against.
type historyEnv struct {
	cfg       config.Config
	store     *store.Store
	embedder  embedding.Embedder
	formatter *OutputFormatter
	opts      *HistoryOptions
	cmd       *cobra.Command
}

// withStore loads config, opens the store and runs fn. The store is closed
// afterwards.
func (o *HistoryOptions) withStore(cmd *cobra.Command, fn func(env *historyEnv) error) error {
	formatter := newFormatter(o.RootOptions, cmd)
	cfg, err := o.loadConfig()
	if err != nil {
		return failWith(formatter, ErrCodeConfig, ExitCommandError, "loading config", err)
	}
	if o.DB != "" {
		cfg.Database = o.DB
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return failWith(formatter, ErrCodeStore, ExitCommandError, "opening store", err)
	}
	defer st.Close()
	formatter.VerboseLog("Using database %s", cfg.Database)

	return fn(&historyEnv{cfg: cfg, store: st, formatter: formatter, opts: o, cmd: cmd})
}

// loadHistory replays a session. The configured embedder is attached when
// withEmbedder is set.
func (env *historyEnv) loadHistory(ctx context.Context, sessionID string, withEmbedder bool) (*history.History, error) {
	logger := env.opts.logger(env.cmd.ErrOrStderr(), env.cfg)
	hopts := history.Options{
		Viewport: history.Vec2{X: env.cfg.Viewport.Width, Y: env.cfg.Viewport.Height},
		Logger:   logger,
	}
	if withEmbedder {
		emb, err := embedding.New(env.cfg.EmbeddingOptions(logger))
		if err != nil {
			return nil, err
		}
		env.embedder = emb
		hopts.Embedder = emb
		hopts.EmbedTimeout = env.cfg.Embedding.Timeout
	}
	return env.store.LoadHistory(ctx, sessionID, hopts)
}

func newHistoryNewCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "new [name]",
		Short:         "Start a new session",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return opts.withStore(cmd, func(env *historyEnv) error {
				sess, err := env.store.CreateSession(cmd.Context(), name)
				if err != nil {
					return failWith(env.formatter, ErrCodeStore, ExitCommandError, "creating session", err)
				}
				if env.formatter.Format == "json" {
					return env.formatter.Success(sess)
				}
				return env.formatter.Success(sess.ID)
			})
		},
	}
}

func newHistorySessionsCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sessions",
		Short:         "List sessions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(env *historyEnv) error {
				sessions, err := env.store.ListSessions(cmd.Context())
				if err != nil {
					return failWith(env.formatter, ErrCodeStore, ExitCommandError, "listing sessions", err)
				}
				return env.formatter.Success(sessionList(sessions))
			})
		},
	}
}

func newHistoryAddCommand(opts *HistoryOptions) *cobra.Command {
	var editing bool
	cmd := &cobra.Command{
		Use:   "add <session> <graph-file>",
		Short: "Submit a graph state to a session",
		Long: `Submit a graph state. It is admitted only when it differs structurally
from the last admitted state; --editing marks it as mid-edit, which is
never admitted.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(env *historyEnv) error {
				return runHistoryAdd(env, args[0], args[1], editing)
			})
		},
	}
	cmd.Flags().BoolVar(&editing, "editing", false, "the graph is mid-edit")
	return cmd
}

func runHistoryAdd(env *historyEnv, sessionID, path string, editing bool) error {
	ctx := env.cmd.Context()
	h, err := env.loadHistory(ctx, sessionID, true)
	if err != nil {
		return fail(env.formatter, "loading session", err)
	}
	repo, err := loader.LoadFile(path, nil, graph.MatchIDs(h.Baseline()))
	if err != nil {
		return fail(env.formatter, "loading graph", err)
	}
	if editing {
		repo.BeginEditing()
	}

	e, err := h.TryAddEntry(ctx, repo)
	if err != nil {
		return fail(env.formatter, "adding entry", err)
	}
	// the embedding is written back before the store closes
	h.Wait()

	result := AddResult{Admitted: e != nil}
	switch {
	case e != nil:
		v := newEntryView(e)
		result.Entry = &v
	case editing:
		result.Reason = "graph is mid-edit"
	default:
		result.Reason = "no structural change since the last entry"
	}
	return env.formatter.Success(result)
}

func newHistoryListCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <session>",
		Short:         "List the entries of a session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(env *historyEnv) error {
				h, err := env.loadHistory(cmd.Context(), args[0], false)
				if err != nil {
					return fail(env.formatter, "loading session", err)
				}
				entries := h.Entries()
				views := make(entryList, 0, len(entries))
				for _, e := range entries {
					views = append(views, newEntryView(e))
				}
				return env.formatter.Success(views)
			})
		},
	}
}

func newHistoryShowCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <session> <seq>",
		Short:         "Show one entry with its compiled query",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(env *historyEnv) error {
				return runHistoryShow(env, args[0], args[1])
			})
		},
	}
}

func runHistoryShow(env *historyEnv, sessionID, rawSeq string) error {
	seq, err := strconv.ParseInt(rawSeq, 10, 64)
	if err != nil {
		return failWith(env.formatter, ErrCodeGeneric, ExitCommandError, "parsing seq", fmt.Errorf("invalid seq %q", rawSeq))
	}
	h, err := env.loadHistory(env.cmd.Context(), sessionID, false)
	if err != nil {
		return fail(env.formatter, "loading session", err)
	}
	e := h.BySeq(seq)
	if e == nil {
		return fail(env.formatter, "showing entry", fmt.Errorf("entry %d: %w", seq, store.ErrEntryNotFound))
	}

	v := newEntryView(e)
	q := env.cfg.Query
	v.Query, err = sparql.GenerateQuery(e.Snapshot, q.Limit, q.Offset, q.Distinct)
	if err != nil {
		// Admitted states may be partial; they still have a snapshot.
		env.formatter.VerboseLog("entry %d does not compile: %v", seq, err)
	}
	v.Graph = e.Snapshot.ToQueryGraph()

	return env.formatter.Success(v)
}

func newHistorySearchCommand(opts *HistoryOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:           "search <session> <text>",
		Short:         "Rank entries by similarity to a text",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(env *historyEnv) error {
				h, err := env.loadHistory(cmd.Context(), args[0], true)
				if err != nil {
					return fail(env.formatter, "loading session", err)
				}
				if env.embedder == nil {
					return failWith(env.formatter, ErrCodeNoEmbedder, ExitCommandError, "searching",
						fmt.Errorf("similarity search needs an embedding provider"))
				}
				matches, err := h.Search(cmd.Context(), args[1], k)
				if err != nil {
					return fail(env.formatter, "searching", err)
				}
				views := make(matchList, 0, len(matches))
				for _, m := range matches {
					views = append(views, MatchView{Score: m.Score, Entry: newEntryView(m.Entry)})
				}
				return env.formatter.Success(views)
			})
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 5, "number of matches")
	return cmd
}

func newHistoryDeleteCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <session>",
		Short:         "Delete a session and its entries",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(env *historyEnv) error {
				if err := env.store.DeleteSession(cmd.Context(), args[0]); err != nil {
					return fail(env.formatter, "deleting session", err)
				}
				return env.formatter.Success(fmt.Sprintf("deleted %s", args[0]))
			})
		},
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
