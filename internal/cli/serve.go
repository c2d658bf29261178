package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/querygraph/internal/embedding"
	"github.com/roach88/querygraph/internal/server"
	"github.com/roach88/querygraph/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
	DB   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API for the graph editor",
		Long: `Serve compile, lint, diff and session history endpoints under /api/v1,
plus /health and Prometheus metrics on /metrics. Stops cleanly on SIGINT
or SIGTERM after pending embedding calls finish.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (defaults to the config file's server.addr)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "database path (defaults to the config file's database)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return failWith(formatter, ErrCodeConfig, ExitCommandError, "loading config", err)
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.DB != "" {
		cfg.Database = opts.DB
	}
	logger := opts.logger(cmd.ErrOrStderr(), cfg)

	st, err := store.Open(cfg.Database)
	if err != nil {
		return failWith(formatter, ErrCodeStore, ExitCommandError, "opening store", err)
	}
	defer st.Close()

	emb, err := embedding.New(cfg.EmbeddingOptions(logger))
	if err != nil {
		return failWith(formatter, ErrCodeConfig, ExitCommandError, "configuring embeddings", err)
	}
	logger.Info("starting server",
		"addr", cfg.Server.Addr,
		"database", cfg.Database,
		"embedding_provider", cfg.Embedding.Provider,
	)

	srv := server.New(st, cfg, emb, logger)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return failWith(formatter, ErrCodeGeneric, ExitFailure, "serving", err)
	}
	logger.Info("server stopped")
	return nil
}
