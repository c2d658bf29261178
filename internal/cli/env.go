package cli

import (
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/querygraph/internal/config"
	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/loader"
	"github.com/roach88/querygraph/internal/store"
	"github.com/roach88/querygraph/internal/validation"
)

// Error codes reported by commands, in addition to loader and graph codes.
const (
	ErrCodeGeneric         = "E_GENERIC"
	ErrCodeConfig          = "E_CONFIG"
	ErrCodeInvalidGraph    = "E_INVALID_GRAPH"
	ErrCodeStore           = "E_STORE"
	ErrCodeSessionNotFound = "E_SESSION_NOT_FOUND"
	ErrCodeEntryNotFound   = "E_ENTRY_NOT_FOUND"
	ErrCodeSeqConflict     = "E_SEQ_CONFLICT"
	ErrCodeWriteFailed     = "E_WRITE_FAILED"
	ErrCodeNoEmbedder      = "E_NO_EMBEDDER"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// loadConfig reads --config; without one the defaults apply.
func (o *RootOptions) loadConfig() (config.Config, error) {
	return config.LoadConfig(o.ConfigPath)
}

// logger writes to w at the configured level; --verbose forces debug.
func (o *RootOptions) logger(w io.Writer, cfg config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// errorCode maps an error onto the code reported in CLI output.
func errorCode(err error) string {
	var le *loader.LoadError
	var ge *graph.GraphError
	switch {
	case errors.As(err, &le):
		return le.Code
	case errors.As(err, &ge):
		return string(ge.Code)
	case validation.IsValidation(err):
		return ErrCodeInvalidGraph
	case errors.Is(err, store.ErrSessionNotFound):
		return ErrCodeSessionNotFound
	case errors.Is(err, store.ErrEntryNotFound):
		return ErrCodeEntryNotFound
	case errors.Is(err, store.ErrSeqConflict):
		return ErrCodeSeqConflict
	}
	return ErrCodeGeneric
}

// exitCodeFor treats missing inputs as command errors and everything else
// as a failure of the graph or history being checked.
func exitCodeFor(err error) int {
	var le *loader.LoadError
	if errors.As(err, &le) && (le.Code == loader.ErrCodeNotFound || le.Code == loader.ErrCodeFormat) {
		return ExitCommandError
	}
	if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrEntryNotFound) {
		return ExitCommandError
	}
	return ExitFailure
}

// fail reports err through the formatter and returns the matching ExitError.
func fail(f *OutputFormatter, message string, err error) error {
	if outErr := f.Error(errorCode(err), err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(exitCodeFor(err), message, err)
}

// failWith reports err under an explicit code and exit code.
func failWith(f *OutputFormatter, code string, exit int, message string, err error) error {
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(exit, message, err)
}
