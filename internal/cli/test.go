package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/querygraph/internal/harness"
	"github.com/roach88/querygraph/internal/loader"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name    string   `json:"name"`
	Pass    bool     `json:"pass"`
	Updated bool     `json:"updated,omitempty"` // golden file rewritten
	Errors  []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// WriteText prints one line per scenario, the errors of failed ones and a
// summary.
func (r TestResult) WriteText(w io.Writer) error {
	if r.Total == 0 {
		_, err := fmt.Fprintln(w, "No scenarios found.")
		return err
	}
	for _, s := range r.Scenarios {
		switch {
		case s.Updated:
			fmt.Fprintf(w, "✓ %s (golden updated)\n", s.Name)
		case s.Pass:
			fmt.Fprintf(w, "✓ %s\n", s.Name)
		default:
			fmt.Fprintf(w, "✗ %s\n", s.Name)
			for _, e := range s.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	if r.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
	return nil
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run history scenarios",
		Long: `Replay scripted editing sessions against the history engine.

Each scenario checks which states are admitted, the diff of every admitted
entry and assertions on the final history. When golden/<name>.golden exists
next to a scenario, the trace must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  querygraph test ./scenarios
  querygraph test ./scenarios --filter "person-*"
  querygraph test ./scenarios --update
  querygraph test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return failWith(formatter, loader.ErrCodeNotFound, ExitCommandError, "finding scenarios",
			fmt.Errorf("scenarios directory not found: %s", scenariosDir))
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return failWith(formatter, ErrCodeGeneric, ExitCommandError, "finding scenarios", err)
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, file := range files {
		sr := runScenario(file, opts.Update)
		formatter.VerboseLog("%s: pass=%t", file, sr.Pass)
		result.add(sr)
	}
	return reportTests(formatter, result)
}

// findScenarioFiles returns the .yaml/.yml scenarios under dir whose base
// name matches filter. Step payloads (graphs/) and golden files are skipped.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (d.Name() == "golden" || d.Name() == "graphs") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario runs one scenario file. Without a golden file only step
// expectations and assertions are checked.
func runScenario(file string, update bool) ScenarioResult {
	failed := func(name string, errs ...string) ScenarioResult {
		return ScenarioResult{Name: name, Errors: errs}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed(filepath.Base(file), fmt.Sprintf("failed to load scenario: %v", err))
	}
	result, err := harness.Run(scenario)
	if err != nil {
		return failed(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	goldenPath := harness.GoldenPath(file)
	if update {
		if err := harness.UpdateGolden(goldenPath, scenario.Name, result); err != nil {
			return failed(scenario.Name, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return ScenarioResult{Name: scenario.Name, Pass: true, Updated: true}
	}

	if _, err := os.Stat(goldenPath); err == nil {
		match, err := harness.CompareGolden(goldenPath, scenario.Name, result)
		if err != nil {
			return failed(scenario.Name, fmt.Sprintf("golden comparison failed: %v", err))
		}
		if !match {
			return failed(scenario.Name, "trace does not match golden file (run with --update to regenerate)")
		}
	}
	if !result.Pass {
		return failed(scenario.Name, result.Errors...)
	}
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

// reportTests writes the result and turns failures into exit code 1. In
// JSON mode a failed run carries both the result and an E_TEST_FAILED error.
func reportTests(f *OutputFormatter, result TestResult) error {
	var exitErr error
	if result.Failed > 0 {
		exitErr = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	if f.Format != "json" {
		if err := f.Success(result); err != nil {
			return err
		}
		return exitErr
	}

	response := CLIResponse{Status: "ok", Data: result}
	if exitErr != nil {
		response.Status = "error"
		response.Error = &CLIError{Code: "E_TEST_FAILED", Message: exitErr.Error()}
	}
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	return exitErr
}
