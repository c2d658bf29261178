package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/validation"
)

// Scenario is a scripted editing session. Name also names its golden
// file.
type Scenario struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description" validate:"required"`

	// Viewport is the preview size entries are rescaled to. Zero skips
	// rescaling.
	Viewport Viewport `yaml:"viewport,omitempty"`

	Steps      []Step      `yaml:"steps" validate:"required,min=1"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Viewport is a preview size in canvas units.
type Viewport struct {
	Width  float64 `yaml:"width" validate:"gte=0"`
	Height float64 `yaml:"height" validate:"gte=0"`
}

// Step submits one graph state, read from File (relative to the scenario)
// or given inline as Graph.
type Step struct {
	File    string            `yaml:"file,omitempty"`
	Graph   *graph.QueryGraph `yaml:"graph,omitempty"`
	Editing bool              `yaml:"editing,omitempty"`
	Expect  *StepExpect       `yaml:"expect,omitempty"`
}

// StepExpect is the outcome a step must have.
type StepExpect struct {
	Admitted bool   `yaml:"admitted"`
	Reason   string `yaml:"reason,omitempty"`

	// Diff is a subset match on partition sizes, keyed like the DiffCounts
	// JSON fields.
	Diff map[string]int `yaml:"diff,omitempty"`
}

// Assertion is checked against the final history. Count applies to
// entry_count; Seq picks the entry for the others, and Text is the
// substring the *_contains kinds look for.
type Assertion struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count,omitempty"`
	Seq   int64  `yaml:"seq,omitempty"`
	Text  string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertEntryCount         = "entry_count"
	AssertQueryContains      = "query_contains"
	AssertParaphraseContains = "paraphrase_contains"
	AssertLintClean          = "lint_clean"
)

// LoadScenario parses a scenario file. Unknown keys are rejected, step
// files are resolved against the scenario's directory and must exist.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	dir := filepath.Dir(path)
	for i, step := range scenario.Steps {
		if step.File != "" && !filepath.IsAbs(step.File) {
			scenario.Steps[i].File = filepath.Join(dir, step.File)
		}
	}

	if err := scenario.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func (s *Scenario) validate() error {
	if err := validation.Struct(s); err != nil {
		return err
	}
	for i, step := range s.Steps {
		if msg := step.problem(); msg != "" {
			return validation.Problemf("steps[%d]%s", i, msg)
		}
	}
	for i, a := range s.Assertions {
		if msg := a.problem(); msg != "" {
			return validation.Problemf("assertions[%d]: %s", i, msg)
		}
	}
	return nil
}

func (st Step) problem() string {
	if (st.File == "") == (st.Graph == nil) {
		if st.File == "" {
			return ": one of file or graph is required"
		}
		return ": file and graph are mutually exclusive"
	}
	if st.File != "" {
		if _, err := os.Stat(st.File); errors.Is(err, fs.ErrNotExist) {
			return ": graph file not found: " + st.File
		}
	}
	e := st.Expect
	if e == nil {
		return ""
	}
	switch e.Reason {
	case "", ReasonEditing, ReasonUnchanged:
	default:
		return fmt.Sprintf(".expect: unknown reason %q", e.Reason)
	}
	if e.Admitted && e.Reason != "" {
		return ".expect: reason is only valid when admitted is false"
	}
	for key := range e.Diff {
		if _, ok := (&DiffCounts{}).get(key); !ok {
			return fmt.Sprintf(".expect.diff: unknown partition %q", key)
		}
	}
	return ""
}

func (a Assertion) problem() string {
	switch a.Type {
	case "":
		return "type is required"
	case AssertEntryCount:
		if a.Count < 0 {
			return "count must be non-negative for entry_count"
		}
		return ""
	case AssertQueryContains, AssertParaphraseContains, AssertLintClean:
	default:
		return fmt.Sprintf("unknown assertion type %q", a.Type)
	}
	if a.Seq <= 0 {
		return "seq is required for " + a.Type
	}
	if a.Text == "" && a.Type != AssertLintClean {
		return "text is required for " + a.Type
	}
	return ""
}
