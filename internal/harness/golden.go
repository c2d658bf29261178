package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/querygraph/internal/canon"
)

// TraceSnapshot is what a golden file holds: the scenario name and its
// trace, in canonical JSON.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	data, err := canon.Marshal(TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace})
	if err != nil {
		return nil, fmt.Errorf("snapshot %q: %w", scenarioName, err)
	}
	return data, nil
}

// GoldenPath maps dir/name.yaml to dir/golden/name.golden.
func GoldenPath(scenarioFile string) string {
	dir, file := filepath.Split(scenarioFile)
	return filepath.Join(dir, "golden", strings.TrimSuffix(file, filepath.Ext(file))+".golden")
}

// UpdateGolden overwrites the golden file with the run's snapshot,
// creating the golden directory as needed.
func UpdateGolden(goldenPath, scenarioName string, result *Result) error {
	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
		return fmt.Errorf("update golden: %w", err)
	}
	if err := os.WriteFile(goldenPath, data, 0o644); err != nil {
		return fmt.Errorf("update golden: %w", err)
	}
	return nil
}

// CompareGolden reports whether the golden file holds exactly the run's
// snapshot. A missing golden file is an error, not a mismatch.
func CompareGolden(goldenPath, scenarioName string, result *Result) (bool, error) {
	want, err := os.ReadFile(goldenPath)
	if err != nil {
		return false, fmt.Errorf("compare golden: %w", err)
	}
	got, err := Snapshot(scenarioName, result)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, got), nil
}

// AssertGolden checks a run against testdata/golden/<name>.golden with
// goldie; `go test ./internal/harness -update` rewrites the fixtures.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		t.Fatal(err)
	}
	goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, scenarioName, data)
}
