package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/history"
	"github.com/roach88/querygraph/internal/ident"
	"github.com/roach88/querygraph/internal/loader"
	"github.com/roach88/querygraph/internal/store"
	"github.com/roach88/querygraph/internal/testutil"
)

// sessionID is the fixed id of the single session a run records into.
const sessionID = "harness"

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic clock against an isolated store.
type Harness struct {
	store   *store.Store
	history *history.History
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and a session
// 2. Submit each step to the history, recording the outcome
// 3. Check step expectations
// 4. Check that the store holds every admitted entry
// 5. Evaluate assertions against the final history
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with a caller-supplied logger for history events.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	st, err := store.Open(":memory:",
		store.WithTokens(ident.NewFixedGenerator(sessionID)),
		store.WithClock(testutil.Frozen(testutil.Epoch)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewDeterministicClock()

	ctx := context.Background()
	if _, err := st.CreateSession(ctx, scenario.Name); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	h, err := st.LoadHistory(ctx, sessionID, history.Options{
		Viewport: history.Vec2{X: scenario.Viewport.Width, Y: scenario.Viewport.Height},
		Now:      clock.Now,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	hs := &Harness{store: st, history: h, clock: clock, logger: logger}

	result := NewResult()
	if err := hs.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}
	if err := hs.checkPersisted(ctx, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{History: h}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (hs *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		repo, err := buildStep(step, hs.history.Baseline())
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		e, err := hs.history.TryAddEntry(ctx, repo)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		ev := TraceEvent{Step: i}
		switch {
		case e != nil:
			ev.Admitted = true
			ev.Seq = e.Seq
			ev.Timestamp = e.Timestamp
			if e.Diff != nil {
				ev.Diff = countsOf(e.Diff.Summarize())
			}
		case repo.IsEditing():
			ev.Reason = ReasonEditing
		default:
			ev.Reason = ReasonUnchanged
		}
		result.AddTrace(ev)
		hs.logger.Debug("scenario step", "step", i, "admitted", ev.Admitted, "reason", ev.Reason)

		if step.Expect != nil {
			for _, msg := range checkExpect(i, ev, step.Expect) {
				result.AddError(msg)
			}
		}
	}
	return nil
}

// buildStep materializes a step's graph with a fresh allocator, the way the
// editor resubmits its whole state. Entities without ids take those of the
// last admitted state.
func buildStep(step Step, baseline *graph.Repository) (*graph.Repository, error) {
	var (
		repo *graph.Repository
		err  error
	)
	if step.File != "" {
		repo, err = loader.LoadFile(step.File, nil, graph.MatchIDs(baseline))
	} else {
		repo, err = graph.FromQueryGraph(step.Graph, nil, graph.MatchIDs(baseline))
	}
	if err != nil {
		return nil, err
	}
	if step.Editing {
		repo.BeginEditing()
	}
	return repo, nil
}

func checkExpect(step int, ev TraceEvent, want *StepExpect) []string {
	var errs []string
	if ev.Admitted != want.Admitted {
		errs = append(errs, fmt.Sprintf("step %d: admitted = %t, expected %t", step, ev.Admitted, want.Admitted))
		return errs
	}
	if want.Reason != "" && ev.Reason != want.Reason {
		errs = append(errs, fmt.Sprintf("step %d: reason = %q, expected %q", step, ev.Reason, want.Reason))
	}
	if len(want.Diff) == 0 {
		return errs
	}
	got := ev.Diff
	if got == nil {
		got = &DiffCounts{}
	}
	for _, key := range slices.Sorted(maps.Keys(want.Diff)) {
		n, _ := got.get(key)
		if n != want.Diff[key] {
			errs = append(errs, fmt.Sprintf("step %d: diff %s = %d, expected %d", step, key, n, want.Diff[key]))
		}
	}
	return errs
}

// checkPersisted verifies that the store recorded exactly the admitted
// entries, in order.
func (hs *Harness) checkPersisted(ctx context.Context, result *Result) error {
	rows, err := hs.store.ReadEntries(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to read persisted entries: %w", err)
	}
	entries := hs.history.Entries()
	if len(rows) != len(entries) {
		result.AddError(fmt.Sprintf("store holds %d entries, history holds %d", len(rows), len(entries)))
		return nil
	}
	for i, e := range entries {
		if rows[i].Seq != e.Seq || rows[i].Digest != e.Digest {
			result.AddError(fmt.Sprintf("stored entry %d does not match admitted entry %d", rows[i].Seq, e.Seq))
		}
	}
	return nil
}
