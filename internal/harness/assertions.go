package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/querygraph/internal/history"
	"github.com/roach88/querygraph/internal/sparql"
)

// AssertionContext is the state assertions are evaluated against once
// every step has run.
type AssertionContext struct {
	History *history.History
}

// AssertionError is a failed assertion. Its message carries the whole
// trace so a failing scenario can be read without rerunning it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assertion failed: %s\n  Expected: %s\n  Actual: %s\n\nFull trace:\n",
		e.Type, e.Expected, e.Actual)
	for _, ev := range e.Trace {
		if ev.Admitted {
			fmt.Fprintf(&b, "  [%d] admitted seq=%d\n", ev.Step, ev.Seq)
			continue
		}
		fmt.Fprintf(&b, "  [%d] rejected (%s)\n", ev.Step, ev.Reason)
	}
	return b.String()
}

// check evaluates one assertion. fail builds the AssertionError.
type check func(h *history.History, a Assertion, fail failFunc) error

type failFunc func(expected, actual string) error

var checks = map[string]check{
	AssertEntryCount:         checkEntryCount,
	AssertQueryContains:      withEntry(checkQueryContains),
	AssertParaphraseContains: withEntry(checkParaphraseContains),
	AssertLintClean:          withEntry(checkLintClean),
}

// EvaluateAssertions returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var msgs []string
	for _, a := range assertions {
		run, ok := checks[a.Type]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("unknown assertion type %q", a.Type))
			continue
		}
		fail := func(expected, actual string) error {
			return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: result.Trace}
		}
		if err := run(actx.History, a, fail); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

func checkEntryCount(h *history.History, a Assertion, fail failFunc) error {
	if n := h.Len(); n != a.Count {
		return fail(fmt.Sprintf("%d entries", a.Count), fmt.Sprintf("%d entries", n))
	}
	return nil
}

// withEntry resolves the assertion's seq before running an entry check.
func withEntry(fn func(e *history.Entry, a Assertion, fail failFunc) error) check {
	return func(h *history.History, a Assertion, fail failFunc) error {
		e := h.BySeq(a.Seq)
		if e == nil {
			return fail(fmt.Sprintf("entry %d", a.Seq), "no such entry")
		}
		return fn(e, a, fail)
	}
}

func checkQueryContains(e *history.Entry, a Assertion, fail failFunc) error {
	query, err := sparql.GenerateQuery(e.Snapshot, 0, 0, false)
	if err != nil {
		return fail(fmt.Sprintf("entry %d compiles", a.Seq), err.Error())
	}
	if !strings.Contains(query, a.Text) {
		return fail(fmt.Sprintf("query of entry %d contains %q", a.Seq, a.Text), query)
	}
	return nil
}

func checkParaphraseContains(e *history.Entry, a Assertion, fail failFunc) error {
	if !strings.Contains(e.Paraphrase, a.Text) {
		return fail(fmt.Sprintf("paraphrase of entry %d contains %q", a.Seq, a.Text),
			fmt.Sprintf("%q", e.Paraphrase))
	}
	return nil
}

func checkLintClean(e *history.Entry, a Assertion, fail failFunc) error {
	qs, err := e.Snapshot.QuerySet()
	if err != nil {
		return fail(fmt.Sprintf("entry %d flattens", a.Seq), err.Error())
	}
	if res := sparql.Lint(qs); !res.Clean {
		return fail(fmt.Sprintf("entry %d lints clean", a.Seq), strings.Join(res.Warnings, "; "))
	}
	return nil
}
