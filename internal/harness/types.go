package harness

import "github.com/roach88/querygraph/internal/diff"

// Rejection reasons recorded in the trace.
const (
	ReasonEditing   = "editing"
	ReasonUnchanged = "unchanged"
)

// DiffCounts is the size of each partition of an entry's diff.
type DiffCounts struct {
	NodesAdded   int `json:"nodes_added"`
	NodesRemoved int `json:"nodes_removed"`
	NodesChanged int `json:"nodes_changed"`
	LinksAdded   int `json:"links_added"`
	LinksRemoved int `json:"links_removed"`
	LinksChanged int `json:"links_changed"`
}

func countsOf(s diff.Summary) *DiffCounts {
	return &DiffCounts{
		NodesAdded:   len(s.NodesAdded),
		NodesRemoved: len(s.NodesRemoved),
		NodesChanged: len(s.NodesChanged),
		LinksAdded:   len(s.LinksAdded),
		LinksRemoved: len(s.LinksRemoved),
		LinksChanged: len(s.LinksChanged),
	}
}

// get returns the count named by its JSON key.
func (c *DiffCounts) get(key string) (int, bool) {
	switch key {
	case "nodes_added":
		return c.NodesAdded, true
	case "nodes_removed":
		return c.NodesRemoved, true
	case "nodes_changed":
		return c.NodesChanged, true
	case "links_added":
		return c.LinksAdded, true
	case "links_removed":
		return c.LinksRemoved, true
	case "links_changed":
		return c.LinksChanged, true
	}
	return 0, false
}

// TraceEvent records the outcome of one step.
type TraceEvent struct {
	Step      int         `json:"step"`
	Admitted  bool        `json:"admitted"`
	Reason    string      `json:"reason,omitempty"`
	Seq       int64       `json:"seq,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Diff      *DiffCounts `json:"diff,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
