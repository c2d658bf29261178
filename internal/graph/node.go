package graph

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/querygraph/internal/ident"
)

// NodeState is the display state of a node.
type NodeState string

const (
	StateNormal          NodeState = "normal"
	StateSelected        NodeState = "selected"
	StateHovered         NodeState = "hovered"
	StatePendingDeletion NodeState = "pending_deletion"
	StateAdded           NodeState = "added"
	StateRemoved         NodeState = "removed"
	StateChanged         NodeState = "changed"
	StateAttaching       NodeState = "attaching"
)

// SubjectNode is a typed vertex of the query graph.
type SubjectNode struct {
	InternalID string `json:"internal_id"`

	// Seq is the allocation ordinal; subtree traversal only descends to
	// nodes with a greater or equal Seq.
	Seq int64 `json:"seq"`

	SubjectTypeID string  `json:"subject_id"`
	Label         string  `json:"label"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`

	// SubQueries is owned by the node. Never nil.
	SubQueries []SubQuery `json:"-"`

	State NodeState `json:"state"`
}

// NewSubjectNode creates a node with a freshly allocated internal id.
func NewSubjectNode(alloc *ident.Allocator, subjectTypeID, label string) *SubjectNode {
	id, seq := alloc.NextNodeID()
	return newNode(id, seq, subjectTypeID, label)
}

// NewSubjectNodeWithID creates a node keeping a caller-supplied internal id,
// e.g. one read from a persisted payload. The allocator is advanced past it.
func NewSubjectNodeWithID(alloc *ident.Allocator, internalID, subjectTypeID, label string) *SubjectNode {
	alloc.ObserveNodeID(internalID)
	return newNode(internalID, alloc.NextNodeSeq(), subjectTypeID, label)
}

func newNode(id string, seq int64, subjectTypeID, label string) *SubjectNode {
	return &SubjectNode{
		InternalID:    id,
		Seq:           seq,
		SubjectTypeID: subjectTypeID,
		Label:         label,
		Width:         NodeWidth,
		Height:        NodeHeight,
		SubQueries:    []SubQuery{},
		State:         StateNormal,
	}
}

// OutputVar returns the variable bound to this node.
func (n *SubjectNode) OutputVar() string {
	return "?" + SanitizeVar(n.InternalID)
}

// LabelVar returns the variable bound to this node's label.
func (n *SubjectNode) LabelVar() string {
	return "?lbl_" + SanitizeVar(n.InternalID)
}

// Name returns a readable name for paraphrases.
func (n *SubjectNode) Name() string {
	return fmt.Sprintf("%s (%s)", ReadableName(n.SubjectTypeID, n.Label), n.InternalID)
}

// AddSubQuery appends sq to the node's constraints.
func (n *SubjectNode) AddSubQuery(sq SubQuery) {
	if sq != nil {
		n.SubQueries = append(n.SubQueries, sq)
	}
}

// RemoveSubQuery removes the subquery with the given id.
func (n *SubjectNode) RemoveSubQuery(id int64) bool {
	for i, sq := range n.SubQueries {
		if sq.SubQueryID() == id {
			n.SubQueries = append(n.SubQueries[:i], n.SubQueries[i+1:]...)
			return true
		}
	}
	return false
}

// DiffID returns the node's identity key.
func (n *SubjectNode) DiffID() string { return n.InternalID }

// Changed compares the semantic fields: subject type, label and subqueries.
// Geometry and display state do not count.
func (n *SubjectNode) Changed(other *SubjectNode) bool {
	if other == nil {
		return true
	}
	if n.SubjectTypeID != other.SubjectTypeID || n.Label != other.Label {
		return true
	}
	if len(n.SubQueries) != len(other.SubQueries) {
		return true
	}
	for i, sq := range n.SubQueries {
		if sq.SubQueryID() != other.SubQueries[i].SubQueryID() || sq.Changed(other.SubQueries[i]) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy including subqueries.
func (n *SubjectNode) Clone() *SubjectNode {
	if n == nil {
		return nil
	}
	out := *n
	out.SubQueries = make([]SubQuery, 0, len(n.SubQueries))
	for _, sq := range n.SubQueries {
		out.SubQueries = append(out.SubQueries, sq.Clone())
	}
	return &out
}

type nodeAlias SubjectNode

type nodeJSON struct {
	*nodeAlias
	SubQueries []json.RawMessage `json:"subqueries"`
}

// MarshalJSON encodes subqueries with their variant tags.
func (n *SubjectNode) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(n.SubQueries))
	for _, sq := range n.SubQueries {
		data, err := MarshalSubQuery(sq)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.InternalID, err)
		}
		raw = append(raw, data)
	}
	return json.Marshal(nodeJSON{nodeAlias: (*nodeAlias)(n), SubQueries: raw})
}

// UnmarshalJSON revives subqueries through the registry.
func (n *SubjectNode) UnmarshalJSON(data []byte) error {
	aux := nodeJSON{nodeAlias: (*nodeAlias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.SubQueries = make([]SubQuery, 0, len(aux.SubQueries))
	for _, raw := range aux.SubQueries {
		sq, err := UnmarshalSubQuery(raw)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.InternalID, err)
		}
		n.SubQueries = append(n.SubQueries, sq)
	}
	return nil
}
