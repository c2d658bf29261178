package diff

import (
	"fmt"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/metrics"
)

// ConstraintList is the id-matched diff of a node's subqueries.
type ConstraintList = DiffList[graph.SubQuery, *InstanceDiff[graph.SubQuery]]

// NodeDiff is the change of one node, including its constraints.
type NodeDiff struct {
	InstanceDiff[*graph.SubjectNode]

	Constraints *ConstraintList `json:"diff_constraints"`
}

// LinkDiff is the change of one link.
type LinkDiff = InstanceDiff[*graph.Link]

// NodeList is the id-matched diff of two node collections.
type NodeList = DiffList[*graph.SubjectNode, *NodeDiff]

// LinkList is the id-matched diff of two link collections.
type LinkList = DiffList[*graph.Link, *LinkDiff]

// Nodes diffs one node across two states, constraints included.
func Nodes(left, right *graph.SubjectNode) (*NodeDiff, error) {
	inst, err := NewInstanceDiff(left, right)
	if err != nil {
		return nil, err
	}
	d := &NodeDiff{InstanceDiff: *inst}

	var lsq, rsq []graph.SubQuery
	if left != nil {
		lsq = left.SubQueries
	}
	if right != nil {
		rsq = right.SubQueries
	}
	d.Constraints, err = NewDiffList(lsq, rsq, NewInstanceDiff[graph.SubQuery])
	if err != nil {
		return nil, fmt.Errorf("constraints: %w", err)
	}
	return d, nil
}

// Links diffs one link across two states.
func Links(left, right *graph.Link) (*LinkDiff, error) {
	return NewInstanceDiff(left, right)
}

// RepositoryDiff is the structural difference between two graph states.
type RepositoryDiff struct {
	// Prior is a copy of the left-hand repository; nil when there was none.
	Prior *graph.Repository `json:"prior,omitempty"`

	Nodes *NodeList `json:"diff_nodes"`
	Links *LinkList `json:"diff_links"`
}

// Repositories computes the node and link diffs between two states.
// A nil left side is treated as an empty repository.
func Repositories(left, right *graph.Repository) (*RepositoryDiff, error) {
	metrics.DiffsTotal.Inc()

	var lnodes []*graph.SubjectNode
	var llinks []*graph.Link
	if left != nil {
		lnodes, llinks = left.Nodes, left.Links
	}
	var rnodes []*graph.SubjectNode
	var rlinks []*graph.Link
	if right != nil {
		rnodes, rlinks = right.Nodes, right.Links
	}

	nodes, err := NewDiffList(lnodes, rnodes, Nodes)
	if err != nil {
		return nil, fmt.Errorf("diff nodes: %w", err)
	}
	links, err := NewDiffList(llinks, rlinks, Links)
	if err != nil {
		return nil, fmt.Errorf("diff links: %w", err)
	}
	return &RepositoryDiff{Prior: left.Clone(), Nodes: nodes, Links: links}, nil
}

// Empty reports whether all four partitions are empty.
func (d *RepositoryDiff) Empty() bool {
	return d == nil || d.Nodes.Empty() && d.Links.Empty()
}

// Summary lists the ids in each partition of a RepositoryDiff.
type Summary struct {
	NodesAdded   []string `json:"nodes_added"`
	NodesRemoved []string `json:"nodes_removed"`
	NodesChanged []string `json:"nodes_changed"`
	LinksAdded   []string `json:"links_added"`
	LinksRemoved []string `json:"links_removed"`
	LinksChanged []string `json:"links_changed"`
}

// Summarize returns the id summary of d.
func (d *RepositoryDiff) Summarize() Summary {
	s := Summary{
		NodesAdded:   []string{},
		NodesRemoved: []string{},
		NodesChanged: []string{},
		LinksAdded:   []string{},
		LinksRemoved: []string{},
		LinksChanged: []string{},
	}
	if d == nil {
		return s
	}
	if d.Nodes != nil {
		s.NodesAdded = d.Nodes.AddedIDs()
		s.NodesRemoved = d.Nodes.RemovedIDs()
		for _, c := range d.Nodes.Changed {
			s.NodesChanged = append(s.NodesChanged, c.Right.DiffID())
		}
	}
	if d.Links != nil {
		s.LinksAdded = d.Links.AddedIDs()
		s.LinksRemoved = d.Links.RemovedIDs()
		for _, c := range d.Links.Changed {
			s.LinksChanged = append(s.LinksChanged, c.Right.DiffID())
		}
	}
	return s
}
