package ident

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// NodePrefix is prepended to allocated node ids ("node_1", "node_2", ...).
const NodePrefix = "node_"

// Allocator hands out process-unique ids for graph entities.
//
// Each entity kind has its own monotonic counter. Counters start at 0 and the
// first call to a Next method returns 1. An Allocator is owned by a session
// (or a single repository); tests create their own so ids never leak between
// test cases.
//
// Thread-safety: Allocator is safe for concurrent use (atomic operations).
type Allocator struct {
	nodes      atomic.Int64
	links      atomic.Int64
	subqueries atomic.Int64
	repos      atomic.Int64
}

// NewAllocator creates an allocator with all counters at 0.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// NextNodeSeq returns the next node ordinal.
// Node ordinals drive the childId > parentId tie-break in subtree traversal.
func (a *Allocator) NextNodeSeq() int64 {
	return a.nodes.Add(1)
}

// NextNodeID returns a fresh node internal id together with its ordinal.
func (a *Allocator) NextNodeID() (string, int64) {
	seq := a.NextNodeSeq()
	return fmt.Sprintf("%s%d", NodePrefix, seq), seq
}

// NextLinkID returns the next link id.
func (a *Allocator) NextLinkID() int64 {
	return a.links.Add(1)
}

// NextSubQueryID returns the next subquery id.
func (a *Allocator) NextSubQueryID() int64 {
	return a.subqueries.Add(1)
}

// NextRepositoryID returns the next repository id.
func (a *Allocator) NextRepositoryID() int64 {
	return a.repos.Add(1)
}

// ObserveNodeSeq advances the node counter so it is at least seq.
// Used when entities are revived from a payload or snapshot, so later
// allocations never collide with revived ids.
func (a *Allocator) ObserveNodeSeq(seq int64) {
	advance(&a.nodes, seq)
}

// ObserveNodeID advances the node counter past an allocated-looking id
// ("node_42"). Ids that do not carry the allocator prefix are ignored.
func (a *Allocator) ObserveNodeID(id string) {
	rest, ok := strings.CutPrefix(id, NodePrefix)
	if !ok {
		return
	}
	if n, err := strconv.ParseInt(rest, 10, 64); err == nil {
		advance(&a.nodes, n)
	}
}

// ObserveLinkID advances the link counter so it is at least id.
func (a *Allocator) ObserveLinkID(id int64) {
	advance(&a.links, id)
}

// ObserveSubQueryID advances the subquery counter so it is at least id.
func (a *Allocator) ObserveSubQueryID(id int64) {
	advance(&a.subqueries, id)
}

// ObserveRepositoryID advances the repository counter so it is at least id.
func (a *Allocator) ObserveRepositoryID(id int64) {
	advance(&a.repos, id)
}

func advance(c *atomic.Int64, to int64) {
	for {
		cur := c.Load()
		if cur >= to {
			return
		}
		if c.CompareAndSwap(cur, to) {
			return
		}
	}
}
