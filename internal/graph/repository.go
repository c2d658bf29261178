package graph

import (
	"fmt"
	"strconv"

	"github.com/roach88/querygraph/internal/ident"
)

// EditingState gates history admission.
type EditingState string

const (
	Stable  EditingState = "stable"
	Editing EditingState = "editing"
)

// Side says which end of a new link the origin node sits on.
type Side string

const (
	// SideTo makes origin the tail: origin -> target.
	SideTo Side = "to_link"
	// SideFrom makes origin the head: target -> origin.
	SideFrom Side = "from_link"
)

// Repository owns the nodes and links of one query graph.
//
// Thread-safety: a Repository is not safe for concurrent mutation. Callers
// must not mutate it while a compile or diff over it is running.
type Repository struct {
	ID    int64          `json:"id"`
	Nodes []*SubjectNode `json:"nodes"`
	Links []*Link        `json:"links"`
	State EditingState   `json:"state"`

	alloc *ident.Allocator
}

// NewRepository creates an empty repository. A nil alloc gets a fresh one.
func NewRepository(alloc *ident.Allocator) *Repository {
	if alloc == nil {
		alloc = ident.NewAllocator()
	}
	return &Repository{
		ID:    alloc.NextRepositoryID(),
		Nodes: []*SubjectNode{},
		Links: []*Link{},
		State: Stable,
		alloc: alloc,
	}
}

// Allocator returns the id allocator bound to the repository.
func (r *Repository) Allocator() *ident.Allocator {
	if r.alloc == nil {
		r.alloc = ident.NewAllocator()
		r.observeIDs()
	}
	return r.alloc
}

func (r *Repository) observeIDs() {
	r.alloc.ObserveRepositoryID(r.ID)
	for _, n := range r.Nodes {
		r.alloc.ObserveNodeID(n.InternalID)
		r.alloc.ObserveNodeSeq(n.Seq)
		for _, sq := range n.SubQueries {
			r.alloc.ObserveSubQueryID(sq.SubQueryID())
			if l := sq.Link(); l != nil {
				r.alloc.ObserveLinkID(l.LinkID)
			}
		}
	}
	for _, l := range r.Links {
		r.alloc.ObserveLinkID(l.LinkID)
	}
}

// BeginEditing marks the graph as mid-edit; history ignores it until EndEditing.
func (r *Repository) BeginEditing() { r.State = Editing }

// EndEditing marks the graph as stable.
func (r *Repository) EndEditing() { r.State = Stable }

// IsEditing reports whether the graph is mid-edit.
func (r *Repository) IsEditing() bool { return r.State == Editing }

// Node looks a node up by internal id.
func (r *Repository) Node(internalID string) *SubjectNode {
	for _, n := range r.Nodes {
		if n.InternalID == internalID {
			return n
		}
	}
	return nil
}

// Link looks a link up by id.
func (r *Repository) Link(linkID int64) *Link {
	for _, l := range r.Links {
		if l.LinkID == linkID {
			return l
		}
	}
	return nil
}

// HasNode reports whether this exact node value is held (identity by reference).
func (r *Repository) HasNode(n *SubjectNode) bool {
	for _, held := range r.Nodes {
		if held == n {
			return true
		}
	}
	return false
}

// AddNode inserts n unless this exact node is already held.
func (r *Repository) AddNode(n *SubjectNode) bool {
	if n == nil || r.HasNode(n) {
		return false
	}
	r.Nodes = append(r.Nodes, n)
	return true
}

// NewLink allocates a link for property between no endpoints yet.
func (r *Repository) NewLink(propertyID, label, valueType string) *Link {
	return &Link{
		LinkID:          r.Allocator().NextLinkID(),
		PropertyID:      propertyID,
		Label:           label,
		TargetValueType: valueType,
	}
}

// NewPropertyLink allocates the link a constraint on owner uses to name its
// property. The link's tail is owner; it has no head.
func (r *Repository) NewPropertyLink(owner *SubjectNode, propertyID, label, valueType string) *Link {
	l := r.NewLink(propertyID, label, valueType)
	l.FromInternalID = owner.InternalID
	l.FromID = owner.SubjectTypeID
	return l
}

// AddSubQuery attaches sq to a node held by the repository.
func (r *Repository) AddSubQuery(node *SubjectNode, sq SubQuery) error {
	if r.Node(node.InternalID) == nil {
		return &GraphError{Code: ErrCodeUnknownNode, Message: "node not in repository", NodeID: node.InternalID}
	}
	if sq.Link() == nil {
		return NewMissingLinkError(sq.SubQueryID(), node.InternalID)
	}
	if sq.Link().FromInternalID == "" {
		sq.Link().FromInternalID = node.InternalID
	}
	node.AddSubQuery(sq)
	return nil
}

// RemoveSubQuery detaches the subquery with id from node.
func (r *Repository) RemoveSubQuery(node *SubjectNode, id int64) bool {
	return node.RemoveSubQuery(id)
}

// AddOutlink attaches link between origin and target, inserting either node
// if not already held. side decides the direction.
func (r *Repository) AddOutlink(link *Link, origin, target *SubjectNode, side Side) error {
	if link == nil || origin == nil || target == nil {
		return &GraphError{Code: ErrCodeUnknownNode, Message: "addOutlink requires a link and two nodes"}
	}
	switch side {
	case SideFrom:
		link.FromInternalID, link.ToInternalID = target.InternalID, origin.InternalID
		link.FromID, link.ToID = target.SubjectTypeID, origin.SubjectTypeID
	case SideTo:
		link.FromInternalID, link.ToInternalID = origin.InternalID, target.InternalID
		link.FromID, link.ToID = origin.SubjectTypeID, target.SubjectTypeID
	default:
		return &GraphError{
			Code:    ErrCodeInvalidSide,
			Message: fmt.Sprintf("invalid side %q", side),
			LinkID:  link.LinkID,
		}
	}
	r.AddNode(origin)
	r.AddNode(target)
	r.Links = append(r.Links, link)
	return nil
}

// RemoveLink removes the link with link's id.
func (r *Repository) RemoveLink(link *Link) bool {
	for i, l := range r.Links {
		if l.LinkID == link.LinkID {
			r.Links = append(r.Links[:i], r.Links[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveNode removes node and every link touching it.
func (r *Repository) RemoveNode(node *SubjectNode) bool {
	idx := -1
	for i, n := range r.Nodes {
		if n.InternalID == node.InternalID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	r.Nodes = append(r.Nodes[:idx], r.Nodes[idx+1:]...)
	kept := r.Links[:0]
	for _, l := range r.Links {
		if l.FromInternalID != node.InternalID && l.ToInternalID != node.InternalID {
			kept = append(kept, l)
		}
	}
	r.Links = kept
	return true
}

// FromLinks returns the links whose tail is node.
func (r *Repository) FromLinks(node *SubjectNode) []*Link {
	var out []*Link
	for _, l := range r.Links {
		if l.FromInternalID == node.InternalID {
			out = append(out, l)
		}
	}
	return out
}

// ToLinks returns the links whose head is node.
func (r *Repository) ToLinks(node *SubjectNode) []*Link {
	var out []*Link
	for _, l := range r.Links {
		if l.ToInternalID == node.InternalID {
			out = append(out, l)
		}
	}
	return out
}

// From resolves the tail of link, or nil if it is not held.
func (r *Repository) From(link *Link) *SubjectNode { return r.Node(link.FromInternalID) }

// To resolves the head of link, or nil if it is not held.
func (r *Repository) To(link *Link) *SubjectNode { return r.Node(link.ToInternalID) }

// Elements is a set of nodes and links without duplicates.
type Elements struct {
	Nodes []*SubjectNode
	Links []*Link
}

// SubElements returns the nodes and links reachable from node, excluding
// node itself. Traversal only descends to nodes whose Seq is not lower than
// the current node's, and never revisits a node, so it terminates on cycles.
func (r *Repository) SubElements(node *SubjectNode) Elements {
	visited := map[string]bool{node.InternalID: true}
	seenLinks := map[int64]bool{}
	var out Elements
	r.subElements(node, visited, seenLinks, &out)
	return out
}

func (r *Repository) subElements(node *SubjectNode, visited map[string]bool, seenLinks map[int64]bool, out *Elements) {
	touching := append(r.FromLinks(node), r.ToLinks(node)...)
	for _, l := range touching {
		if !seenLinks[l.LinkID] {
			seenLinks[l.LinkID] = true
			out.Links = append(out.Links, l)
		}
	}
	for _, l := range touching {
		otherID := l.ToInternalID
		if otherID == node.InternalID {
			otherID = l.FromInternalID
		}
		target := r.Node(otherID)
		if target == nil || visited[target.InternalID] || node.Seq > target.Seq {
			continue
		}
		visited[target.InternalID] = true
		out.Nodes = append(out.Nodes, target)
		r.subElements(target, visited, seenLinks, out)
	}
}

// DeleteWithSubnodes removes node together with everything SubElements reaches.
func (r *Repository) DeleteWithSubnodes(node *SubjectNode) Elements {
	sub := r.SubElements(node)
	nodeIDs := map[string]bool{node.InternalID: true}
	for _, n := range sub.Nodes {
		nodeIDs[n.InternalID] = true
	}
	linkIDs := map[int64]bool{}
	for _, l := range sub.Links {
		linkIDs[l.LinkID] = true
	}

	keptNodes := r.Nodes[:0]
	for _, n := range r.Nodes {
		if !nodeIDs[n.InternalID] {
			keptNodes = append(keptNodes, n)
		}
	}
	r.Nodes = keptNodes

	keptLinks := r.Links[:0]
	for _, l := range r.Links {
		if !linkIDs[l.LinkID] {
			keptLinks = append(keptLinks, l)
		}
	}
	r.Links = keptLinks
	return sub
}

// LinkPairKey is the grouping key of LinksBetweenNodes.
func LinkPairKey(fromInternalID, toInternalID string) string {
	return fromInternalID + "-" + toInternalID
}

// LinksBetweenNodes groups links by ordered endpoint pair. Links with an
// endpoint not currently held are skipped.
func (r *Repository) LinksBetweenNodes() map[string][]*Link {
	out := map[string][]*Link{}
	for _, l := range r.Links {
		if r.From(l) == nil || r.To(l) == nil {
			continue
		}
		key := LinkPairKey(l.FromInternalID, l.ToInternalID)
		out[key] = append(out[key], l)
	}
	return out
}

// DiffID returns the repository's identity key.
func (r *Repository) DiffID() string { return strconv.FormatInt(r.ID, 10) }

// Changed is a coarse check: repositories are different iff their ids are.
func (r *Repository) Changed(other *Repository) bool {
	return other == nil || r.ID != other.ID
}

// Clone returns a deep copy sharing only the allocator.
func (r *Repository) Clone() *Repository {
	if r == nil {
		return nil
	}
	out := &Repository{
		ID:    r.ID,
		Nodes: make([]*SubjectNode, 0, len(r.Nodes)),
		Links: make([]*Link, 0, len(r.Links)),
		State: r.State,
		alloc: r.alloc,
	}
	for _, n := range r.Nodes {
		out.Nodes = append(out.Nodes, n.Clone())
	}
	for _, l := range r.Links {
		out.Links = append(out.Links, l.Clone())
	}
	return out
}
