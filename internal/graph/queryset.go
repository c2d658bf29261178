package graph

// Triple is one triple pattern of the flattened graph.
type Triple struct {
	From      string
	Predicate string
	To        string

	// Link is the repository link the triple was built from.
	Link *Link
}

// QuerySet is the flattened, compiler-ready form of a repository.
// It is rebuilt on every compile and never persisted.
type QuerySet struct {
	// Nodes in repository order.
	Nodes []*SubjectNode

	Triples []Triple
	Filters []SubQuery

	// OutputVars is label vars, then filter property vars, then
	// arbitrary-property link vars. Duplicates are dropped.
	OutputVars []string

	byID map[string]*SubjectNode
}

// Node resolves a node of the set by internal id.
func (q *QuerySet) Node(internalID string) (*SubjectNode, bool) {
	n, ok := q.byID[internalID]
	return n, ok
}

// NodeVars returns every node's output variable in order.
func (q *QuerySet) NodeVars() []string {
	out := make([]string, 0, len(q.Nodes))
	for _, n := range q.Nodes {
		out = append(out, n.OutputVar())
	}
	return out
}

// QuerySet flattens the repository. A link with an unresolved endpoint or a
// subquery without a link is a structural error.
func (r *Repository) QuerySet() (*QuerySet, error) {
	qs := &QuerySet{byID: make(map[string]*SubjectNode, len(r.Nodes))}
	seen := map[string]bool{}
	addVar := func(v string) {
		if !seen[v] {
			seen[v] = true
			qs.OutputVars = append(qs.OutputVars, v)
		}
	}

	for _, n := range r.Nodes {
		qs.Nodes = append(qs.Nodes, n)
		qs.byID[n.InternalID] = n
		addVar(n.LabelVar())
	}
	for _, n := range r.Nodes {
		for _, sq := range n.SubQueries {
			if sq.Link() == nil {
				return nil, NewMissingLinkError(sq.SubQueryID(), n.InternalID)
			}
			qs.Filters = append(qs.Filters, sq)
			addVar(PropertyVar(sq))
		}
	}
	for _, l := range r.Links {
		from, ok := qs.byID[l.FromInternalID]
		if !ok {
			return nil, NewDanglingLinkError(l.LinkID, l.FromInternalID)
		}
		to, ok := qs.byID[l.ToInternalID]
		if !ok {
			return nil, NewDanglingLinkError(l.LinkID, l.ToInternalID)
		}
		qs.Triples = append(qs.Triples, Triple{
			From:      from.OutputVar(),
			Predicate: l.QueryPredicate(),
			To:        to.OutputVar(),
			Link:      l,
		})
		if l.AllowArbitraryProperty {
			addVar(l.OutputVar())
		}
	}
	return qs, nil
}
