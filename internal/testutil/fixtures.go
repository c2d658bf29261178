package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/ident"
)

// PersonGraph is a small two-node graph used across package tests:
//
//	(n1 foaf:Person) -[ex:worksFor]-> (n2 ex:Organization)
//
// with a `foaf:name contains "Alice"` constraint on the person.
type PersonGraph struct {
	Repo     *graph.Repository
	Person   *graph.SubjectNode
	Org      *graph.SubjectNode
	WorksFor *graph.Link
	Name     *graph.StringConstraint
}

// NewPersonGraph builds a PersonGraph with a fresh allocator.
func NewPersonGraph(t testing.TB) *PersonGraph {
	t.Helper()
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	person := graph.NewSubjectNodeWithID(alloc, "n1", "foaf:Person", "Person")
	org := graph.NewSubjectNodeWithID(alloc, "n2", "ex:Organization", "Org")
	org.X, org.Y = 300, 100

	worksFor := r.NewLink("ex:worksFor", "works for", "")
	require.NoError(t, r.AddOutlink(worksFor, person, org, graph.SideTo))

	name := graph.NewStringConstraint(alloc, r.NewPropertyLink(person, "foaf:name", "name", "xsd:string"), "Alice", graph.StringContains)
	require.NoError(t, r.AddSubQuery(person, name))

	return &PersonGraph{Repo: r, Person: person, Org: org, WorksFor: worksFor, Name: name}
}

// AddCity links a new ex:City node to the organization and returns it.
func (p *PersonGraph) AddCity(t testing.TB) (*graph.SubjectNode, *graph.Link) {
	t.Helper()
	city := graph.NewSubjectNode(p.Repo.Allocator(), "ex:City", "City")
	link := p.Repo.NewLink("ex:locatedIn", "located in", "")
	require.NoError(t, p.Repo.AddOutlink(link, p.Org, city, graph.SideTo))
	return city, link
}

// SingleNode returns a repository holding one untyped-label node.
func SingleNode(t testing.TB, subjectTypeID string) *graph.Repository {
	t.Helper()
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	r.AddNode(graph.NewSubjectNodeWithID(alloc, "n1", subjectTypeID, ""))
	return r
}
