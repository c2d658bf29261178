package sparql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/ident"
)

func TestQueryReadable(t *testing.T) {
	text, err := QueryReadable(personWorksFor(t))
	require.NoError(t, err)

	want := `Person (n1) works for Organization (n2)
Person (n1) is a Person
Organization (n2) is a Organization
name of Person (n1) contains "Alice"
age of Person (n1) is greater than 30
show mbox of Person (n1)
Organization (n2) is acme`
	assert.Equal(t, want, text)
}

func TestQueryReadable_Quantifiers(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	a := graph.NewSubjectNodeWithID(alloc, "a", "", "Thing A")
	b := graph.NewSubjectNodeWithID(alloc, "b", "ex:B", "")
	path := r.NewLink("ex:part_of", "", "")
	path.Quantifier = &graph.Quantifier{Mode: graph.OneOrMore}
	free := r.NewLink("", "", "")
	free.AllowArbitraryProperty = true
	free.Quantifier = &graph.Quantifier{Mode: graph.Exactly, Min: 2}
	require.NoError(t, r.AddOutlink(path, a, b, graph.SideTo))
	require.NoError(t, r.AddOutlink(free, b, a, graph.SideTo))

	text, err := QueryReadable(r)
	require.NoError(t, err)

	want := `Thing A (a) part of one or more times B (b)
B (b) is linked by any property exactly 2 times to Thing A (a)
Thing A (a) is anything
B (b) is a B`
	assert.Equal(t, want, text)
}

func TestQueryReadable_Dangling(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	r.AddNode(graph.NewSubjectNodeWithID(alloc, "a", "ex:A", ""))
	r.Links = append(r.Links, &graph.Link{LinkID: 1, FromInternalID: "a", ToInternalID: "zz"})

	_, err := QueryReadable(r)
	assert.True(t, graph.IsDanglingLink(err))
}
