package sparql

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/ident"
)

// personWorksFor builds n1 (Person) -worksFor-> n2 (Organization) with a
// name filter, an age filter and an mbox projection on n1 and an instance
// pin on n2.
func personWorksFor(t *testing.T) *graph.Repository {
	t.Helper()
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	person := graph.NewSubjectNodeWithID(alloc, "n1", "foaf:Person", "")
	org := graph.NewSubjectNodeWithID(alloc, "n2", "http://example.org/Organization", "")

	require.NoError(t, r.AddOutlink(r.NewLink("ex:worksFor", "works for", ""), person, org, graph.SideTo))

	name := r.NewPropertyLink(person, "foaf:name", "", "xsd:string")
	age := r.NewPropertyLink(person, "ex:age", "", "xsd:integer")
	mbox := r.NewPropertyLink(person, "foaf:mbox", "", "")
	pin := r.NewPropertyLink(org, "rdf:type", "", "")
	require.NoError(t, r.AddSubQuery(person, graph.NewStringConstraint(alloc, name, "Alice", graph.StringContains)))
	require.NoError(t, r.AddSubQuery(person, graph.NewNumberConstraint(alloc, age, 30, graph.CompareGreater)))
	require.NoError(t, r.AddSubQuery(person, graph.NewRawPropertyProjection(alloc, mbox)))
	require.NoError(t, r.AddSubQuery(org, graph.NewSubjectEqualityConstraint(alloc, pin, &graph.Instance{ID: "http://example.org/acme"})))
	return r
}

func TestGenerateQuery_Golden(t *testing.T) {
	query, err := GenerateQuery(personWorksFor(t), 100, 20, true)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "person_works_for", []byte(query))
}

func TestGenerateQuery_SingleNode(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	r.AddNode(graph.NewSubjectNodeWithID(alloc, "n1", "Person", ""))

	query, err := GenerateQuery(r, 0, 0, false)
	require.NoError(t, err)

	want := "SELECT ?n1 ?lbl_n1 WHERE {\n" +
		"  ?n1 a Person.\n" +
		"  OPTIONAL {?n1 rdfs:label ?lbl_n1.}\n" +
		"  OPTIONAL {?n1 foaf:name ?lbl_n1.}\n" +
		"}\n" +
		"ORDER BY ?lbl_n1"
	assert.Equal(t, want, query)
	assert.NotContains(t, query, "FILTER")
	assert.NotContains(t, query, "LIMIT")
	assert.NotContains(t, query, "OFFSET")
}

func TestGenerateQuery_StringConstraint(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	n1 := graph.NewSubjectNodeWithID(alloc, "n1", "Person", "")
	r.AddNode(n1)
	link := r.NewPropertyLink(n1, "name", "", "xsd:string")
	require.NoError(t, r.AddSubQuery(n1, graph.NewStringConstraint(alloc, link, "Alice", graph.StringContains)))

	query, err := GenerateQuery(r, 100, 0, true)
	require.NoError(t, err)

	v := link.OutputVar()
	assert.Contains(t, query, "?n1 name "+v+".\n  FILTER(CONTAINS("+v+",\"Alice\"))")
	assert.True(t, strings.HasPrefix(query, "SELECT DISTINCT ?n1 ?lbl_n1 "+v+" WHERE {"))
	assert.True(t, strings.HasSuffix(query, "\nORDER BY ?lbl_n1 "+v+"\nLIMIT 100"))
}

func TestGenerateQuery_ExactlyOneOrderBy(t *testing.T) {
	for _, limit := range []int{0, 1, 50} {
		query, err := GenerateQuery(personWorksFor(t), limit, 0, false)
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(query, "ORDER BY"))
		assert.Equal(t, limit > 0, strings.Contains(query, "LIMIT"))
	}
}

func TestGenerateQuery_UnboundSubjectConstraintEmitsNothing(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	n1 := graph.NewSubjectNodeWithID(alloc, "n1", "Person", "")
	r.AddNode(n1)
	require.NoError(t, r.AddSubQuery(n1, graph.NewSubjectEqualityConstraint(alloc, r.NewPropertyLink(n1, "rdf:type", "", ""), nil)))

	query, err := GenerateQuery(r, 0, 0, false)
	require.NoError(t, err)
	assert.NotContains(t, query, "FILTER")
	assert.NotContains(t, query, "rdf:type")
}

func TestGenerateQuery_QuantifiedAndArbitraryLinks(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	a := graph.NewSubjectNodeWithID(alloc, "a", "ex:A", "")
	b := graph.NewSubjectNodeWithID(alloc, "b", "ex:B", "")
	path := r.NewLink("ex:partOf", "", "")
	path.Quantifier = &graph.Quantifier{Mode: graph.Between, Min: 1, Max: 3}
	free := r.NewLink("", "", "")
	free.AllowArbitraryProperty = true
	require.NoError(t, r.AddOutlink(path, a, b, graph.SideTo))
	require.NoError(t, r.AddOutlink(free, b, a, graph.SideTo))

	query, err := GenerateQuery(r, 0, 0, false)
	require.NoError(t, err)
	assert.Contains(t, query, "\n  ?a ex:partOf{1,3} ?b.")
	assert.Contains(t, query, "\n  ?b ?p_2 ?a.")
	assert.Contains(t, query, "ORDER BY ?lbl_a ?lbl_b ?p_2")
}

func TestGenerateQuery_DanglingLinkFails(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	a := graph.NewSubjectNodeWithID(alloc, "a", "ex:A", "")
	b := graph.NewSubjectNodeWithID(alloc, "b", "ex:B", "")
	require.NoError(t, r.AddOutlink(r.NewLink("ex:p", "", ""), a, b, graph.SideTo))
	r.Nodes = r.Nodes[:1]

	query, err := GenerateQuery(r, 10, 0, false)
	require.Error(t, err)
	assert.True(t, graph.IsDanglingLink(err))
	assert.Empty(t, query)
}

func TestCompile_ConstraintOwnerMissing(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	a := graph.NewSubjectNodeWithID(alloc, "a", "ex:A", "")
	r.AddNode(a)
	link := r.NewPropertyLink(a, "ex:name", "", "xsd:string")
	link.FromInternalID = "elsewhere"
	a.AddSubQuery(graph.NewStringConstraint(alloc, link, "x", graph.StringEquals))

	_, err := GenerateQuery(r, 0, 0, false)
	require.Error(t, err)
	assert.True(t, graph.IsDanglingLink(err))
}

func TestCompile_EmptyGraph(t *testing.T) {
	_, err := GenerateQuery(graph.NewRepository(nil), 10, 0, false)
	require.Error(t, err)
	assert.True(t, graph.IsStructural(err))
}

func TestCompile_Deterministic(t *testing.T) {
	a, err := GenerateQuery(personWorksFor(t), 10, 5, true)
	require.NoError(t, err)
	b, err := GenerateQuery(personWorksFor(t), 10, 5, true)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
