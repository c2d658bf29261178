package sparql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/ident"
)

func TestLint_Clean(t *testing.T) {
	qs, err := personWorksFor(t).QuerySet()
	require.NoError(t, err)

	result := Lint(qs)
	assert.True(t, result.Clean)
	assert.Empty(t, result.Warnings)
}

func TestLint_Warnings(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	a := graph.NewSubjectNodeWithID(alloc, "a", "", "")
	b := graph.NewSubjectNodeWithID(alloc, "b", "ex:B", "")
	free := r.NewLink("", "", "")
	free.AllowArbitraryProperty = true
	free.Quantifier = &graph.Quantifier{Mode: graph.ZeroOrMore}
	require.NoError(t, r.AddOutlink(free, a, b, graph.SideTo))

	name := r.NewPropertyLink(b, "ex:name", "", "xsd:string")
	require.NoError(t, r.AddSubQuery(b, graph.NewStringConstraint(alloc, name, "", graph.StringContains)))
	require.NoError(t, r.AddSubQuery(b, graph.NewStringConstraint(alloc, name, "x", graph.StringEndsWith)))
	require.NoError(t, r.AddSubQuery(b, graph.NewSubjectEqualityConstraint(alloc, r.NewPropertyLink(b, "rdf:type", "", ""), nil)))

	qs, err := r.QuerySet()
	require.NoError(t, err)
	result := Lint(qs)

	assert.False(t, result.Clean)
	assert.Equal(t, []string{
		"node a has no subject type and matches any resource",
		"link 1 quantifies a variable predicate; most endpoints reject variables in property paths",
		"string constraint 1 has an empty value and matches everything",
		"link 2 carries several constraints; they are all required to hold",
		"subject constraint 3 has no instance and is ignored",
	}, result.Warnings)
}

func TestLint_Nil(t *testing.T) {
	assert.True(t, Lint(nil).Clean)
}
