package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querygraph/internal/ident"
)

func allVariants(alloc *ident.Allocator) []SubQuery {
	link := &Link{
		LinkID:          alloc.NextLinkID(),
		FromInternalID:  "node_1",
		PropertyID:      "ex:born",
		TargetValueType: "xsd:dateTime",
		Quantifier:      &Quantifier{Mode: Between, Min: 1, Max: 3},
	}
	when := time.Date(1990, 7, 14, 8, 15, 30, 123456789, time.UTC)
	return []SubQuery{
		NewStringConstraint(alloc, link.Clone(), "Alice", StringContains),
		NewNumberConstraint(alloc, link.Clone(), 42.5, CompareLess),
		NewBooleanConstraint(alloc, link.Clone(), true),
		NewDateConstraint(alloc, link.Clone(), when, CompareGreater),
		NewSubjectEqualityConstraint(alloc, link.Clone(), &Instance{ID: "ex:alice", Label: "Alice"}),
		NewSubjectEqualityConstraint(alloc, link.Clone(), nil),
		NewRawPropertyProjection(alloc, link.Clone()),
	}
}

func TestSubQuery_RoundTrip(t *testing.T) {
	alloc := ident.NewAllocator()
	for _, sq := range allVariants(alloc) {
		t.Run(string(sq.Type()), func(t *testing.T) {
			data, err := MarshalSubQuery(sq)
			require.NoError(t, err)

			revived, err := UnmarshalSubQuery(data)
			require.NoError(t, err)

			assert.IsType(t, sq, revived)
			assert.Equal(t, sq, revived)
		})
	}
}

func TestUnmarshalSubQuery_RevivesDates(t *testing.T) {
	data := []byte(`{"id":3,"constraint_type":"date","link":{"link_id":1,"from_internal_id":"n1","to_internal_id":"","label":"","property_id":"ex:born"},"height":37.5,"width":250,"value":"2001-09-09T01:46:40Z","mode":"less"}`)

	sq, err := UnmarshalSubQuery(data)
	require.NoError(t, err)

	d, ok := sq.(*DateConstraint)
	require.True(t, ok)
	assert.True(t, d.Value.Revived())
	assert.Equal(t, int64(1000000000), d.Value.Time().Unix())
	assert.Equal(t, `?x < "2001-09-09T01:46:40.000Z"^^xsd:dateTime`, d.FilterExpression("?x"))
}

func TestUnmarshalSubQuery_BadDate(t *testing.T) {
	_, err := UnmarshalSubQuery([]byte(`{"id":1,"constraint_type":"date","value":"yesterday"}`))
	require.Error(t, err)
}

func TestUnmarshalSubQuery_UnknownTag(t *testing.T) {
	_, err := UnmarshalSubQuery([]byte(`{"id":1,"constraint_type":"geo"}`))
	require.Error(t, err)

	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrCodeUnknownConstraint, ge.Code)
}

func TestRegisteredTypes(t *testing.T) {
	assert.Equal(t, []ConstraintType{
		ConstraintBoolean, ConstraintDate, ConstraintNumber,
		ConstraintProperty, ConstraintString, ConstraintSubject,
	}, RegisteredTypes())
}

func TestSubjectNode_RoundTrip(t *testing.T) {
	alloc := ident.NewAllocator()
	n := NewSubjectNode(alloc, "foaf:Person", "Person")
	n.X, n.Y = 10.25, -3
	n.State = StateSelected
	for _, sq := range allVariants(alloc) {
		n.AddSubQuery(sq)
	}

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var revived SubjectNode
	require.NoError(t, json.Unmarshal(data, &revived))
	assert.Equal(t, n, &revived)
	for i := range n.SubQueries {
		assert.IsType(t, n.SubQueries[i], revived.SubQueries[i])
	}
}

func TestLink_RoundTrip(t *testing.T) {
	l := &Link{
		LinkID:                 9,
		FromInternalID:         "node_1",
		ToInternalID:           "node_2",
		FromID:                 "foaf:Person",
		ToID:                   "foaf:Organization",
		Label:                  "works for",
		PropertyID:             "ex:worksFor",
		TargetValueType:        "ex:Organization",
		Quantifier:             &Quantifier{Mode: OneOrMore},
		AllowArbitraryProperty: true,
	}
	data, err := json.Marshal(l)
	require.NoError(t, err)

	var revived Link
	require.NoError(t, json.Unmarshal(data, &revived))
	assert.Equal(t, l, &revived)
}

func TestRepository_EncodeDecode(t *testing.T) {
	alloc := ident.NewAllocator()
	r := NewRepository(alloc)
	a := NewSubjectNode(alloc, "foaf:Person", "")
	b := NewSubjectNode(alloc, "foaf:Organization", "")
	require.NoError(t, r.AddOutlink(r.NewLink("ex:worksFor", "", ""), a, b, SideTo))
	a.AddSubQuery(NewStringConstraint(alloc, r.NewLink("foaf:name", "", "xsd:string"), "Ada", StringEquals))
	r.BeginEditing()

	data, err := EncodeRepository(r)
	require.NoError(t, err)

	fresh := ident.NewAllocator()
	revived, err := DecodeRepository(data, fresh)
	require.NoError(t, err)

	assert.Equal(t, r.ID, revived.ID)
	assert.Equal(t, r.Nodes, revived.Nodes)
	assert.Equal(t, r.Links, revived.Links)
	assert.True(t, revived.IsEditing())

	// The fresh allocator was advanced past every revived id.
	id, _ := fresh.NextNodeID()
	assert.Equal(t, "node_3", id)
	assert.Equal(t, int64(3), fresh.NextLinkID())
	assert.Equal(t, int64(2), fresh.NextSubQueryID())
}
