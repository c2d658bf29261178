package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querygraph/internal/ident"
)

func nameLink(alloc *ident.Allocator) *Link {
	return &Link{LinkID: alloc.NextLinkID(), FromInternalID: "n1", PropertyID: "name", TargetValueType: "xsd:string"}
}

func TestFilterExpressions(t *testing.T) {
	alloc := ident.NewAllocator()
	link := nameLink(alloc)
	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		sq   SubQuery
		want string
	}{
		{"string equals", NewStringConstraint(alloc, link, "Bob", StringEquals), `?p = "Bob"`},
		{"string contains", NewStringConstraint(alloc, link, "Alice", StringContains), `CONTAINS(?p,"Alice")`},
		{"string startswith", NewStringConstraint(alloc, link, "Al", StringStartsWith), `STRSTARTS(?p,"Al")`},
		{"string endswith", NewStringConstraint(alloc, link, "ce", StringEndsWith), `STRENDS(?p,"ce")`},
		{"string regex", NewStringConstraint(alloc, link, "^A.*", StringRegex), `REGEX(?p,"^A.*")`},
		{"string escapes quotes", NewStringConstraint(alloc, link, `say "hi" \o/`, StringContains), `CONTAINS(?p,"say \"hi\" \\o/")`},
		{"number equals", NewNumberConstraint(alloc, link, 3, CompareEquals), `?p = 3`},
		{"number less", NewNumberConstraint(alloc, link, 2.5, CompareLess), `?p < 2.5`},
		{"number greater", NewNumberConstraint(alloc, link, 1e6, CompareGreater), `?p > 1000000`},
		{"boolean", NewBooleanConstraint(alloc, link, false), `?p = false`},
		{"date greater", NewDateConstraint(alloc, link, when, CompareGreater), `?p > "2024-03-01T12:30:00.000Z"^^xsd:dateTime`},
		{"date less", NewDateConstraint(alloc, link, when, CompareLess), `?p < "2024-03-01T12:30:00.000Z"^^xsd:dateTime`},
		{"subject bound", NewSubjectEqualityConstraint(alloc, link, &Instance{ID: "http://example.org/alice"}), `?p = <http://example.org/alice>`},
		{"subject unbound", NewSubjectEqualityConstraint(alloc, link, nil), ``},
		{"projection", NewRawPropertyProjection(alloc, link), ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sq.FilterExpression("?p"))
			assert.Equal(t, tt.sq.FilterExpression("?p"), tt.sq.Expression("?p"))
		})
	}
}

func TestDateConstraint_LocalTimeNormalizedToUTC(t *testing.T) {
	alloc := ident.NewAllocator()
	zone := time.FixedZone("UTC+2", 2*60*60)
	c := NewDateConstraint(alloc, nameLink(alloc), time.Date(2024, 3, 1, 14, 0, 0, 0, zone), CompareEquals)

	assert.Equal(t, `"2024-03-01T12:00:00.000Z"^^xsd:dateTime`, c.Literal())
}

func TestTimestamp_LazyRevive(t *testing.T) {
	ts := TimestampFromString("2024-03-01")
	assert.False(t, ts.Revived())

	got := ts.Time()
	assert.True(t, ts.Revived())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	// Idempotent.
	require.NoError(t, ts.Revive())
	assert.Equal(t, got, ts.Time())
}

func TestTimestamp_ReviveRejectsGarbage(t *testing.T) {
	ts := TimestampFromString("not a date")
	require.Error(t, ts.Revive())
	assert.True(t, ts.Time().IsZero())
}

func TestValueKind(t *testing.T) {
	tests := []struct {
		valueType string
		want      ConstraintType
	}{
		{"xsd:string", ConstraintString},
		{"rdf:langString", ConstraintString},
		{"rdfs:label", ConstraintString},
		{"xsd:double", ConstraintNumber},
		{"xsd:integer", ConstraintNumber},
		{"xsd:nonNegativeInteger", ConstraintNumber},
		{"xsd:decimal", ConstraintNumber},
		{"dbo:Time_minute", ConstraintNumber},
		{"http://dbpedia.org/datatype/kilogram", ConstraintNumber},
		{"xsd:gYear", ConstraintNumber},
		{"xsd:boolean", ConstraintBoolean},
		{"xsd:date", ConstraintDate},
		{"xsd:dateTime", ConstraintDate},
		{"owl:Thing", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.valueType, func(t *testing.T) {
			assert.Equal(t, tt.want, ValueKind(tt.valueType))
		})
	}
}

func TestNewSubQuery_Defaults(t *testing.T) {
	alloc := ident.NewAllocator()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	s, ok := NewSubQuery(alloc, &Link{TargetValueType: "xsd:string"}, now).(*StringConstraint)
	require.True(t, ok)
	assert.Equal(t, StringContains, s.Mode)
	assert.Equal(t, "", s.Value)

	n, ok := NewSubQuery(alloc, &Link{TargetValueType: "xsd:float"}, now).(*NumberConstraint)
	require.True(t, ok)
	assert.Equal(t, CompareGreater, n.Mode)
	assert.Zero(t, n.Value)

	b, ok := NewSubQuery(alloc, &Link{TargetValueType: "xsd:boolean"}, now).(*BooleanConstraint)
	require.True(t, ok)
	assert.True(t, b.Value)

	d, ok := NewSubQuery(alloc, &Link{TargetValueType: "xsd:date"}, now).(*DateConstraint)
	require.True(t, ok)
	assert.Equal(t, now, d.Value.Time())
	assert.Equal(t, CompareGreater, d.Mode)

	assert.Nil(t, NewSubQuery(alloc, &Link{TargetValueType: "owl:Thing"}, now))
	assert.Nil(t, NewSubQuery(alloc, nil, now))
}

func TestSubQuery_CloneIsDeep(t *testing.T) {
	alloc := ident.NewAllocator()
	orig := NewStringConstraint(alloc, nameLink(alloc), "x", StringEquals)

	cp := orig.Clone().(*StringConstraint)
	cp.Value = "y"
	cp.Link().PropertyID = "other"

	assert.Equal(t, "x", orig.Value)
	assert.Equal(t, "name", orig.Link().PropertyID)
	assert.True(t, orig.Changed(cp))
	assert.False(t, orig.Changed(orig.Clone()))
}

func TestSubQuery_ChangedAcrossVariants(t *testing.T) {
	alloc := ident.NewAllocator()
	link := nameLink(alloc)
	s := NewStringConstraint(alloc, link, "x", StringEquals)
	p := NewRawPropertyProjection(alloc, link)

	assert.True(t, s.Changed(p))
	assert.True(t, s.Changed(nil))
}

func TestPredicateAndPropertyVar(t *testing.T) {
	alloc := ident.NewAllocator()
	link := &Link{LinkID: 7, PropertyID: "http://xmlns.com/foaf/0.1/name"}
	sq := NewStringConstraint(alloc, link, "x", StringContains)

	assert.Equal(t, "?p_7", PropertyVar(sq))
	assert.Equal(t, "<http://xmlns.com/foaf/0.1/name>", Predicate(sq))
}
