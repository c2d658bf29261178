package graph

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/querygraph/internal/canon"
	"github.com/roach88/querygraph/internal/ident"
)

// Display geometry defaults.
const (
	NodeWidth        = 150.0
	NodeHeight       = 32.0
	ConstraintWidth  = 250.0
	ConstraintHeight = 75.0
)

// ConstraintType is the stable variant tag of a SubQuery.
type ConstraintType string

const (
	ConstraintString   ConstraintType = "string"
	ConstraintNumber   ConstraintType = "number"
	ConstraintBoolean  ConstraintType = "boolean"
	ConstraintDate     ConstraintType = "date"
	ConstraintSubject  ConstraintType = "subject"
	ConstraintProperty ConstraintType = "property"
)

// StringMode selects the string comparison of a StringConstraint.
type StringMode string

const (
	StringEquals     StringMode = "equals"
	StringContains   StringMode = "contains"
	StringStartsWith StringMode = "startswith"
	StringEndsWith   StringMode = "endswith"
	StringRegex      StringMode = "regex"
)

// CompareMode selects the ordering comparison of number and date constraints.
type CompareMode string

const (
	CompareEquals  CompareMode = "equals"
	CompareLess    CompareMode = "less"
	CompareGreater CompareMode = "greater"
)

// SubQuery is a value constraint (or plain projection) attached to a node
// through the link that names the constrained property.
//
// The set of implementations is closed; see the registry in codec.go.
type SubQuery interface {
	Type() ConstraintType
	SubQueryID() int64
	Link() *Link

	// FilterExpression returns the boolean expression constraining
	// propertyVar, or "" for projection-only subqueries.
	FilterExpression(propertyVar string) string

	// Expression is the form the compiler calls for every subquery.
	Expression(propertyVar string) string

	// Paraphrase describes the constraint in plain words for subject.
	Paraphrase(subject string) string

	DiffID() string
	Changed(other SubQuery) bool
	Clone() SubQuery

	base() *Base
}

// Base carries the fields shared by every SubQuery variant.
type Base struct {
	ID            int64          `json:"id"`
	Kind          ConstraintType `json:"constraint_type"`
	PropertyLink  *Link          `json:"link"`
	DisplayHeight float64        `json:"height"`
	DisplayWidth  float64        `json:"width"`
}

func newBase(alloc *ident.Allocator, kind ConstraintType, link *Link, height float64) Base {
	return Base{
		ID:            alloc.NextSubQueryID(),
		Kind:          kind,
		PropertyLink:  link,
		DisplayHeight: height,
		DisplayWidth:  ConstraintWidth,
	}
}

func (b *Base) Type() ConstraintType { return b.Kind }
func (b *Base) SubQueryID() int64    { return b.ID }
func (b *Base) Link() *Link          { return b.PropertyLink }
func (b *Base) DiffID() string       { return strconv.FormatInt(b.ID, 10) }
func (b *Base) base() *Base          { return b }

// SetLink attaches the subquery to the link naming its property.
func (b *Base) SetLink(l *Link) { b.PropertyLink = l }

func (b Base) clone() Base {
	out := b
	out.PropertyLink = b.PropertyLink.Clone()
	return out
}

func (b *Base) property() string {
	if b.PropertyLink == nil {
		return "?"
	}
	return ReadableName(b.PropertyLink.PropertyID, b.PropertyLink.Label)
}

// changedSubQuery reports whether two subqueries differ in canonical form.
// An encoding failure counts as a change.
func changedSubQuery(a, b SubQuery) bool {
	if b == nil || a.Type() != b.Type() {
		return true
	}
	eq, err := canon.Equal(a, b)
	return err != nil || !eq
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quoteLiteral(s string) string {
	return `"` + literalEscaper.Replace(s) + `"`
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func compareWord(m CompareMode, less, greater string) string {
	switch m {
	case CompareLess:
		return less
	case CompareGreater:
		return greater
	}
	return "equal to"
}

func compareOp(m CompareMode) string {
	switch m {
	case CompareLess:
		return "<"
	case CompareGreater:
		return ">"
	}
	return "="
}

// StringConstraint compares a string property against a literal.
type StringConstraint struct {
	Base
	Value string     `json:"value"`
	Mode  StringMode `json:"mode"`
}

// NewStringConstraint creates a string constraint bound to link.
func NewStringConstraint(alloc *ident.Allocator, link *Link, value string, mode StringMode) *StringConstraint {
	return &StringConstraint{
		Base:  newBase(alloc, ConstraintString, link, ConstraintHeight/1.3),
		Value: value,
		Mode:  mode,
	}
}

func (c *StringConstraint) FilterExpression(v string) string {
	lit := quoteLiteral(c.Value)
	switch c.Mode {
	case StringEquals:
		return v + " = " + lit
	case StringStartsWith:
		return "STRSTARTS(" + v + "," + lit + ")"
	case StringEndsWith:
		return "STRENDS(" + v + "," + lit + ")"
	case StringRegex:
		return "REGEX(" + v + "," + lit + ")"
	}
	return "CONTAINS(" + v + "," + lit + ")"
}

func (c *StringConstraint) Expression(v string) string { return c.FilterExpression(v) }

func (c *StringConstraint) Paraphrase(subject string) string {
	verb := map[StringMode]string{
		StringEquals:     "equals",
		StringStartsWith: "starts with",
		StringEndsWith:   "ends with",
		StringRegex:      "matches",
	}[c.Mode]
	if verb == "" {
		verb = "contains"
	}
	return fmt.Sprintf("%s of %s %s %q", c.property(), subject, verb, c.Value)
}

func (c *StringConstraint) Changed(other SubQuery) bool { return changedSubQuery(c, other) }

func (c *StringConstraint) Clone() SubQuery {
	out := *c
	out.Base = c.Base.clone()
	return &out
}

// NumberConstraint compares a numeric property against a literal.
type NumberConstraint struct {
	Base
	Value float64     `json:"value"`
	Mode  CompareMode `json:"mode"`
}

// NewNumberConstraint creates a number constraint bound to link.
func NewNumberConstraint(alloc *ident.Allocator, link *Link, value float64, mode CompareMode) *NumberConstraint {
	return &NumberConstraint{
		Base:  newBase(alloc, ConstraintNumber, link, ConstraintHeight/2),
		Value: value,
		Mode:  mode,
	}
}

func (c *NumberConstraint) FilterExpression(v string) string {
	return v + " " + compareOp(c.Mode) + " " + formatNumber(c.Value)
}

func (c *NumberConstraint) Expression(v string) string { return c.FilterExpression(v) }

func (c *NumberConstraint) Paraphrase(subject string) string {
	return fmt.Sprintf("%s of %s is %s %s", c.property(), subject,
		compareWord(c.Mode, "less than", "greater than"), formatNumber(c.Value))
}

func (c *NumberConstraint) Changed(other SubQuery) bool { return changedSubQuery(c, other) }

func (c *NumberConstraint) Clone() SubQuery {
	out := *c
	out.Base = c.Base.clone()
	return &out
}

// BooleanConstraint requires a boolean property to hold Value.
type BooleanConstraint struct {
	Base
	Value bool `json:"value"`
}

// NewBooleanConstraint creates a boolean constraint bound to link.
func NewBooleanConstraint(alloc *ident.Allocator, link *Link, value bool) *BooleanConstraint {
	return &BooleanConstraint{
		Base:  newBase(alloc, ConstraintBoolean, link, ConstraintHeight/2),
		Value: value,
	}
}

func (c *BooleanConstraint) FilterExpression(v string) string {
	return v + " = " + strconv.FormatBool(c.Value)
}

func (c *BooleanConstraint) Expression(v string) string { return c.FilterExpression(v) }

func (c *BooleanConstraint) Paraphrase(subject string) string {
	return fmt.Sprintf("%s of %s is %t", c.property(), subject, c.Value)
}

func (c *BooleanConstraint) Changed(other SubQuery) bool { return changedSubQuery(c, other) }

func (c *BooleanConstraint) Clone() SubQuery {
	out := *c
	out.Base = c.Base.clone()
	return &out
}

// DateConstraint compares a date property against a timestamp.
//
// A DateConstraint decoded from JSON holds its value as text until Revive
// runs (the codec calls it once) or the value is first used.
type DateConstraint struct {
	Base
	Value Timestamp   `json:"value"`
	Mode  CompareMode `json:"mode"`
}

// NewDateConstraint creates a date constraint bound to link.
func NewDateConstraint(alloc *ident.Allocator, link *Link, value time.Time, mode CompareMode) *DateConstraint {
	return &DateConstraint{
		Base:  newBase(alloc, ConstraintDate, link, ConstraintHeight/2),
		Value: NewTimestamp(value),
		Mode:  mode,
	}
}

// Revive coerces the textual value to a time. Idempotent.
func (c *DateConstraint) Revive() error {
	return c.Value.Revive()
}

// Literal renders the value as a typed dateTime literal.
func (c *DateConstraint) Literal() string {
	return `"` + c.Value.Time().Format(LiteralTimeLayout) + `"^^xsd:dateTime`
}

func (c *DateConstraint) FilterExpression(v string) string {
	return v + " " + compareOp(c.Mode) + " " + c.Literal()
}

func (c *DateConstraint) Expression(v string) string { return c.FilterExpression(v) }

func (c *DateConstraint) Paraphrase(subject string) string {
	return fmt.Sprintf("%s of %s is %s %s", c.property(), subject,
		compareWord(c.Mode, "before", "after"), c.Value.Time().Format(time.DateOnly))
}

func (c *DateConstraint) Changed(other SubQuery) bool { return changedSubQuery(c, other) }

func (c *DateConstraint) Clone() SubQuery {
	out := *c
	out.Base = c.Base.clone()
	return &out
}

// Instance is a concrete entity a subject-equality constraint pins a node to.
type Instance struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// SubjectEqualityConstraint pins its node to a single instance.
// Without a bound instance it constrains nothing.
type SubjectEqualityConstraint struct {
	Base
	Instance *Instance `json:"instance"`
}

// NewSubjectEqualityConstraint creates a subject constraint bound to link.
func NewSubjectEqualityConstraint(alloc *ident.Allocator, link *Link, inst *Instance) *SubjectEqualityConstraint {
	return &SubjectEqualityConstraint{
		Base:     newBase(alloc, ConstraintSubject, link, ConstraintHeight/2),
		Instance: inst,
	}
}

func (c *SubjectEqualityConstraint) FilterExpression(v string) string {
	if c.Instance == nil {
		return ""
	}
	return v + " = " + Term(c.Instance.ID)
}

func (c *SubjectEqualityConstraint) Expression(v string) string { return c.FilterExpression(v) }

func (c *SubjectEqualityConstraint) Paraphrase(subject string) string {
	if c.Instance == nil {
		return subject + " is any instance"
	}
	return subject + " is " + ReadableName(c.Instance.ID, c.Instance.Label)
}

func (c *SubjectEqualityConstraint) Changed(other SubQuery) bool { return changedSubQuery(c, other) }

func (c *SubjectEqualityConstraint) Clone() SubQuery {
	out := *c
	out.Base = c.Base.clone()
	if c.Instance != nil {
		inst := *c.Instance
		out.Instance = &inst
	}
	return &out
}

// RawPropertyProjection projects a property without filtering it.
type RawPropertyProjection struct {
	Base
	PropertyID string `json:"property_id"`
}

// NewRawPropertyProjection creates a projection of the link's property.
func NewRawPropertyProjection(alloc *ident.Allocator, link *Link) *RawPropertyProjection {
	p := &RawPropertyProjection{Base: newBase(alloc, ConstraintProperty, link, ConstraintHeight/2)}
	if link != nil {
		p.PropertyID = link.PropertyID
	}
	return p
}

func (c *RawPropertyProjection) FilterExpression(string) string { return "" }

func (c *RawPropertyProjection) Expression(v string) string { return c.FilterExpression(v) }

func (c *RawPropertyProjection) Paraphrase(subject string) string {
	return fmt.Sprintf("show %s of %s", c.property(), subject)
}

func (c *RawPropertyProjection) Changed(other SubQuery) bool { return changedSubQuery(c, other) }

func (c *RawPropertyProjection) Clone() SubQuery {
	out := *c
	out.Base = c.Base.clone()
	return &out
}

// PropertyVar returns the variable a subquery's property binds to.
func PropertyVar(sq SubQuery) string {
	if sq.Link() == nil {
		return ""
	}
	return sq.Link().OutputVar()
}

// Predicate returns the predicate term a subquery's property triple uses.
func Predicate(sq SubQuery) string {
	if p, ok := sq.(*RawPropertyProjection); ok && p.PropertyID != "" {
		return Term(p.PropertyID)
	}
	if sq.Link() == nil {
		return ""
	}
	return Term(sq.Link().PropertyID)
}

// NewSubQuery builds the default constraint for link's declared value type.
// It returns nil when the value type routes to no constraint.
func NewSubQuery(alloc *ident.Allocator, link *Link, now time.Time) SubQuery {
	if link == nil {
		return nil
	}
	switch ValueKind(link.TargetValueType) {
	case ConstraintString:
		return NewStringConstraint(alloc, link, "", StringContains)
	case ConstraintNumber:
		return NewNumberConstraint(alloc, link, 0, CompareGreater)
	case ConstraintBoolean:
		return NewBooleanConstraint(alloc, link, true)
	case ConstraintDate:
		return NewDateConstraint(alloc, link, now, CompareGreater)
	}
	return nil
}

var (
	stringTypes  = map[string]bool{"xsd:string": true, "rdf:langString": true, "rdfs:label": true}
	booleanTypes = map[string]bool{"xsd:boolean": true}
	dateTypes    = map[string]bool{"xsd:date": true, "xsd:dateTime": true}
	numberTypes  = map[string]bool{
		"xsd:double":             true,
		"xsd:integer":            true,
		"xsd:nonNegativeInteger": true,
		"xsd:float":              true,
		"xsd:decimal":            true,
		"xsd:int":                true,
		"xsd:long":               true,
	}
	numberUnitHints = []string{"year", "Year", "minute", "centimetre", "kilogram"}
)

// ValueKind routes a declared value type tag to a constraint kind.
// Unmatched tags return "".
func ValueKind(valueType string) ConstraintType {
	switch {
	case stringTypes[valueType]:
		return ConstraintString
	case numberTypes[valueType]:
		return ConstraintNumber
	case booleanTypes[valueType]:
		return ConstraintBoolean
	case dateTypes[valueType]:
		return ConstraintDate
	}
	for _, hint := range numberUnitHints {
		if strings.Contains(valueType, hint) {
			return ConstraintNumber
		}
	}
	return ""
}
