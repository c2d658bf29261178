package graph

import (
	"strconv"
)

// QuantifierMode is the repetition kind of a property path segment.
type QuantifierMode string

const (
	OneOrMore  QuantifierMode = "one-or-more"
	ZeroOrMore QuantifierMode = "zero-or-more"
	ZeroOrOne  QuantifierMode = "zero-or-one"
	Exactly    QuantifierMode = "exactly"
	Between    QuantifierMode = "between"
)

// Quantifier annotates a link with a path repetition.
type Quantifier struct {
	Mode QuantifierMode `json:"mode" yaml:"mode" validate:"required,oneof=one-or-more zero-or-more zero-or-one exactly between"`
	Min  int            `json:"min,omitempty" yaml:"min,omitempty" validate:"gte=0"`
	Max  int            `json:"max,omitempty" yaml:"max,omitempty" validate:"gte=0"`
}

// Suffix returns the path-quantifier token appended to the predicate.
func (q *Quantifier) Suffix() string {
	if q == nil {
		return ""
	}
	switch q.Mode {
	case OneOrMore:
		return "+"
	case ZeroOrMore:
		return "*"
	case ZeroOrOne:
		return "?"
	case Exactly:
		return "{" + strconv.Itoa(q.Min) + "}"
	case Between:
		return "{" + strconv.Itoa(q.Min) + "," + strconv.Itoa(q.Max) + "}"
	}
	return ""
}

// Link is a directed property edge between two nodes of a repository.
// Endpoints are held by internal id only.
type Link struct {
	LinkID         int64  `json:"link_id"`
	FromInternalID string `json:"from_internal_id"`
	ToInternalID   string `json:"to_internal_id"`

	// FromID and ToID are the public subject type ids of the endpoints.
	FromID string `json:"from_id,omitempty"`
	ToID   string `json:"to_id,omitempty"`

	Label                  string      `json:"label"`
	PropertyID             string      `json:"property_id"`
	TargetValueType        string      `json:"to_proptype,omitempty"`
	Quantifier             *Quantifier `json:"quantifier,omitempty"`
	AllowArbitraryProperty bool        `json:"allow_arbitrary_property,omitempty"`
}

// OutputVar returns the variable bound to this link's property value.
func (l *Link) OutputVar() string {
	return "?p_" + strconv.FormatInt(l.LinkID, 10)
}

// QueryPredicate returns the predicate term of the link's triple.
func (l *Link) QueryPredicate() string {
	pred := Term(l.PropertyID)
	if l.AllowArbitraryProperty {
		pred = l.OutputVar()
	}
	return pred + l.Quantifier.Suffix()
}

// DiffID returns the link's identity key.
func (l *Link) DiffID() string {
	return strconv.FormatInt(l.LinkID, 10)
}

// Changed reports whether any link field differs.
func (l *Link) Changed(other *Link) bool {
	if other == nil {
		return true
	}
	a, b := *l, *other
	a.Quantifier, b.Quantifier = nil, nil
	if a != b {
		return true
	}
	switch {
	case l.Quantifier == nil && other.Quantifier == nil:
		return false
	case l.Quantifier == nil || other.Quantifier == nil:
		return true
	}
	return *l.Quantifier != *other.Quantifier
}

// Clone returns a deep copy. A nil link clones to nil.
func (l *Link) Clone() *Link {
	if l == nil {
		return nil
	}
	out := *l
	if l.Quantifier != nil {
		q := *l.Quantifier
		out.Quantifier = &q
	}
	return &out
}
