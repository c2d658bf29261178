package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/querygraph/internal/ident"
	"github.com/roach88/querygraph/internal/validation"
)

// QueryGraph is the persisted/transmitted graph payload exchanged with the
// graph editor and the HTTP layer.
type QueryGraph struct {
	Subjects []SubjectPayload `json:"subjects" yaml:"subjects" validate:"dive"`
	Links    []LinkPayload    `json:"links" yaml:"links" validate:"dive"`
}

// SubjectPayload is one node of a QueryGraph.
type SubjectPayload struct {
	InternalID string            `json:"internal_id" yaml:"internal_id" validate:"required"`
	SubjectID  string            `json:"subject_id" yaml:"subject_id" validate:"required"`
	Label      string            `json:"label,omitempty" yaml:"label,omitempty"`
	Type       string            `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,eq=subject"`
	X          float64           `json:"x" yaml:"x"`
	Y          float64           `json:"y" yaml:"y"`
	SubQueries []SubQueryPayload `json:"subqueries,omitempty" yaml:"subqueries,omitempty" validate:"dive"`
}

// SubQueryPayload is a constraint attached to a subject.
// Value is a string, number, boolean or date depending on ConstraintType.
// ID and LinkID are the subquery's and its property link's ids; zero means
// not yet assigned.
type SubQueryPayload struct {
	ID             int64          `json:"id,omitempty" yaml:"id,omitempty" validate:"gte=0"`
	LinkID         int64          `json:"link_id,omitempty" yaml:"link_id,omitempty" validate:"gte=0"`
	ConstraintType ConstraintType `json:"constraint_type" yaml:"constraint_type" validate:"required,oneof=string number boolean date subject property"`
	PropertyID     string         `json:"property_id" yaml:"property_id" validate:"required"`
	PropertyLabel  string         `json:"property_label,omitempty" yaml:"property_label,omitempty"`
	ValueType      string         `json:"value_type,omitempty" yaml:"value_type,omitempty"`
	Mode           string         `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=equals contains startswith endswith regex less greater"`
	Value          any            `json:"value,omitempty" yaml:"value,omitempty"`
	Instance       *Instance      `json:"instance,omitempty" yaml:"instance,omitempty"`
}

// LinkPayload is one link of a QueryGraph.
type LinkPayload struct {
	ID                     int64       `json:"id,omitempty" yaml:"id,omitempty" validate:"gte=0"`
	FromInternalID         string      `json:"from_internal_id" yaml:"from_internal_id" validate:"required"`
	ToInternalID           string      `json:"to_internal_id" yaml:"to_internal_id" validate:"required"`
	FromID                 string      `json:"from_id,omitempty" yaml:"from_id,omitempty"`
	ToID                   string      `json:"to_id,omitempty" yaml:"to_id,omitempty"`
	PropertyID             string      `json:"property_id" yaml:"property_id" validate:"required_unless=AllowArbitraryProperty true"`
	Label                  string      `json:"label,omitempty" yaml:"label,omitempty"`
	ValueType              string      `json:"value_type,omitempty" yaml:"value_type,omitempty"`
	Type                   string      `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,eq=link"`
	Quantifier             *Quantifier `json:"quantifier,omitempty" yaml:"quantifier,omitempty" validate:"omitempty"`
	AllowArbitraryProperty bool        `json:"allow_arbitrary_property,omitempty" yaml:"allow_arbitrary_property,omitempty"`
}

// Validate checks field constraints and cross-references: subject ids,
// link ids and subquery ids are unique, and every link endpoint names a
// subject of the payload.
func (g *QueryGraph) Validate() error {
	if err := validation.Struct(g); err != nil {
		return err
	}
	ids := make(map[string]bool, len(g.Subjects))
	linkIDs := make(map[int64]bool)
	sqIDs := make(map[int64]bool)
	for _, s := range g.Subjects {
		if ids[s.InternalID] {
			return validation.Problemf("subjects: duplicate internal_id %q", s.InternalID)
		}
		ids[s.InternalID] = true
		for _, sq := range s.SubQueries {
			if sq.ID != 0 && sqIDs[sq.ID] {
				return validation.Problemf("subqueries: duplicate id %d", sq.ID)
			}
			if sq.LinkID != 0 && linkIDs[sq.LinkID] {
				return validation.Problemf("subqueries: duplicate link_id %d", sq.LinkID)
			}
			sqIDs[sq.ID], linkIDs[sq.LinkID] = true, true
		}
	}
	for _, l := range g.Links {
		if l.ID != 0 && linkIDs[l.ID] {
			return validation.Problemf("links: duplicate id %d", l.ID)
		}
		linkIDs[l.ID] = true
	}
	for _, l := range g.Links {
		if !ids[l.FromInternalID] {
			return NewDanglingLinkError(l.ID, l.FromInternalID)
		}
		if !ids[l.ToInternalID] {
			return NewDanglingLinkError(l.ID, l.ToInternalID)
		}
		if q := l.Quantifier; q != nil && q.Mode == Between && q.Max < q.Min {
			return validation.Problemf("links: quantifier max %d below min %d", q.Max, q.Min)
		}
	}
	return nil
}

// ToQueryGraph exports the repository as a payload.
func (r *Repository) ToQueryGraph() *QueryGraph {
	g := &QueryGraph{
		Subjects: make([]SubjectPayload, 0, len(r.Nodes)),
		Links:    make([]LinkPayload, 0, len(r.Links)),
	}
	for _, n := range r.Nodes {
		s := SubjectPayload{
			InternalID: n.InternalID,
			SubjectID:  n.SubjectTypeID,
			Label:      n.Label,
			Type:       "subject",
			X:          n.X,
			Y:          n.Y,
		}
		for _, sq := range n.SubQueries {
			s.SubQueries = append(s.SubQueries, subQueryPayload(sq))
		}
		g.Subjects = append(g.Subjects, s)
	}
	for _, l := range r.Links {
		g.Links = append(g.Links, LinkPayload{
			ID:                     l.LinkID,
			FromInternalID:         l.FromInternalID,
			ToInternalID:           l.ToInternalID,
			FromID:                 l.FromID,
			ToID:                   l.ToID,
			PropertyID:             l.PropertyID,
			Label:                  l.Label,
			ValueType:              l.TargetValueType,
			Type:                   "link",
			Quantifier:             l.Quantifier.clone(),
			AllowArbitraryProperty: l.AllowArbitraryProperty,
		})
	}
	return g
}

func subQueryPayload(sq SubQuery) SubQueryPayload {
	p := SubQueryPayload{ID: sq.SubQueryID(), ConstraintType: sq.Type()}
	if l := sq.Link(); l != nil {
		p.LinkID = l.LinkID
		p.PropertyID = l.PropertyID
		p.PropertyLabel = l.Label
		p.ValueType = l.TargetValueType
	}
	switch c := sq.(type) {
	case *StringConstraint:
		p.Mode, p.Value = string(c.Mode), c.Value
	case *NumberConstraint:
		p.Mode, p.Value = string(c.Mode), c.Value
	case *BooleanConstraint:
		p.Value = c.Value
	case *DateConstraint:
		p.Mode, p.Value = string(c.Mode), c.Value.Time().Format(time.RFC3339Nano)
	case *SubjectEqualityConstraint:
		if c.Instance != nil {
			inst := *c.Instance
			p.Instance = &inst
		}
	case *RawPropertyProjection:
		if c.PropertyID != "" {
			p.PropertyID = c.PropertyID
		}
	}
	return p
}

// LoadOption tunes FromQueryGraph.
type LoadOption func(*loadOptions)

type loadOptions struct {
	prev *Repository
}

// MatchIDs gives entities the payload sends without ids the ids of their
// counterparts in prev, the graph the payload is an edit of. A link matches
// a prev link with the same endpoints and property; a subquery matches,
// in order, a prev subquery of the same node with the same constraint type
// and property. Unmatched entities get fresh ids.
func MatchIDs(prev *Repository) LoadOption {
	return func(o *loadOptions) { o.prev = prev }
}

// FromQueryGraph builds a repository from a validated payload. Subject
// internal ids and every explicit link and subquery id are kept. Missing
// ids are matched (see MatchIDs) or allocated past the explicit ones,
// top-level links before subqueries.
func FromQueryGraph(g *QueryGraph, alloc *ident.Allocator, opts ...LoadOption) (*Repository, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	r := NewRepository(alloc)
	alloc = r.Allocator()
	ids := resolveIDs(g, alloc, o.prev)

	for i, s := range g.Subjects {
		n := NewSubjectNodeWithID(alloc, s.InternalID, s.SubjectID, s.Label)
		n.X, n.Y = s.X, s.Y
		for j, p := range s.SubQueries {
			sq, err := subQueryFromPayload(alloc, n, p, ids.subqueries[i][j])
			if err != nil {
				return nil, fmt.Errorf("subject %s subquery %d: %w", s.InternalID, j, err)
			}
			n.AddSubQuery(sq)
		}
		r.AddNode(n)
	}
	for i, p := range g.Links {
		r.Links = append(r.Links, &Link{
			LinkID:                 ids.links[i],
			FromInternalID:         p.FromInternalID,
			ToInternalID:           p.ToInternalID,
			FromID:                 p.FromID,
			ToID:                   p.ToID,
			Label:                  p.Label,
			PropertyID:             p.PropertyID,
			TargetValueType:        p.ValueType,
			Quantifier:             p.Quantifier.clone(),
			AllowArbitraryProperty: p.AllowArbitraryProperty,
		})
	}
	return r, nil
}

// subQueryIDs are the resolved ids of one payload subquery.
type subQueryIDs struct {
	id, link int64
}

// payloadIDs holds the final ids of a payload, indexed like the payload.
type payloadIDs struct {
	links      []int64
	subqueries [][]subQueryIDs
}

func resolveIDs(g *QueryGraph, alloc *ident.Allocator, prev *Repository) payloadIDs {
	ids := payloadIDs{
		links:      make([]int64, len(g.Links)),
		subqueries: make([][]subQueryIDs, len(g.Subjects)),
	}
	usedLinks := make(map[int64]bool)
	usedSubQueries := make(map[int64]bool)
	for i, l := range g.Links {
		ids.links[i] = l.ID
		usedLinks[l.ID] = true
	}
	for i, s := range g.Subjects {
		ids.subqueries[i] = make([]subQueryIDs, len(s.SubQueries))
		for j, p := range s.SubQueries {
			ids.subqueries[i][j] = subQueryIDs{id: p.ID, link: p.LinkID}
			usedSubQueries[p.ID] = true
			usedLinks[p.LinkID] = true
		}
	}
	delete(usedLinks, 0)
	delete(usedSubQueries, 0)

	if prev != nil {
		ids.match(g, prev, usedLinks, usedSubQueries)
	}

	for id := range usedLinks {
		alloc.ObserveLinkID(id)
	}
	for id := range usedSubQueries {
		alloc.ObserveSubQueryID(id)
	}
	for i, id := range ids.links {
		if id == 0 {
			ids.links[i] = alloc.NextLinkID()
		}
	}
	for _, subs := range ids.subqueries {
		for j := range subs {
			if subs[j].id == 0 {
				subs[j].id = alloc.NextSubQueryID()
			}
			if subs[j].link == 0 {
				subs[j].link = alloc.NextLinkID()
			}
		}
	}
	return ids
}

// match fills missing ids from prev, never reusing an id the payload
// already claims.
func (ids *payloadIDs) match(g *QueryGraph, prev *Repository, usedLinks, usedSubQueries map[int64]bool) {
	for i, p := range g.Links {
		if ids.links[i] != 0 {
			continue
		}
		for _, l := range prev.Links {
			if !usedLinks[l.LinkID] && l.FromInternalID == p.FromInternalID &&
				l.ToInternalID == p.ToInternalID && l.PropertyID == p.PropertyID {
				ids.links[i] = l.LinkID
				usedLinks[l.LinkID] = true
				break
			}
		}
	}
	for i, s := range g.Subjects {
		n := prev.Node(s.InternalID)
		if n == nil {
			continue
		}
		for j, p := range s.SubQueries {
			sub := &ids.subqueries[i][j]
			if sub.id != 0 {
				continue
			}
			for _, sq := range n.SubQueries {
				l := sq.Link()
				if usedSubQueries[sq.SubQueryID()] || sq.Type() != p.ConstraintType ||
					l == nil || l.PropertyID != p.PropertyID {
					continue
				}
				sub.id = sq.SubQueryID()
				usedSubQueries[sub.id] = true
				if sub.link == 0 && !usedLinks[l.LinkID] {
					sub.link = l.LinkID
					usedLinks[l.LinkID] = true
				}
				break
			}
		}
	}
}

func (q *Quantifier) clone() *Quantifier {
	if q == nil {
		return nil
	}
	out := *q
	return &out
}

func subQueryFromPayload(alloc *ident.Allocator, owner *SubjectNode, p SubQueryPayload, ids subQueryIDs) (SubQuery, error) {
	sq, err := buildSubQuery(alloc, owner, p, ids.link)
	if err != nil {
		return nil, err
	}
	sq.base().ID = ids.id
	return sq, nil
}

func buildSubQuery(alloc *ident.Allocator, owner *SubjectNode, p SubQueryPayload, linkID int64) (SubQuery, error) {
	link := &Link{
		LinkID:          linkID,
		FromInternalID:  owner.InternalID,
		FromID:          owner.SubjectTypeID,
		PropertyID:      p.PropertyID,
		Label:           p.PropertyLabel,
		TargetValueType: p.ValueType,
	}
	switch p.ConstraintType {
	case ConstraintString:
		mode := StringMode(p.Mode)
		if mode == "" {
			mode = StringContains
		}
		s := ""
		if p.Value != nil {
			s = fmt.Sprint(p.Value)
		}
		return NewStringConstraint(alloc, link, s, mode), nil
	case ConstraintNumber:
		v, err := toFloat(p.Value)
		if err != nil {
			return nil, err
		}
		return NewNumberConstraint(alloc, link, v, compareMode(p.Mode)), nil
	case ConstraintBoolean:
		b, ok := p.Value.(bool)
		if !ok && p.Value != nil {
			return nil, validation.Problemf("boolean constraint value %v is not a boolean", p.Value)
		}
		if p.Value == nil {
			b = true
		}
		return NewBooleanConstraint(alloc, link, b), nil
	case ConstraintDate:
		c := NewDateConstraint(alloc, link, time.Time{}, compareMode(p.Mode))
		switch v := p.Value.(type) {
		case time.Time:
			c.Value = NewTimestamp(v)
		case string:
			c.Value = TimestampFromString(v)
			if err := c.Revive(); err != nil {
				return nil, validation.Problemf("date constraint: %v", err)
			}
		default:
			return nil, validation.Problemf("date constraint value %v is not a date", p.Value)
		}
		return c, nil
	case ConstraintSubject:
		var inst *Instance
		if p.Instance != nil {
			cp := *p.Instance
			inst = &cp
		}
		return NewSubjectEqualityConstraint(alloc, link, inst), nil
	case ConstraintProperty:
		return NewRawPropertyProjection(alloc, link), nil
	}
	return nil, &GraphError{Code: ErrCodeUnknownConstraint, Message: fmt.Sprintf("unknown constraint_type %q", p.ConstraintType)}
}

func compareMode(s string) CompareMode {
	switch CompareMode(s) {
	case CompareEquals, CompareLess, CompareGreater:
		return CompareMode(s)
	}
	return CompareGreater
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, validation.Problemf("number constraint value %q is not a number", n)
		}
		return f, nil
	}
	return 0, validation.Problemf("number constraint value %v is not a number", v)
}
