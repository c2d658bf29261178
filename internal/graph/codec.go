package graph

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/querygraph/internal/ident"
)

// Reviver is implemented by variants that need fix-up after decoding.
// Revive must be idempotent; the codec calls it exactly once per decode.
type Reviver interface {
	Revive() error
}

// registry maps each variant tag to a constructor of its zero value.
var registry = map[ConstraintType]func() SubQuery{
	ConstraintString:   func() SubQuery { return &StringConstraint{} },
	ConstraintNumber:   func() SubQuery { return &NumberConstraint{} },
	ConstraintBoolean:  func() SubQuery { return &BooleanConstraint{} },
	ConstraintDate:     func() SubQuery { return &DateConstraint{} },
	ConstraintSubject:  func() SubQuery { return &SubjectEqualityConstraint{} },
	ConstraintProperty: func() SubQuery { return &RawPropertyProjection{} },
}

// RegisteredTypes lists the known variant tags in sorted order.
func RegisteredTypes() []ConstraintType {
	out := make([]ConstraintType, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalSubQuery encodes a subquery with its constraint_type tag.
func MarshalSubQuery(sq SubQuery) ([]byte, error) {
	if sq == nil {
		return nil, fmt.Errorf("marshal subquery: nil")
	}
	if sq.Type() == "" {
		return nil, fmt.Errorf("marshal subquery %d: missing constraint_type", sq.SubQueryID())
	}
	return json.Marshal(sq)
}

// UnmarshalSubQuery revives a subquery as its registered variant.
func UnmarshalSubQuery(data []byte) (SubQuery, error) {
	var head struct {
		Kind ConstraintType `json:"constraint_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal subquery: %w", err)
	}
	ctor, ok := registry[head.Kind]
	if !ok {
		return nil, &GraphError{
			Code:    ErrCodeUnknownConstraint,
			Message: fmt.Sprintf("unknown constraint_type %q", head.Kind),
		}
	}
	sq := ctor()
	if err := json.Unmarshal(data, sq); err != nil {
		return nil, fmt.Errorf("unmarshal %s subquery: %w", head.Kind, err)
	}
	if r, ok := sq.(Reviver); ok {
		if err := r.Revive(); err != nil {
			return nil, fmt.Errorf("revive %s subquery %d: %w", head.Kind, sq.SubQueryID(), err)
		}
	}
	return sq, nil
}

// EncodeRepository serializes a repository with all variant tags.
func EncodeRepository(r *Repository) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRepository revives a repository and binds it to alloc, advancing
// the allocator past every id it contains. A nil alloc gets a fresh one.
func DecodeRepository(data []byte, alloc *ident.Allocator) (*Repository, error) {
	if alloc == nil {
		alloc = ident.NewAllocator()
	}
	r := &Repository{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode repository: %w", err)
	}
	if r.Nodes == nil {
		r.Nodes = []*SubjectNode{}
	}
	if r.Links == nil {
		r.Links = []*Link{}
	}
	if r.State == "" {
		r.State = Stable
	}
	r.alloc = alloc
	r.observeIDs()
	return r, nil
}
