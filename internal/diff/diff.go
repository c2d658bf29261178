// Package diff computes id-matched structural differences between graph
// entities and between whole repositories.
//
// Identity is always the entity's DiffID, never pointer identity or deep
// equality. Field-level change sets compare canonical JSON encodings, so two
// values are "the same field" iff they serialize identically.
package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/roach88/querygraph/internal/canon"
)

// Entity is anything the diff engine can match and compare.
type Entity[T any] interface {
	DiffID() string
	Changed(other T) bool
	Clone() T
}

// InstanceDiff is the field-level difference of one entity across two states.
type InstanceDiff[T Entity[T]] struct {
	Left  T `json:"left"`
	Right T `json:"right"`

	// ChangedFields maps each top-level field whose canonical encoding
	// differs to its value on the right side. A field the right side no
	// longer carries maps to null.
	ChangedFields map[string]json.RawMessage `json:"changed_fields"`
}

// NewInstanceDiff compares left and right field by field. When either side
// is absent (nil) the change set is empty.
func NewInstanceDiff[T Entity[T]](left, right T) (*InstanceDiff[T], error) {
	d := &InstanceDiff[T]{ChangedFields: map[string]json.RawMessage{}}
	if !absent(left) {
		d.Left = left.Clone()
	}
	if !absent(right) {
		d.Right = right.Clone()
	}
	if absent(left) || absent(right) {
		return d, nil
	}

	lf, err := canon.Fields(left)
	if err != nil {
		return nil, fmt.Errorf("encode left %s: %w", left.DiffID(), err)
	}
	rf, err := canon.Fields(right)
	if err != nil {
		return nil, fmt.Errorf("encode right %s: %w", right.DiffID(), err)
	}
	for key, rv := range rf {
		if !bytes.Equal(lf[key], rv) {
			d.ChangedFields[key] = json.RawMessage(rv)
		}
	}
	for key := range lf {
		if _, ok := rf[key]; !ok {
			d.ChangedFields[key] = json.RawMessage("null")
		}
	}
	return d, nil
}

// Has reports whether field changed.
func (d *InstanceDiff[T]) Has(field string) bool {
	_, ok := d.ChangedFields[field]
	return ok
}

func absent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// DiffList partitions two collections by id.
type DiffList[T Entity[T], D any] struct {
	// Added holds right-side entities whose id is absent on the left.
	Added []T `json:"added"`
	// Removed holds left-side entities whose id is absent on the right.
	Removed []T `json:"removed"`
	// Changed holds a diff for every id on both sides whose entity Changed.
	Changed []D `json:"changed"`
}

// NewDiffList matches left and right by DiffID. Added and removed entities
// are cloned; ctor builds the diff of each changed pair. Output order
// follows the input collections.
func NewDiffList[T Entity[T], D any](left, right []T, ctor func(l, r T) (D, error)) (*DiffList[T, D], error) {
	d := &DiffList[T, D]{Added: []T{}, Removed: []T{}, Changed: []D{}}

	leftByID := make(map[string]T, len(left))
	for _, l := range left {
		leftByID[l.DiffID()] = l
	}
	rightIDs := make(map[string]bool, len(right))
	for _, r := range right {
		rightIDs[r.DiffID()] = true
	}

	for _, r := range right {
		l, ok := leftByID[r.DiffID()]
		if !ok {
			d.Added = append(d.Added, r.Clone())
			continue
		}
		if l.Changed(r) {
			changed, err := ctor(l, r)
			if err != nil {
				return nil, fmt.Errorf("diff %s: %w", r.DiffID(), err)
			}
			d.Changed = append(d.Changed, changed)
		}
	}
	for _, l := range left {
		if !rightIDs[l.DiffID()] {
			d.Removed = append(d.Removed, l.Clone())
		}
	}
	return d, nil
}

// Empty reports whether all three partitions are empty.
func (d *DiffList[T, D]) Empty() bool {
	return d == nil || len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// AddedIDs returns the ids of added entities.
func (d *DiffList[T, D]) AddedIDs() []string { return ids(d.Added) }

// RemovedIDs returns the ids of removed entities.
func (d *DiffList[T, D]) RemovedIDs() []string { return ids(d.Removed) }

func ids[T Entity[T]](items []T) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.DiffID())
	}
	return out
}
