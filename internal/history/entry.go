package history

import (
	"math"
	"sync"

	"github.com/roach88/querygraph/internal/diff"
	"github.com/roach88/querygraph/internal/graph"
)

// Vec2 is a 2D point or extent in canvas units.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entry is one admitted graph state.
//
// Everything except the embedding is fixed at admission. The embedding is
// filled in later by a background call and may stay nil forever.
type Entry struct {
	Seq        int64                `json:"seq"`
	Timestamp  int64                `json:"timestamp"`
	Snapshot   *graph.Repository    `json:"snapshot"`
	Diff       *diff.RepositoryDiff `json:"diff,omitempty"`
	Paraphrase string               `json:"paraphrase"`
	Digest     string               `json:"digest"`

	Offset Vec2    `json:"offset"`
	Scale  float64 `json:"scale"`
	Size   Vec2    `json:"size"`

	mu        sync.RWMutex
	embedding []float32
}

// Embedding returns the similarity vector, or nil when none is available.
func (e *Entry) Embedding() []float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.embedding
}

// SetEmbedding stores the similarity vector.
func (e *Entry) SetEmbedding(v []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.embedding = v
}

// Rescale fits the entry's layout into target and stores the result.
//
// The bounding box comes from the diff's prior state when there is one,
// otherwise from the snapshot. A degenerate box (no nodes, zero extent, or a
// zero target) yields scale 1 with zero offset and size.
func (e *Entry) Rescale(target Vec2) (offset Vec2, scale float64, size Vec2) {
	src := e.Snapshot
	if e.Diff != nil && e.Diff.Prior != nil {
		src = e.Diff.Prior
	}
	var nodes []*graph.SubjectNode
	if src != nil {
		nodes = src.Nodes
	}
	offset, scale, size = scalingFactors(nodes, target)
	e.Offset, e.Scale, e.Size = offset, scale, size
	return offset, scale, size
}

func scalingFactors(nodes []*graph.SubjectNode, target Vec2) (Vec2, float64, Vec2) {
	tl := Vec2{X: math.Inf(1), Y: math.Inf(1)}
	br := Vec2{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, n := range nodes {
		tl.X = math.Min(tl.X, n.X)
		tl.Y = math.Min(tl.Y, n.Y)
		br.X = math.Max(br.X, n.X+n.Width)
		br.Y = math.Max(br.Y, n.Y+n.Height)
	}
	extent := Vec2{X: br.X - tl.X, Y: br.Y - tl.Y}
	scale := math.Min(target.X/extent.X, target.Y/extent.Y)
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return Vec2{}, 1, Vec2{}
	}
	offset := Vec2{X: -tl.X * scale, Y: -tl.Y * scale}
	size := Vec2{X: extent.X * scale, Y: extent.Y * scale}
	return offset, scale, size
}
