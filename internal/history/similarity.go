package history

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/blas/gonum"
)

var blasEngine = gonum.Implementation{}

// Match is an entry ranked by similarity.
type Match struct {
	Entry *Entry  `json:"entry"`
	Score float64 `json:"score"`
}

// Cosine returns the cosine similarity of two vectors. ok is false when the
// vectors differ in length or either has zero norm.
func Cosine(a, b []float32) (score float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	na := blasEngine.Snrm2(len(a), a, 1)
	nb := blasEngine.Snrm2(len(b), b, 1)
	if na == 0 || nb == 0 {
		return 0, false
	}
	dot := blasEngine.Sdot(len(a), a, 1, b, 1)
	return float64(dot) / (float64(na) * float64(nb)), true
}

// SimilarTo ranks the other admitted entries by similarity to e, best
// first, and returns at most k of them. Entries without an embedding are
// skipped, as is e itself.
func (h *History) SimilarTo(e *Entry, k int) []Match {
	if e == nil {
		return nil
	}
	vec := e.Embedding()
	if vec == nil {
		return nil
	}
	return h.rank(vec, k, e)
}

// Search embeds text and ranks admitted entries by similarity to it.
func (h *History) Search(ctx context.Context, text string, k int) ([]Match, error) {
	if h.opts.Embedder == nil {
		return nil, fmt.Errorf("search: no embedder configured")
	}
	vec, err := h.opts.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return h.rank(vec, k, nil), nil
}

func (h *History) rank(vec []float32, k int, exclude *Entry) []Match {
	var out []Match
	for _, cand := range h.Entries() {
		if cand == exclude {
			continue
		}
		score, ok := Cosine(vec, cand.Embedding())
		if !ok {
			continue
		}
		out = append(out, Match{Entry: cand, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
