package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/ident"
	"github.com/roach88/querygraph/internal/testutil"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHistory(opts Options) *History {
	if opts.Now == nil {
		opts.Now = testutil.NewDeterministicClock().Now
	}
	opts.Logger = discard()
	return New(opts)
}

type stubEmbedder struct {
	mu    sync.Mutex
	vecs  map[string][]float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

type memSink struct {
	appended []int64
	embedded map[int64][]float32
	err      error
	mu       sync.Mutex
}

func (m *memSink) Append(_ context.Context, e *Entry) error {
	if m.err != nil {
		return m.err
	}
	m.appended = append(m.appended, e.Seq)
	return nil
}

func (m *memSink) UpdateEmbedding(_ context.Context, seq int64, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embedded == nil {
		m.embedded = map[int64][]float32{}
	}
	m.embedded[seq] = vec
	return nil
}

func TestTryAddEntry_RejectsWhileEditing(t *testing.T) {
	h := newHistory(Options{})
	p := testutil.NewPersonGraph(t)
	p.Repo.BeginEditing()

	e, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Equal(t, 0, h.Len())

	p.Repo.EndEditing()
	e, err = h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)
	require.NotNil(t, e)
}

func TestTryAddEntry_FirstIsAdmittedWithoutDiff(t *testing.T) {
	h := newHistory(Options{})
	p := testutil.NewPersonGraph(t)

	e, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Nil(t, e.Diff)
	assert.Equal(t, int64(1), e.Seq)
	assert.NotEmpty(t, e.Paraphrase)
	assert.Len(t, e.Digest, 64)
	assert.Equal(t, 1.0, e.Scale)
	assert.Same(t, e, h.Last())
}

func TestTryAddEntry_UnchangedIsRejected(t *testing.T) {
	h := newHistory(Options{})
	p := testutil.NewPersonGraph(t)

	_, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)

	p.Person.X = 999
	e, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Equal(t, 1, h.Len())
}

func TestTryAddEntry_OneAddedLink(t *testing.T) {
	h := newHistory(Options{})
	p := testutil.NewPersonGraph(t)

	_, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)

	extra := p.Repo.NewLink("ex:partnerOf", "", "")
	require.NoError(t, p.Repo.AddOutlink(extra, p.Org, p.Person, graph.SideTo))

	e, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.NotNil(t, e.Diff)

	assert.Len(t, e.Diff.Links.Added, 1)
	assert.Empty(t, e.Diff.Links.Removed)
	assert.Empty(t, e.Diff.Links.Changed)
	assert.True(t, e.Diff.Nodes.Empty())
	assert.Equal(t, 2, h.Len())
}

func TestTryAddEntry_TimestampsIncrease(t *testing.T) {
	frozen := testutil.Frozen(testutil.Epoch)
	h := newHistory(Options{Now: frozen})
	p := testutil.NewPersonGraph(t)

	first, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)
	p.AddCity(t)
	second, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)

	assert.Equal(t, testutil.Epoch.UnixMilli(), first.Timestamp)
	assert.Equal(t, first.Timestamp+1, second.Timestamp)

	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Same(t, first, entries[0])
	assert.Same(t, second, h.ReverseEntries()[0])
}

func TestTryAddEntry_SnapshotIsNotAliased(t *testing.T) {
	h := newHistory(Options{})
	p := testutil.NewPersonGraph(t)

	e, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)

	p.Person.Label = "mutated"
	p.Name.Value = "Bob"
	p.Repo.RemoveLink(p.WorksFor)

	assert.Equal(t, "Person", e.Snapshot.Nodes[0].Label)
	assert.Equal(t, "Alice", e.Snapshot.Nodes[0].SubQueries[0].(*graph.StringConstraint).Value)
	assert.Len(t, e.Snapshot.Links, 1)

	checkedOut, ok := h.Checkout(e.Seq)
	require.True(t, ok)
	checkedOut.Nodes[0].Label = "also mutated"
	assert.Equal(t, "Person", e.Snapshot.Nodes[0].Label)
}

func TestTryAddEntry_SinkFailureRejects(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	h := newHistory(Options{Sink: sink})

	e, err := h.TryAddEntry(context.Background(), testutil.NewPersonGraph(t).Repo)
	assert.Error(t, err)
	assert.Nil(t, e)
	assert.Equal(t, 0, h.Len())
}

func TestTryAddEntry_EmbeddingStored(t *testing.T) {
	sink := &memSink{}
	emb := &stubEmbedder{}
	h := newHistory(Options{Embedder: emb, Sink: sink})

	e, err := h.TryAddEntry(context.Background(), testutil.NewPersonGraph(t).Repo)
	require.NoError(t, err)
	h.Wait()

	assert.Equal(t, []float32{1, 0, 0}, e.Embedding())
	assert.Equal(t, []int64{1}, sink.appended)
	assert.Equal(t, []float32{1, 0, 0}, sink.embedded[1])
}

func TestTryAddEntry_EmbeddingFailureLeavesNil(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("service unavailable")}
	h := newHistory(Options{Embedder: emb})

	e, err := h.TryAddEntry(context.Background(), testutil.NewPersonGraph(t).Repo)
	require.NoError(t, err)
	require.NotNil(t, e)
	h.Wait()

	assert.Nil(t, e.Embedding())
	assert.Equal(t, 1, emb.calls)
	assert.Empty(t, h.SimilarTo(e, 5))
}

func TestRescale(t *testing.T) {
	h := newHistory(Options{Viewport: Vec2{X: 900, Y: 264}})
	p := testutil.NewPersonGraph(t)

	e, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)

	// nodes span (0,0)-(450,132)
	assert.Equal(t, 2.0, e.Scale)
	assert.Equal(t, Vec2{X: 0, Y: 0}, e.Offset)
	assert.Equal(t, Vec2{X: 900, Y: 264}, e.Size)
}

func TestRescale_UsesPriorState(t *testing.T) {
	h := newHistory(Options{})
	p := testutil.NewPersonGraph(t)
	_, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)

	city, _ := p.AddCity(t)
	city.X, city.Y = 2000, 2000
	e, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)

	_, scale, _ := e.Rescale(Vec2{X: 450, Y: 132})
	assert.Equal(t, 1.0, scale)
}

func TestRescale_NegativeCoordinates(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	for _, pos := range []Vec2{{X: -500, Y: -300}, {X: -300, Y: -250}} {
		n := graph.NewSubjectNode(alloc, "ex:A", "")
		n.X, n.Y = pos.X, pos.Y
		n.Width, n.Height = 100, 50
		r.AddNode(n)
	}

	// nodes span (-500,-300)-(-200,-200)
	offset, scale, size := (&Entry{Snapshot: r}).Rescale(Vec2{X: 600, Y: 200})
	assert.Equal(t, 2.0, scale)
	assert.Equal(t, Vec2{X: 1000, Y: 600}, offset)
	assert.Equal(t, Vec2{X: 600, Y: 200}, size)
}

func TestRescale_DegenerateFallsBack(t *testing.T) {
	alloc := ident.NewAllocator()
	r := graph.NewRepository(alloc)
	n := graph.NewSubjectNode(alloc, "ex:A", "")
	n.Width, n.Height = 0, 0
	r.AddNode(n)

	tests := []struct {
		name   string
		repo   *graph.Repository
		target Vec2
	}{
		{"zero extent", r, Vec2{X: 800, Y: 600}},
		{"no nodes", graph.NewRepository(nil), Vec2{X: 800, Y: 600}},
		{"zero target", testutil.NewPersonGraph(t).Repo, Vec2{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Snapshot: tt.repo}
			offset, scale, size := e.Rescale(tt.target)

			assert.Equal(t, 1.0, scale)
			assert.Equal(t, Vec2{}, offset)
			assert.Equal(t, Vec2{}, size)
			assert.False(t, math.IsNaN(e.Scale))
		})
	}
}

func TestSimilarTo_SkipsMissingEmbeddings(t *testing.T) {
	h := newHistory(Options{})
	p := testutil.NewPersonGraph(t)

	a, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)
	p.AddCity(t)
	b, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)
	p.Org.Label = "Company"
	c, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)
	p.Person.Label = "Human"
	d, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)

	a.SetEmbedding([]float32{1, 0})
	b.SetEmbedding([]float32{0, 1})
	c.SetEmbedding([]float32{0.9, 0.1})
	_ = d // no embedding

	got := h.SimilarTo(a, 10)
	require.Len(t, got, 2)
	assert.Same(t, c, got[0].Entry)
	assert.Same(t, b, got[1].Entry)
	assert.InDelta(t, 0.0, got[1].Score, 1e-6)

	assert.Len(t, h.SimilarTo(a, 1), 1)
	assert.Nil(t, h.SimilarTo(d, 10))
}

func TestSearch(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float32{"people": {0, 1, 0}}}
	h := newHistory(Options{Embedder: emb})
	e, err := h.TryAddEntry(context.Background(), testutil.NewPersonGraph(t).Repo)
	require.NoError(t, err)
	h.Wait()
	e.SetEmbedding([]float32{0, 2, 0})

	got, err := h.Search(context.Background(), "people", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)

	_, err = newHistory(Options{}).Search(context.Background(), "x", 1)
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	_, ok := Cosine([]float32{1, 2}, []float32{1})
	assert.False(t, ok)
	_, ok = Cosine([]float32{0, 0}, []float32{1, 1})
	assert.False(t, ok)

	score, ok := Cosine([]float32{1, 1}, []float32{2, 2})
	require.True(t, ok)
	assert.InDelta(t, 1.0, score, 1e-6)
}

func TestRestore_RecomputesDiffs(t *testing.T) {
	p := testutil.NewPersonGraph(t)
	first := p.Repo.Clone()
	p.AddCity(t)
	second := p.Repo.Clone()

	h := newHistory(Options{})
	err := h.Restore([]Record{
		{Seq: 1, Timestamp: 10, Snapshot: first, Scale: 1},
		{Seq: 2, Timestamp: 20, Snapshot: second, Scale: 1, Embedding: []float32{1}},
	})
	require.NoError(t, err)

	require.Equal(t, 2, h.Len())
	last := h.Last()
	assert.Equal(t, int64(2), last.Seq)
	assert.Len(t, last.Diff.Nodes.Added, 1)
	assert.Len(t, last.Diff.Links.Added, 1)
	assert.Equal(t, []float32{1}, last.Embedding())
	assert.Nil(t, h.BySeq(1).Diff)

	// admission continues after the restored entries
	p.Org.Label = "Company"
	e, err := h.TryAddEntry(context.Background(), p.Repo)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(3), e.Seq)
	assert.Greater(t, e.Timestamp, int64(20))
}

func TestRestore_RejectsOutOfOrder(t *testing.T) {
	p := testutil.NewPersonGraph(t)
	h := newHistory(Options{})
	err := h.Restore([]Record{
		{Seq: 1, Timestamp: 20, Snapshot: p.Repo.Clone()},
		{Seq: 2, Timestamp: 20, Snapshot: p.Repo.Clone()},
	})
	assert.Error(t, err)
}
