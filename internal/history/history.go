// Package history records the sequence of graph states a user produces.
//
// A candidate state is admitted only when the repository is stable and the
// state differs structurally from the last admitted one. Admitted entries
// are deep copies, ordered by a strictly increasing millisecond timestamp.
//
// After admission an embedding of the entry's paraphrase is requested in the
// background. Failures there are logged and leave the entry without an
// embedding; entries without one are skipped by similarity ranking.
//
// Thread-safety: History is safe for concurrent use. The repositories passed
// to TryAddEntry must not be mutated until the call returns.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/btree"

	"github.com/roach88/querygraph/internal/canon"
	"github.com/roach88/querygraph/internal/diff"
	"github.com/roach88/querygraph/internal/embedding"
	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/metrics"
	"github.com/roach88/querygraph/internal/sparql"
)

// DefaultEmbedTimeout bounds the background embedding call for one entry.
const DefaultEmbedTimeout = 30 * time.Second

// Sink persists admitted entries. Append runs before the entry becomes
// visible; an Append error rejects the entry.
type Sink interface {
	Append(ctx context.Context, e *Entry) error
	UpdateEmbedding(ctx context.Context, seq int64, vec []float32) error
}

// Options configures a History. The zero value is usable.
type Options struct {
	// Embedder computes paraphrase embeddings. Nil disables them.
	Embedder     embedding.Embedder
	EmbedTimeout time.Duration

	// Viewport is the target size for layout rescaling at admission.
	// The zero value leaves entries at scale 1.
	Viewport Vec2

	// Now defaults to time.Now.
	Now func() time.Time

	Logger  *slog.Logger
	Sink    Sink
	Session string
}

// History is an ordered record of admitted graph states.
type History struct {
	mu      sync.RWMutex
	entries *btree.BTreeG[*Entry]
	bySeq   map[int64]*Entry
	last    *Entry
	nextSeq int64

	opts   Options
	logger *slog.Logger
	wg     sync.WaitGroup
}

func byTimestamp(a, b *Entry) bool { return a.Timestamp < b.Timestamp }

// New creates an empty history.
func New(opts Options) *History {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &History{
		entries: btree.NewBTreeG[*Entry](byTimestamp),
		bySeq:   make(map[int64]*Entry),
		nextSeq: 1,
		opts:    opts,
		logger:  logger.With("session", opts.Session),
	}
}

// TryAddEntry submits a candidate state.
//
// It returns (nil, nil) when the repository is being edited or when nothing
// changed structurally since the last admitted entry. On admission the new
// entry is returned; its Diff is nil for the first entry.
func (h *History) TryAddEntry(ctx context.Context, r *graph.Repository) (*Entry, error) {
	if r == nil {
		return nil, fmt.Errorf("try add entry: nil repository")
	}
	if r.IsEditing() {
		metrics.HistoryDecisions.WithLabelValues("editing").Inc()
		h.logger.Debug("history candidate rejected", "reason", "editing")
		return nil, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var d *diff.RepositoryDiff
	if h.last != nil {
		var err error
		d, err = diff.Repositories(h.last.Snapshot, r)
		if err != nil {
			metrics.HistoryDecisions.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("diff against entry %d: %w", h.last.Seq, err)
		}
		if d.Empty() {
			metrics.HistoryDecisions.WithLabelValues("unchanged").Inc()
			h.logger.Debug("history candidate rejected", "reason", "unchanged")
			return nil, nil
		}
	}

	e, err := h.newEntry(r, d)
	if err != nil {
		metrics.HistoryDecisions.WithLabelValues("error").Inc()
		return nil, err
	}
	if h.opts.Sink != nil {
		if err := h.opts.Sink.Append(ctx, e); err != nil {
			metrics.HistoryDecisions.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("persist entry %d: %w", e.Seq, err)
		}
	}
	h.insert(e)

	metrics.HistoryDecisions.WithLabelValues("admitted").Inc()
	metrics.HistoryEntries.WithLabelValues(h.opts.Session).Set(float64(h.entries.Len()))
	h.logger.Info("history entry admitted",
		"seq", e.Seq,
		"timestamp", e.Timestamp,
		"nodes", len(e.Snapshot.Nodes),
		"links", len(e.Snapshot.Links),
	)

	h.embedAsync(ctx, e)
	return e, nil
}

func (h *History) newEntry(r *graph.Repository, d *diff.RepositoryDiff) (*Entry, error) {
	snapshot := r.Clone()
	paraphrase, err := sparql.QueryReadable(snapshot)
	if err != nil {
		// An empty or partially built graph still belongs in history.
		h.logger.Debug("no paraphrase for entry", "error", err)
		paraphrase = ""
	}
	digest, err := canon.Digest(canon.DomainSnapshot, snapshot)
	if err != nil {
		return nil, fmt.Errorf("digest snapshot: %w", err)
	}
	e := &Entry{
		Seq:        h.nextSeq,
		Timestamp:  h.nextTimestamp(),
		Snapshot:   snapshot,
		Diff:       d,
		Paraphrase: paraphrase,
		Digest:     digest,
		Scale:      1,
	}
	if h.opts.Viewport != (Vec2{}) {
		e.Rescale(h.opts.Viewport)
	}
	return e, nil
}

// nextTimestamp returns a millisecond timestamp strictly greater than the
// last admitted one. Caller holds h.mu.
func (h *History) nextTimestamp() int64 {
	ts := h.opts.Now().UnixMilli()
	if h.last != nil && ts <= h.last.Timestamp {
		ts = h.last.Timestamp + 1
	}
	return ts
}

// insert makes e visible. Caller holds h.mu.
func (h *History) insert(e *Entry) {
	h.entries.Set(e)
	h.bySeq[e.Seq] = e
	h.last = e
	if e.Seq >= h.nextSeq {
		h.nextSeq = e.Seq + 1
	}
}

func (h *History) embedAsync(ctx context.Context, e *Entry) {
	if h.opts.Embedder == nil || e.Paraphrase == "" {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.EmbedTimeout)
		defer cancel()

		vec, err := h.opts.Embedder.Embed(ctx, e.Paraphrase)
		if err != nil {
			h.logger.Warn("embedding failed", "seq", e.Seq, "timestamp", e.Timestamp, "error", err)
			return
		}
		e.SetEmbedding(vec)
		if h.opts.Sink != nil {
			if err := h.opts.Sink.UpdateEmbedding(ctx, e.Seq, vec); err != nil {
				h.logger.Warn("persist embedding failed", "seq", e.Seq, "error", err)
			}
		}
	}()
}

// Wait blocks until all background embedding calls have finished.
func (h *History) Wait() {
	h.wg.Wait()
}

// Record is a previously admitted entry as loaded from storage.
type Record struct {
	Seq        int64
	Timestamp  int64
	Snapshot   *graph.Repository
	Paraphrase string
	Digest     string
	Embedding  []float32
	Offset     Vec2
	Scale      float64
	Size       Vec2
}

// Restore appends previously admitted records in order. Diffs are
// recomputed from consecutive snapshots; nothing is re-admitted or
// re-embedded.
func (h *History) Restore(records []Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, rec := range records {
		if rec.Snapshot == nil {
			return fmt.Errorf("restore entry %d: missing snapshot", rec.Seq)
		}
		if h.last != nil && rec.Timestamp <= h.last.Timestamp {
			return fmt.Errorf("restore entry %d: timestamp %d not after %d", rec.Seq, rec.Timestamp, h.last.Timestamp)
		}
		var d *diff.RepositoryDiff
		if h.last != nil {
			var err error
			d, err = diff.Repositories(h.last.Snapshot, rec.Snapshot)
			if err != nil {
				return fmt.Errorf("restore entry %d: %w", rec.Seq, err)
			}
		}
		e := &Entry{
			Seq:        rec.Seq,
			Timestamp:  rec.Timestamp,
			Snapshot:   rec.Snapshot,
			Diff:       d,
			Paraphrase: rec.Paraphrase,
			Digest:     rec.Digest,
			Offset:     rec.Offset,
			Scale:      rec.Scale,
			Size:       rec.Size,
			embedding:  rec.Embedding,
		}
		h.insert(e)
	}
	metrics.HistoryEntries.WithLabelValues(h.opts.Session).Set(float64(h.entries.Len()))
	return nil
}

// Len returns the number of admitted entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entries.Len()
}

// Entries returns the admitted entries, oldest first.
func (h *History) Entries() []*Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Entry, 0, h.entries.Len())
	h.entries.Scan(func(e *Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// ReverseEntries returns the admitted entries, newest first.
func (h *History) ReverseEntries() []*Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Entry, 0, h.entries.Len())
	h.entries.Reverse(func(e *Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Last returns the most recently admitted entry, or nil.
func (h *History) Last() *Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// Baseline returns the last admitted snapshot, the state the next
// submission is diffed against, or nil for an empty history. Payload loaders
// pass it to graph.MatchIDs so resubmitted entities keep their ids.
func (h *History) Baseline() *graph.Repository {
	if e := h.Last(); e != nil {
		return e.Snapshot
	}
	return nil
}

// BySeq returns the entry with the given sequence number, or nil.
func (h *History) BySeq(seq int64) *Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bySeq[seq]
}

// Checkout returns a working copy of an admitted state. The copy shares no
// memory with the stored entry.
func (h *History) Checkout(seq int64) (*graph.Repository, bool) {
	e := h.BySeq(seq)
	if e == nil {
		return nil, false
	}
	return e.Snapshot.Clone(), true
}
