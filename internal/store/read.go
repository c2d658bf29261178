package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/querygraph/internal/diff"
	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/history"
	"github.com/roach88/querygraph/internal/ident"
)

// ErrEntryNotFound is returned when a (session, seq) pair does not exist.
var ErrEntryNotFound = errors.New("history entry not found")

// Row is a stored history entry.
type Row struct {
	SessionID string
	history.Record

	// DiffSummary is nil for the first entry of a session.
	DiffSummary *diff.Summary
}

const entryColumns = `
	session_id, seq, timestamp, snapshot, digest, diff_summary, paraphrase, embedding,
	offset_x, offset_y, scale, size_x, size_y`

// ReadEntries returns every entry of a session ordered by seq.
//
// Snapshots of one session are decoded against a shared allocator, so new
// ids allocated after a reload never collide with stored ones.
// Returns an empty slice (not nil) if the session has no entries.
func (s *Store) ReadEntries(ctx context.Context, sessionID string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM history_entries
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	alloc := ident.NewAllocator()
	out := []Row{}
	for rows.Next() {
		row, err := scanRow(rows, alloc)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// ReadEntry returns a single entry, or ErrEntryNotFound.
func (s *Store) ReadEntry(ctx context.Context, sessionID string, seq int64) (Row, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM history_entries
		WHERE session_id = ? AND seq = ?
	`, sessionID, seq)
	r, err := scanRow(row, ident.NewAllocator())
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, fmt.Errorf("read entry %d: %w", seq, ErrEntryNotFound)
	}
	if err != nil {
		return Row{}, err
	}
	return r, nil
}

// FindByDigest returns the seq of the first entry whose snapshot digest
// matches.
func (s *Store) FindByDigest(ctx context.Context, sessionID, digest string) (int64, bool, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT seq FROM history_entries
		WHERE session_id = ? AND digest = ?
		ORDER BY seq ASC
		LIMIT 1
	`, sessionID, digest).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find by digest: %w", err)
	}
	return seq, true, nil
}

// LoadHistory rebuilds a session's history. Diffs are recomputed from the
// stored snapshots. The returned History persists new admissions back into
// the session.
func (s *Store) LoadHistory(ctx context.Context, sessionID string, opts history.Options) (*history.History, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.ReadEntries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records := make([]history.Record, len(rows))
	for i, r := range rows {
		records[i] = r.Record
	}

	opts.Sink = s.Sink(sessionID)
	opts.Session = sessionID
	h := history.New(opts)
	if err := h.Restore(records); err != nil {
		return nil, fmt.Errorf("load history %q: %w", sessionID, err)
	}
	return h, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(sc rowScanner, alloc *ident.Allocator) (Row, error) {
	var (
		r         Row
		snapshot  string
		summary   sql.NullString
		embedding sql.NullString
	)
	err := sc.Scan(
		&r.SessionID,
		&r.Seq,
		&r.Timestamp,
		&snapshot,
		&r.Digest,
		&summary,
		&r.Paraphrase,
		&embedding,
		&r.Offset.X,
		&r.Offset.Y,
		&r.Scale,
		&r.Size.X,
		&r.Size.Y,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Row{}, err
		}
		return Row{}, fmt.Errorf("scan entry: %w", err)
	}

	r.Snapshot, err = graph.DecodeRepository([]byte(snapshot), alloc)
	if err != nil {
		return Row{}, fmt.Errorf("decode snapshot of entry %d: %w", r.Seq, err)
	}
	if summary.Valid {
		var sum diff.Summary
		if err := json.Unmarshal([]byte(summary.String), &sum); err != nil {
			return Row{}, fmt.Errorf("decode diff summary of entry %d: %w", r.Seq, err)
		}
		r.DiffSummary = &sum
	}
	if embedding.Valid {
		if err := json.Unmarshal([]byte(embedding.String), &r.Embedding); err != nil {
			return Row{}, fmt.Errorf("decode embedding of entry %d: %w", r.Seq, err)
		}
	}
	return r, nil
}
