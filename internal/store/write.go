package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/history"
)

// ErrSeqConflict is returned when a session already holds a different
// entry at the seq (or timestamp) being written, e.g. one admitted by
// another process working on the same session.
var ErrSeqConflict = errors.New("history entry conflicts with a stored entry")

// WriteEntry inserts an admitted history entry into a session. Writing an
// entry that is already stored with the same digest is a no-op; any other
// clash on (session, seq) or (session, timestamp) is ErrSeqConflict.
//
// The snapshot is stored in the graph codec's JSON form. The diff is reduced
// to its id summary; full diffs are recomputed on load.
func (s *Store) WriteEntry(ctx context.Context, sessionID string, e *history.Entry) error {
	snapshot, err := graph.EncodeRepository(e.Snapshot)
	if err != nil {
		return fmt.Errorf("write entry %d: %w", e.Seq, err)
	}

	var summary sql.NullString
	if e.Diff != nil {
		data, err := json.Marshal(e.Diff.Summarize())
		if err != nil {
			return fmt.Errorf("write entry %d: %w", e.Seq, err)
		}
		summary = sql.NullString{String: string(data), Valid: true}
	}

	embedding, err := marshalEmbedding(e.Embedding())
	if err != nil {
		return fmt.Errorf("write entry %d: %w", e.Seq, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO history_entries
		(session_id, seq, timestamp, snapshot, digest, diff_summary, paraphrase, embedding,
		 offset_x, offset_y, scale, size_x, size_y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		sessionID,
		e.Seq,
		e.Timestamp,
		string(snapshot),
		e.Digest,
		summary,
		e.Paraphrase,
		embedding,
		e.Offset.X,
		e.Offset.Y,
		e.Scale,
		e.Size.X,
		e.Size.Y,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("write entry %d: %w", e.Seq, ErrSessionNotFound)
		}
		return fmt.Errorf("write entry %d: %w", e.Seq, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write entry %d: %w", e.Seq, err)
	}
	if n == 0 {
		return s.checkStored(ctx, sessionID, e)
	}
	return nil
}

// checkStored accepts an insert that changed nothing only when the very
// same entry is already there.
func (s *Store) checkStored(ctx context.Context, sessionID string, e *history.Entry) error {
	var digest string
	var ts int64
	err := s.db.QueryRowContext(ctx, `
		SELECT digest, timestamp FROM history_entries
		WHERE session_id = ? AND seq = ?
	`, sessionID, e.Seq).Scan(&digest, &ts)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("write entry %d: timestamp %d taken: %w", e.Seq, e.Timestamp, ErrSeqConflict)
	case err != nil:
		return fmt.Errorf("write entry %d: %w", e.Seq, err)
	case digest != e.Digest || ts != e.Timestamp:
		return fmt.Errorf("write entry %d: %w", e.Seq, ErrSeqConflict)
	}
	return nil
}

// UpdateEmbedding sets the embedding of an existing entry.
func (s *Store) UpdateEmbedding(ctx context.Context, sessionID string, seq int64, vec []float32) error {
	embedding, err := marshalEmbedding(vec)
	if err != nil {
		return fmt.Errorf("update embedding %d: %w", seq, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE history_entries SET embedding = ?
		WHERE session_id = ? AND seq = ?
	`, embedding, sessionID, seq)
	if err != nil {
		return fmt.Errorf("update embedding %d: %w", seq, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update embedding %d: %w", seq, err)
	}
	if n == 0 {
		return fmt.Errorf("update embedding %d: %w", seq, ErrEntryNotFound)
	}
	return nil
}

func marshalEmbedding(vec []float32) (sql.NullString, error) {
	if vec == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal embedding: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// sink adapts a Store session to history.Sink.
type sink struct {
	s         *Store
	sessionID string
}

// Sink returns a history.Sink that persists into the given session.
func (s *Store) Sink(sessionID string) history.Sink {
	return &sink{s: s, sessionID: sessionID}
}

func (k *sink) Append(ctx context.Context, e *history.Entry) error {
	return k.s.WriteEntry(ctx, k.sessionID, e)
}

func (k *sink) UpdateEmbedding(ctx context.Context, seq int64, vec []float32) error {
	return k.s.UpdateEmbedding(ctx, k.sessionID, seq, vec)
}
