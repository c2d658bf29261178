package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/querygraph/internal/canon"
	"github.com/roach88/querygraph/internal/diff"
	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/history"
	"github.com/roach88/querygraph/internal/sparql"
	"github.com/roach88/querygraph/internal/store"
	"github.com/roach88/querygraph/internal/validation"
)

const defaultSimilar = 5

type compileRequest struct {
	Graph    graph.QueryGraph `json:"graph"`
	Limit    *int             `json:"limit,omitempty"`
	Offset   *int             `json:"offset,omitempty"`
	Distinct *bool            `json:"distinct,omitempty"`
}

type compileResponse struct {
	Query      string `json:"query"`
	Paraphrase string `json:"paraphrase"`
	Digest     string `json:"digest"`
}

type lintRequest struct {
	Graph graph.QueryGraph `json:"graph"`
}

type diffRequest struct {
	Left  graph.QueryGraph `json:"left"`
	Right graph.QueryGraph `json:"right"`
}

type diffResponse struct {
	Empty   bool                 `json:"empty"`
	Summary diff.Summary         `json:"summary"`
	Diff    *diff.RepositoryDiff `json:"diff"`
}

type sessionRequest struct {
	Name string `json:"name"`
}

type entryRequest struct {
	Graph   graph.QueryGraph `json:"graph"`
	Editing bool             `json:"editing,omitempty"`
}

type entryResponse struct {
	Admitted bool       `json:"admitted"`
	Entry    *entryView `json:"entry,omitempty"`
}

// entryView is the wire form of a history entry.
type entryView struct {
	Seq          int64             `json:"seq"`
	Timestamp    int64             `json:"timestamp"`
	Paraphrase   string            `json:"paraphrase"`
	Digest       string            `json:"digest"`
	Offset       history.Vec2      `json:"offset"`
	Scale        float64           `json:"scale"`
	Size         history.Vec2      `json:"size"`
	HasEmbedding bool              `json:"has_embedding"`
	Diff         *diff.Summary     `json:"diff,omitempty"`
	Graph        *graph.QueryGraph `json:"graph,omitempty"`
}

type matchView struct {
	Score float64    `json:"score"`
	Entry *entryView `json:"entry"`
}

func newEntryView(e *history.Entry, withGraph bool) *entryView {
	v := &entryView{
		Seq:          e.Seq,
		Timestamp:    e.Timestamp,
		Paraphrase:   e.Paraphrase,
		Digest:       e.Digest,
		Offset:       e.Offset,
		Scale:        e.Scale,
		Size:         e.Size,
		HasEmbedding: e.Embedding() != nil,
	}
	if e.Diff != nil {
		sum := e.Diff.Summarize()
		v.Diff = &sum
	}
	if withGraph {
		v.Graph = e.Snapshot.ToQueryGraph()
	}
	return v
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) compile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	repo, err := graph.FromQueryGraph(&req.Graph, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := sparql.Options{
		Limit:    s.cfg.Query.Limit,
		Offset:   s.cfg.Query.Offset,
		Distinct: s.cfg.Query.Distinct,
	}
	if req.Limit != nil {
		opts.Limit = *req.Limit
	}
	if req.Offset != nil {
		opts.Offset = *req.Offset
	}
	if req.Distinct != nil {
		opts.Distinct = *req.Distinct
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		s.writeError(w, r, validation.Problemf("limit and offset must be >= 0"))
		return
	}

	qs, err := repo.QuerySet()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	query, err := sparql.Compile(qs, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	paraphrase, err := sparql.Readable(qs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, compileResponse{
		Query:      query,
		Paraphrase: paraphrase,
		Digest:     canon.DigestString(canon.DomainQuery, query),
	})
}

func (s *Server) lint(w http.ResponseWriter, r *http.Request) {
	var req lintRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	repo, err := graph.FromQueryGraph(&req.Graph, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	qs, err := repo.QuerySet()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sparql.Lint(qs))
}

func (s *Server) diff(w http.ResponseWriter, r *http.Request) {
	var req diffRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	left, err := graph.FromQueryGraph(&req.Left, nil)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("left: %w", err))
		return
	}
	right, err := graph.FromQueryGraph(&req.Right, nil, graph.MatchIDs(left))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("right: %w", err))
		return
	}
	d, err := diff.Repositories(left, right)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diffResponse{Empty: d.Empty(), Summary: d.Summarize(), Diff: d})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.store.CreateSession(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("session created", "session", sess.ID, "name", sess.Name)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.store.DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.forgetSession(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.sessionHistory(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	repo, err := graph.FromQueryGraph(&req.Graph, nil, graph.MatchIDs(h.Baseline()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Editing {
		repo.BeginEditing()
	}

	e, err := h.TryAddEntry(r.Context(), repo)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if e == nil {
		writeJSON(w, http.StatusOK, entryResponse{Admitted: false})
		return
	}
	writeJSON(w, http.StatusCreated, entryResponse{Admitted: true, Entry: newEntryView(e, false)})
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	h, err := s.sessionHistory(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries := h.Entries()
	out := make([]*entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, newEntryView(e, false))
	}
	writeJSON(w, http.StatusOK, out)
}

// entryFromPath resolves the {sessionID}/{seq} path parameters.
func (s *Server) entryFromPath(r *http.Request) (*history.History, *history.Entry, error) {
	h, err := s.sessionHistory(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		return nil, nil, err
	}
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil {
		return nil, nil, &badRequestError{err: fmt.Errorf("seq: %w", err)}
	}
	e := h.BySeq(seq)
	if e == nil {
		return nil, nil, fmt.Errorf("entry %d: %w", seq, store.ErrEntryNotFound)
	}
	return h, e, nil
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	_, e, err := s.entryFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryView(e, true))
}

func (s *Server) similarEntries(w http.ResponseWriter, r *http.Request) {
	h, e, err := s.entryFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	k, err := queryInt(r, "k", defaultSimilar)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchViews(h.SimilarTo(e, k)))
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	h, err := s.sessionHistory(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	text := r.URL.Query().Get("q")
	if text == "" {
		s.writeError(w, r, validation.Problemf("q is required"))
		return
	}
	k, err := queryInt(r, "k", defaultSimilar)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.embedder == nil {
		s.writeError(w, r, validation.Problemf("similarity search needs an embedding provider"))
		return
	}
	matches, err := h.Search(r.Context(), text, k)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchViews(matches))
}

func matchViews(matches []history.Match) []matchView {
	out := make([]matchView, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchView{Score: m.Score, Entry: newEntryView(m.Entry, false)})
	}
	return out
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, validation.Problemf("%s must be a non-negative integer", name)
	}
	return n, nil
}
