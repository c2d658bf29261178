package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/store"
	"github.com/roach88/querygraph/internal/validation"
)

// Error codes carried in error responses.
const (
	codeBadRequest = "BAD_REQUEST"
	codeValidation = "VALIDATION_FAILED"
	codeNotFound   = "NOT_FOUND"
	codeConflict   = "CONFLICT"
	codeInternal   = "INTERNAL"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

type errorBody struct {
	Status string      `json:"status"`
	Error  errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return "invalid request body: " + e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &badRequestError{err: err}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code:
// bad bodies and validation failures 400, unknown sessions or entries 404,
// history written concurrently elsewhere 409, structural graph errors 422,
// anything else 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, codeInternal
	var ge *graph.GraphError
	var bre *badRequestError
	switch {
	case errors.As(err, &bre):
		status, code = http.StatusBadRequest, codeBadRequest
	case validation.IsValidation(err):
		status, code = http.StatusBadRequest, codeValidation
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrEntryNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, store.ErrSeqConflict):
		status, code = http.StatusConflict, codeConflict
	case errors.As(err, &ge):
		status, code = http.StatusUnprocessableEntity, string(ge.Code)
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{
		Status: "error",
		Error:  errorDetail{Code: code, Message: err.Error()},
	})
}
