// Package loader reads graph payloads from JSON, YAML or CUE files.
//
// Every format is decoded into graph.QueryGraph, validated, and then built
// into a Repository. CUE files are evaluated first, so a payload may use
// definitions, defaults and references; the evaluated value must be
// concrete.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/ident"
)

// Error codes for LoadError.
const (
	ErrCodeNotFound     = "E_NOT_FOUND"
	ErrCodeFormat       = "E_UNKNOWN_FORMAT"
	ErrCodeDecodeFailed = "E_DECODE_FAILED"
	ErrCodeBuildFailed  = "E_CUE_BUILD_FAILED"
)

// Format is a payload encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// GraphPath is the CUE field holding the payload. When absent the whole
// file is the payload.
const GraphPath = "graph"

// LoadError represents an error that occurred while reading a payload.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsLoadError reports whether err is (or wraps) a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported payload extension %q", filepath.Ext(path))}
}

// ReadFile decodes the payload at path without building it.
func ReadFile(path string) (*graph.QueryGraph, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("payload not found: %s", path)}
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return Decode(data, format, path)
}

// LoadFile reads, validates and builds the payload at path. A nil alloc
// gets a fresh allocator.
func LoadFile(path string, alloc *ident.Allocator, opts ...graph.LoadOption) (*graph.Repository, error) {
	g, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return graph.FromQueryGraph(g, alloc, opts...)
}

// Decode parses data in the given format. name is used in CUE positions.
// Unknown fields are rejected in every format.
func Decode(data []byte, format Format, name string) (*graph.QueryGraph, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(data)
	case FormatYAML:
		return decodeYAML(data)
	case FormatCUE:
		return decodeCUE(data, name)
	}
	return nil, &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported format %q", format)}
}

func decodeJSON(data []byte) (*graph.QueryGraph, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var g graph.QueryGraph
	if err := dec.Decode(&g); err != nil {
		return nil, &LoadError{Code: ErrCodeDecodeFailed, Message: err.Error()}
	}
	return &g, nil
}

func decodeYAML(data []byte) (*graph.QueryGraph, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var g graph.QueryGraph
	if err := dec.Decode(&g); err != nil {
		return nil, &LoadError{Code: ErrCodeDecodeFailed, Message: err.Error()}
	}
	return &g, nil
}

// decodeCUE evaluates the file and re-decodes its JSON form, so numbers
// and field names follow the JSON rules.
func decodeCUE(data []byte, name string) (*graph.QueryGraph, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err), Pos: v.Pos()}
	}
	if sub := v.LookupPath(cue.ParsePath(GraphPath)); sub.Exists() {
		v = sub
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("payload is not concrete: %v", err), Pos: v.Pos()}
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDecodeFailed, Message: err.Error(), Pos: v.Pos()}
	}
	return decodeJSON(raw)
}
