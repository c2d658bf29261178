// Package sparql compiles flattened query graphs into SPARQL SELECT queries.
//
// Compilation is a pure string build over a graph.QuerySet: no I/O, no
// network. Every query carries an ORDER BY over the full output-variable
// list so pagination through LIMIT/OFFSET is reproducible.
package sparql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/querygraph/internal/graph"
	"github.com/roach88/querygraph/internal/metrics"
)

// Label predicates bound optionally for every node. Both bind the same
// variable; when both match the engine decides which label wins.
const (
	LabelPredicate = "rdfs:label"
	NamePredicate  = "foaf:name"
)

// Options controls projection and pagination.
type Options struct {
	// Limit caps the result count; 0 emits no LIMIT.
	Limit int
	// Offset skips results; 0 emits no OFFSET.
	Offset int
	// Distinct adds the DISTINCT modifier.
	Distinct bool
}

// GenerateQuery flattens r and compiles it.
func GenerateQuery(r *graph.Repository, limit, skip int, distinct bool) (string, error) {
	qs, err := r.QuerySet()
	if err != nil {
		metrics.CompilesTotal.WithLabelValues(metrics.Outcome(err)).Inc()
		return "", fmt.Errorf("flatten: %w", err)
	}
	return Compile(qs, Options{Limit: limit, Offset: skip, Distinct: distinct})
}

// Compile turns a QuerySet into query text.
// A structural violation returns an error and never a partial query.
func Compile(qs *graph.QuerySet, opts Options) (string, error) {
	start := time.Now()
	query, err := compile(qs, opts)
	metrics.CompileDuration.Observe(time.Since(start).Seconds())
	metrics.CompilesTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	return query, err
}

func compile(qs *graph.QuerySet, opts Options) (string, error) {
	if qs == nil || len(qs.Nodes) == 0 {
		return "", &graph.GraphError{Code: graph.ErrCodeEmptyGraph, Message: "cannot compile a graph without nodes"}
	}

	var b strings.Builder

	// Projection.
	b.WriteString("SELECT ")
	if opts.Distinct {
		b.WriteString("DISTINCT ")
	}
	projection := append(qs.NodeVars(), qs.OutputVars...)
	b.WriteString(strings.Join(projection, " "))
	b.WriteString(" WHERE {")

	for _, t := range qs.Triples {
		writeLine(&b, t.From+" "+t.Predicate+" "+t.To+".")
	}

	for _, n := range qs.Nodes {
		v := n.OutputVar()
		if typ := graph.Term(n.SubjectTypeID); typ != "" {
			writeLine(&b, v+" a "+typ+".")
		}
		writeLine(&b, "OPTIONAL {"+v+" "+LabelPredicate+" "+n.LabelVar()+".}")
		writeLine(&b, "OPTIONAL {"+v+" "+NamePredicate+" "+n.LabelVar()+".}")
	}

	for _, sq := range qs.Filters {
		if err := writeFilter(&b, qs, sq); err != nil {
			return "", err
		}
	}

	b.WriteString("\n}")

	// MANDATORY: ORDER BY on every query for deterministic pagination.
	b.WriteString("\nORDER BY ")
	b.WriteString(strings.Join(qs.OutputVars, " "))
	if opts.Limit > 0 {
		b.WriteString("\nLIMIT " + strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString("\nOFFSET " + strconv.Itoa(opts.Offset))
	}
	return b.String(), nil
}

func writeLine(b *strings.Builder, line string) {
	b.WriteString("\n  ")
	b.WriteString(line)
}

func writeFilter(b *strings.Builder, qs *graph.QuerySet, sq graph.SubQuery) error {
	link := sq.Link()
	if link == nil {
		return graph.NewMissingLinkError(sq.SubQueryID(), "")
	}
	from, ok := qs.Node(link.FromInternalID)
	if !ok {
		return graph.NewDanglingLinkError(link.LinkID, link.FromInternalID)
	}

	if subj, ok := sq.(*graph.SubjectEqualityConstraint); ok {
		if subj.Instance != nil {
			writeLine(b, "FILTER("+from.OutputVar()+"="+graph.Term(subj.Instance.ID)+")")
		}
		return nil
	}

	propVar := graph.PropertyVar(sq)
	writeLine(b, from.OutputVar()+" "+graph.Predicate(sq)+" "+propVar+".")

	expr := sq.Expression(propVar)
	if _, projection := sq.(*graph.RawPropertyProjection); projection || expr == "" {
		return nil
	}
	writeLine(b, "FILTER("+expr+")")
	return nil
}
