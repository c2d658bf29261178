package sparql

import (
	"fmt"
	"strings"

	"github.com/roach88/querygraph/internal/graph"
)

// QueryReadable flattens r and paraphrases it.
func QueryReadable(r *graph.Repository) (string, error) {
	qs, err := r.QuerySet()
	if err != nil {
		return "", fmt.Errorf("flatten: %w", err)
	}
	return Readable(qs)
}

// Readable paraphrases a QuerySet in plain words, one line per triple, per
// node and per constraint, in the same order the compiler emits them.
// Output is deterministic for identical input.
func Readable(qs *graph.QuerySet) (string, error) {
	if qs == nil || len(qs.Nodes) == 0 {
		return "", &graph.GraphError{Code: graph.ErrCodeEmptyGraph, Message: "cannot paraphrase a graph without nodes"}
	}

	var lines []string
	names := make(map[string]string, len(qs.Nodes))
	for _, n := range qs.Nodes {
		names[n.OutputVar()] = n.Name()
	}

	for _, t := range qs.Triples {
		lines = append(lines, fmt.Sprintf("%s %s %s", names[t.From], predicateWords(t.Link), names[t.To]))
	}
	for _, n := range qs.Nodes {
		if n.SubjectTypeID == "" {
			lines = append(lines, n.Name()+" is anything")
			continue
		}
		lines = append(lines, fmt.Sprintf("%s is a %s", n.Name(), graph.ReadableName(n.SubjectTypeID, "")))
	}
	for _, sq := range qs.Filters {
		link := sq.Link()
		if link == nil {
			return "", graph.NewMissingLinkError(sq.SubQueryID(), "")
		}
		owner, ok := qs.Node(link.FromInternalID)
		if !ok {
			return "", graph.NewDanglingLinkError(link.LinkID, link.FromInternalID)
		}
		lines = append(lines, sq.Paraphrase(owner.Name()))
	}
	return strings.Join(lines, "\n"), nil
}

var quantifierWords = map[graph.QuantifierMode]string{
	graph.OneOrMore:  "one or more times",
	graph.ZeroOrMore: "zero or more times",
	graph.ZeroOrOne:  "optionally",
}

func predicateWords(l *graph.Link) string {
	words := graph.ReadableName(l.PropertyID, l.Label)
	if l.AllowArbitraryProperty {
		words = "is linked by any property"
	}
	if q := l.Quantifier; q != nil {
		switch q.Mode {
		case graph.Exactly:
			words += fmt.Sprintf(" exactly %d times", q.Min)
		case graph.Between:
			words += fmt.Sprintf(" %d to %d times", q.Min, q.Max)
		default:
			words += " " + quantifierWords[q.Mode]
		}
	}
	if l.AllowArbitraryProperty {
		words += " to"
	}
	return words
}
