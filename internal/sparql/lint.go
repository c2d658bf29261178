package sparql

import (
	"fmt"

	"github.com/roach88/querygraph/internal/graph"
)

// LintResult lists constructs that compile but probably do not mean what
// the user intended, or that some endpoints reject.
type LintResult struct {
	// Clean is true when there are no warnings.
	Clean bool `json:"clean"`

	// Warnings in graph order.
	Warnings []string `json:"warnings"`
}

// Lint inspects a flattened graph. It never fails; structural errors are
// the compiler's job.
//
// Checks:
//  1. Nodes without a subject type match anything
//  2. Quantifiers on arbitrary-property links need a SPARQL 1.1 path engine
//     that accepts variables in paths (most do not)
//  3. Subject constraints without an instance constrain nothing
//  4. Empty string constraints match every value (CONTAINS "")
//  5. Several constraints on the same link are ANDed together
func Lint(qs *graph.QuerySet) LintResult {
	l := &linter{warnings: []string{}}
	if qs != nil {
		l.lint(qs)
	}
	return LintResult{Clean: len(l.warnings) == 0, Warnings: l.warnings}
}

type linter struct {
	warnings []string
}

func (l *linter) addWarning(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *linter) lint(qs *graph.QuerySet) {
	for _, n := range qs.Nodes {
		if n.SubjectTypeID == "" {
			l.addWarning("node %s has no subject type and matches any resource", n.InternalID)
		}
	}
	for _, t := range qs.Triples {
		if t.Link != nil && t.Link.AllowArbitraryProperty && t.Link.Quantifier != nil {
			l.addWarning("link %d quantifies a variable predicate; most endpoints reject variables in property paths", t.Link.LinkID)
		}
	}

	perLink := map[int64]int{}
	for _, sq := range qs.Filters {
		if link := sq.Link(); link != nil {
			perLink[link.LinkID]++
			if perLink[link.LinkID] == 2 {
				l.addWarning("link %d carries several constraints; they are all required to hold", link.LinkID)
			}
		}
		switch c := sq.(type) {
		case *graph.SubjectEqualityConstraint:
			if c.Instance == nil {
				l.addWarning("subject constraint %d has no instance and is ignored", c.ID)
			}
		case *graph.StringConstraint:
			if c.Value == "" {
				l.addWarning("string constraint %d has an empty value and matches everything", c.ID)
			}
		}
	}
}
