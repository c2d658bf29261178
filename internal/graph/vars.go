package graph

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnumRun = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SanitizeVar maps an arbitrary id onto the query-variable alphabet.
// Accents are stripped first (é -> e), then every run of characters outside
// [A-Za-z0-9] collapses to a single "_".
func SanitizeVar(id string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, id)
	if err != nil {
		stripped = id
	}
	return nonAlnumRun.ReplaceAllString(stripped, "_")
}

// Term renders an id as a query term.
// Full IRIs are wrapped in angle brackets; prefixed names, variables, blank
// nodes and already-bracketed IRIs pass through unchanged.
func Term(id string) string {
	switch {
	case id == "":
		return ""
	case strings.HasPrefix(id, "<"), strings.HasPrefix(id, "?"), strings.HasPrefix(id, "_:"):
		return id
	case strings.Contains(id, "://"), strings.HasPrefix(id, "urn:"):
		return "<" + id + ">"
	}
	return id
}

// ReadableName returns a short human name for an IRI or prefixed name.
// An explicit label always wins.
func ReadableName(id, label string) string {
	if label != "" {
		return label
	}
	if id == "" {
		return "-"
	}
	trimmed := strings.Trim(id, "<>")
	if u, err := url.Parse(trimmed); err == nil && u.Scheme != "" && u.Host != "" {
		name := trimmed
		if u.Fragment != "" {
			name = u.Fragment
		} else if segs := strings.Split(strings.TrimSuffix(u.Path, "/"), "/"); len(segs) > 0 && segs[len(segs)-1] != "" {
			name = segs[len(segs)-1]
		}
		return strings.ReplaceAll(name, "_", " ")
	}
	if prefix, local, ok := strings.Cut(trimmed, ":"); ok && prefix != "" && local != "" {
		return strings.ReplaceAll(local, "_", " ")
	}
	return trimmed
}
