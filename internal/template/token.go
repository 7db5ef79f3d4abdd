package template

import "strings"

// tagKind classifies a {{...}} marker found in a string leaf.
type tagKind int

const (
	tagVar tagKind = iota
	tagIfOpen
	tagEachOpen
	tagIfClose
	tagEachClose
	tagUnknown
)

// tag is a single marker with its position in the source string. start is the
// index of the opening delimiter, end the index just past the closing one.
type tag struct {
	kind  tagKind
	arg   string
	start int
	end   int
}

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// scanTags tokenizes a string leaf into markers. Text outside markers is not
// materialized; callers slice the source between tag positions. Text with an
// unterminated opening delimiter is treated as literal.
func scanTags(s string) []tag {
	var tags []tag

	pos := 0
	for {
		open := strings.Index(s[pos:], openDelim)
		if open < 0 {
			break
		}
		open += pos

		close := strings.Index(s[open+len(openDelim):], closeDelim)
		if close < 0 {
			break
		}
		close += open + len(openDelim)

		inner := strings.TrimSpace(s[open+len(openDelim) : close])
		tags = append(tags, tag{
			kind:  classify(inner),
			arg:   tagArg(inner),
			start: open,
			end:   close + len(closeDelim),
		})

		pos = close + len(closeDelim)
	}

	return tags
}

func classify(inner string) tagKind {
	switch {
	case strings.HasPrefix(inner, "#if"):
		return tagIfOpen
	case strings.HasPrefix(inner, "#each"):
		return tagEachOpen
	case inner == "/if":
		return tagIfClose
	case inner == "/each":
		return tagEachClose
	case strings.HasPrefix(inner, "#") || strings.HasPrefix(inner, "/"):
		return tagUnknown
	default:
		return tagVar
	}
}

func tagArg(inner string) string {
	switch {
	case strings.HasPrefix(inner, "#if"):
		return strings.TrimSpace(strings.TrimPrefix(inner, "#if"))
	case strings.HasPrefix(inner, "#each"):
		return strings.TrimSpace(strings.TrimPrefix(inner, "#each"))
	case strings.HasPrefix(inner, "#") || strings.HasPrefix(inner, "/"):
		return ""
	default:
		return inner
	}
}

// isPath reports whether s looks like a dotted-path variable reference. Paths
// with embedded whitespace or delimiter fragments are not references.
func isPath(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, " \t\n{}")
}
