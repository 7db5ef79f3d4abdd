package template

import (
	"strings"
	"unicode"

	"github.com/casefolio/casefolio/internal/document"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Definition describes a variable discovered in (or declared for) a template.
type Definition struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	Description  string `json:"description"`
	Required     bool   `json:"required"`
	DefaultValue string `json:"defaultValue"`
}

// ExtractVariables scans every string leaf of doc for {{name}} markers and
// returns one definition per unique name, in first-seen order. Control
// markers ({{#if}}, {{#each}} and their closers) are ignored.
func ExtractVariables(doc document.Map) []Definition {
	seen := make(map[string]bool)
	var defs []Definition

	walkStrings(doc, func(s string) {
		for _, t := range scanTags(s) {
			if t.kind != tagVar || !isPath(t.arg) || seen[t.arg] {
				continue
			}
			seen[t.arg] = true
			defs = append(defs, Definition{
				Name:  t.arg,
				Label: labelFor(t.arg),
			})
		}
	})

	return defs
}

// walkStrings visits every string leaf of a document value.
func walkStrings(v any, visit func(string)) {
	switch val := v.(type) {
	case string:
		visit(val)
	case []any:
		for _, item := range val {
			walkStrings(item, visit)
		}
	case map[string]any:
		for _, item := range val {
			walkStrings(item, visit)
		}
	}
}

var titleCaser = cases.Title(language.English)

// labelFor synthesizes a human-readable label from a variable name by
// splitting on dots, underscores, dashes and camelCase boundaries, then
// title-casing each word: "user.firstName" becomes "User First Name".
func labelFor(name string) string {
	segments := strings.FieldsFunc(name, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})

	var words []string
	for _, seg := range segments {
		words = append(words, splitCamel(seg)...)
	}
	for i, word := range words {
		words[i] = titleCaser.String(word)
	}
	return strings.Join(words, " ")
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	return append(words, s[start:])
}
