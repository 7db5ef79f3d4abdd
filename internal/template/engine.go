// Package template implements the content template processor: variable
// substitution, conditional blocks and loop expansion over nested documents,
// plus variable extraction, advisory validation and content merging.
//
// Markers live inside string leaves of a document:
//
//	{{path}}                     variable substitution (dotted paths)
//	{{#if expr}}...{{/if}}       conditional block
//	{{#each path}}...{{/each}}   loop expansion with item/index bindings
//
// Markers whose variable cannot be resolved stay literal in the output so
// authors can see what is missing; malformed conditional expressions resolve
// to falsy instead of failing a render.
package template

import (
	"strings"

	"github.com/casefolio/casefolio/internal/document"
	"github.com/casefolio/casefolio/internal/errs"
)

// Processor applies variable substitution to template documents. It is
// stateless and safe for concurrent use.
type Processor struct{}

// NewProcessor creates a template processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process returns a new document with all markers in template resolved
// against vars. The input is never mutated. Missing variables are left as
// literal markers; the only failure mode is a template that is not shaped
// like a document.
func (p *Processor) Process(template document.Map, vars document.Map) (document.Map, error) {
	if template == nil {
		return nil, errs.NewValidationError("invalid_template", "template must be a document map")
	}
	if err := document.Validate(template); err != nil {
		return nil, err
	}

	out := make(document.Map, len(template))
	for k, v := range template {
		out[k] = p.processValue(v, vars)
	}

	return out, nil
}

// processValue walks the document tree. Strings are rendered, containers
// mapped recursively, scalars passed through.
func (p *Processor) processValue(v any, vars document.Map) any {
	switch val := v.(type) {
	case string:
		return p.renderString(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = p.processValue(item, vars)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = p.processValue(item, vars)
		}
		return out
	default:
		return val
	}
}

// renderString applies the three passes in order: loop expansion, then
// conditionals, then variable substitution. The ordering matters: loop
// bodies only ever receive variable substitution, while conditionals left
// behind by loop output are still resolved by the second pass.
func (p *Processor) renderString(s string, vars document.Map) string {
	s = p.expandLoops(s, vars)
	s = p.resolveConditionals(s, vars)
	return p.substituteVariables(s, vars)
}

// expandLoops replaces {{#each path}}...{{/each}} blocks. The block body is
// rendered once per element with item and index bound in a child scope, and
// receives variable substitution only. A path that does not resolve to an
// array expands to the empty string. Unmatched open markers stay literal.
func (p *Processor) expandLoops(s string, vars document.Map) string {
	tags := scanTags(s)

	var b strings.Builder
	pos := 0
	for i := 0; i < len(tags); i++ {
		open := tags[i]
		if open.kind != tagEachOpen || open.start < pos {
			continue
		}

		closeIdx := matchingClose(tags, i, tagEachOpen, tagEachClose)
		if closeIdx < 0 {
			continue
		}
		close := tags[closeIdx]

		b.WriteString(s[pos:open.start])
		body := s[open.end:close.start]

		if items, ok := resolveArray(vars, open.arg); ok {
			for idx, item := range items {
				scope := document.ShallowCopy(vars)
				scope["item"] = item
				scope["index"] = idx
				b.WriteString(p.substituteVariables(body, scope))
			}
		}

		pos = close.end
		i = closeIdx
	}

	if pos == 0 {
		return s
	}
	b.WriteString(s[pos:])
	return b.String()
}

// resolveConditionals replaces {{#if expr}}...{{/if}} blocks. Truthy
// expressions keep the body (with nested conditionals resolved recursively);
// falsy or unrecognized expressions drop it.
func (p *Processor) resolveConditionals(s string, vars document.Map) string {
	tags := scanTags(s)

	var b strings.Builder
	pos := 0
	for i := 0; i < len(tags); i++ {
		open := tags[i]
		if open.kind != tagIfOpen || open.start < pos {
			continue
		}

		closeIdx := matchingClose(tags, i, tagIfOpen, tagIfClose)
		if closeIdx < 0 {
			continue
		}
		close := tags[closeIdx]

		b.WriteString(s[pos:open.start])
		if evalCondition(open.arg, vars) {
			body := s[open.end:close.start]
			b.WriteString(p.resolveConditionals(body, vars))
		}

		pos = close.end
		i = closeIdx
	}

	if pos == 0 {
		return s
	}
	b.WriteString(s[pos:])
	return b.String()
}

// substituteVariables replaces {{path}} markers with the formatted variable
// value. Unresolved paths and control markers are left untouched.
func (p *Processor) substituteVariables(s string, vars document.Map) string {
	tags := scanTags(s)

	var b strings.Builder
	pos := 0
	for _, t := range tags {
		if t.kind != tagVar || !isPath(t.arg) {
			continue
		}

		value, ok := document.Lookup(vars, t.arg)
		if !ok {
			continue
		}

		b.WriteString(s[pos:t.start])
		b.WriteString(document.Format(value))
		pos = t.end
	}

	if pos == 0 {
		return s
	}
	b.WriteString(s[pos:])
	return b.String()
}

// matchingClose finds the index of the close tag balancing tags[openIdx],
// tracking nesting of the same block kind. Returns -1 when unbalanced.
func matchingClose(tags []tag, openIdx int, openKind, closeKind tagKind) int {
	depth := 0
	for i := openIdx; i < len(tags); i++ {
		switch tags[i].kind {
		case openKind:
			depth++
		case closeKind:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func resolveArray(vars document.Map, path string) ([]any, bool) {
	value, ok := document.Lookup(vars, path)
	if !ok {
		return nil, false
	}
	items, ok := value.([]any)
	return items, ok
}

// evalCondition evaluates the conditional expression grammar:
//
//	path            truthy check
//	!path           falsy check
//	path === 'lit'  equality against a quoted literal
//	path !== 'lit'  inequality against a quoted literal
//
// Anything else is falsy. A failed render is worse than a dropped block, so
// unrecognized syntax never errors.
func evalCondition(expr string, vars document.Map) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}

	if left, lit, ok := splitComparison(expr, "==="); ok {
		return compareLiteral(vars, left, lit)
	}
	if left, lit, ok := splitComparison(expr, "!=="); ok {
		return !compareLiteral(vars, left, lit)
	}

	if negated := strings.HasPrefix(expr, "!"); negated {
		path := strings.TrimSpace(expr[1:])
		if !isPath(path) {
			return false
		}
		value, _ := document.Lookup(vars, path)
		return !document.Truthy(value)
	}

	if !isPath(expr) {
		return false
	}
	value, ok := document.Lookup(vars, expr)
	if !ok {
		return false
	}
	return document.Truthy(value)
}

// splitComparison splits "left OP 'literal'" around the operator. ok is false
// when the expression does not match the comparison shape.
func splitComparison(expr, op string) (path, literal string, ok bool) {
	idx := strings.Index(expr, op)
	if idx < 0 {
		return "", "", false
	}

	path = strings.TrimSpace(expr[:idx])
	rhs := strings.TrimSpace(expr[idx+len(op):])

	literal, ok = unquote(rhs)
	if !ok || !isPath(path) {
		return "", "", false
	}
	return path, literal, true
}

func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// compareLiteral reports whether the value at path formats to literal. An
// unresolved path never equals a literal.
func compareLiteral(vars document.Map, path, literal string) bool {
	value, ok := document.Lookup(vars, path)
	if !ok {
		return false
	}
	return document.Format(value) == literal
}
