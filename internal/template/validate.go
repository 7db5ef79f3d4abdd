package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/casefolio/casefolio/internal/document"
)

// maxVariableOccurrences is the per-variable occurrence cap used as a guard
// against runaway, circular-looking templates.
const maxVariableOccurrences = 10

// Result is the outcome of advisory template validation.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks a template document for structural problems: a missing
// document, a missing title field, or a variable repeated suspiciously often.
// Validation is advisory; callers may still process an invalid template.
func Validate(doc document.Map) Result {
	var result Result

	if doc == nil {
		result.Errors = append(result.Errors, "template must be a document map")
		return result
	}

	if title, ok := doc["title"].(string); !ok || title == "" {
		result.Errors = append(result.Errors, "missing required field: title")
	}

	serialized, err := json.Marshal(doc)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("template is not serializable: %v", err))
		return result
	}

	for _, def := range ExtractVariables(doc) {
		count := strings.Count(string(serialized), openDelim+def.Name+closeDelim)
		if count > maxVariableOccurrences {
			result.Errors = append(result.Errors,
				fmt.Sprintf("variable %q appears %d times, exceeding the limit of %d",
					def.Name, count, maxVariableOccurrences))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}
