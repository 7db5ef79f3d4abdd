package template

import (
	"github.com/casefolio/casefolio/internal/document"
)

// MergeContent folds template-derived content into existing authored content.
// The asymmetry is deliberate: sections merge key-by-key with incoming
// winning per key, while every other field is taken from incoming only when
// existing has no value for it. Templates fill gaps, never clobber authored
// content.
func MergeContent(existing, incoming document.Map) document.Map {
	out := document.CopyMap(existing)

	for key, value := range incoming {
		if key == "sections" {
			continue
		}
		if current, present := out[key]; !present || isEmpty(current) {
			out[key] = document.DeepCopy(value)
		}
	}

	if incomingSections, ok := incoming["sections"].(map[string]any); ok {
		sections, _ := out["sections"].(map[string]any)
		if sections == nil {
			sections = document.Map{}
		}
		for key, value := range incomingSections {
			sections[key] = document.DeepCopy(value)
		}
		out["sections"] = sections
	}

	return out
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
