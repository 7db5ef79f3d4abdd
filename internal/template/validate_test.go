package template

import (
	"strings"
	"testing"

	"github.com/casefolio/casefolio/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedTemplate(t *testing.T) {
	result := Validate(document.Map{
		"title": "Case study template",
		"sections": document.Map{
			"hero": document.Map{"heading": "{{client}} launch"},
		},
	})

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateNilDocument(t *testing.T) {
	result := Validate(nil)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "document map")
}

func TestValidateMissingTitle(t *testing.T) {
	result := Validate(document.Map{"description": "no title"})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "title")

	// Empty title counts as missing.
	result = Validate(document.Map{"title": ""})
	assert.False(t, result.Valid)
}

func TestValidateVariableOccurrenceGuard(t *testing.T) {
	repeated := strings.Repeat("{{loop}} ", maxVariableOccurrences+1)
	result := Validate(document.Map{"title": "t", "body": repeated})

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "loop")

	// At the threshold is still fine.
	atLimit := strings.Repeat("{{ok}} ", maxVariableOccurrences)
	result = Validate(document.Map{"title": "t", "body": atLimit})
	assert.True(t, result.Valid)
}

func TestValidateDoesNotBlockProcessing(t *testing.T) {
	doc := document.Map{"description": "{{x}}"}
	require.False(t, Validate(doc).Valid)

	out, err := NewProcessor().Process(doc, document.Map{"x": "value"})
	require.NoError(t, err)
	assert.Equal(t, "value", out["description"])
}
