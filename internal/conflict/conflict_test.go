package conflict

import (
	"testing"
	"time"

	"github.com/casefolio/casefolio/internal/document"
	"github.com/casefolio/casefolio/internal/errs"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

func testResolver() *Resolver {
	return NewResolverWithClock(func() time.Time { return fixedTime })
}

func TestDetectEqualDocumentsNoConflicts(t *testing.T) {
	doc := document.Map{
		"title":    "Launch",
		"rating":   4.5,
		"sections": document.Map{"hero": document.Map{"heading": "Hi"}},
	}

	assert.Empty(t, testResolver().Detect(doc, doc))
}

func TestDetectWatchedFieldDifferences(t *testing.T) {
	local := document.Map{
		"title":       "Local Title",
		"description": "same",
		"category":    "design",
	}
	server := document.Map{
		"title":       "Server Title",
		"description": "same",
		"rating":      5,
	}

	conflicts := testResolver().Detect(local, server)

	require.Len(t, conflicts, 3)
	// Fixed field order: title, then category, then rating.
	assert.Equal(t, "title", conflicts[0].Field)
	assert.Equal(t, "Local Title", conflicts[0].LocalValue)
	assert.Equal(t, "Server Title", conflicts[0].ServerValue)
	assert.Equal(t, "category", conflicts[1].Field)
	assert.Equal(t, "rating", conflicts[2].Field)
}

func TestDetectIgnoresUnwatchedFields(t *testing.T) {
	local := document.Map{"title": "same", "updatedAt": "2026-01-01T00:00:00Z", "slug": "a"}
	server := document.Map{"title": "same", "updatedAt": "2026-02-01T00:00:00Z", "slug": "b"}

	assert.Empty(t, testResolver().Detect(local, server))
}

func TestDetectNestedSectionChangeFlagsWholeField(t *testing.T) {
	local := document.Map{"sections": document.Map{"hero": document.Map{"heading": "A"}}}
	server := document.Map{"sections": document.Map{"hero": document.Map{"heading": "B"}}}

	conflicts := testResolver().Detect(local, server)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "sections", conflicts[0].Field)
}

func TestDetectOneSidedNil(t *testing.T) {
	local := document.Map{"title": "set"}
	server := document.Map{}

	conflicts := testResolver().Detect(local, server)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "title", conflicts[0].Field)

	// Both absent: no conflict.
	assert.Empty(t, testResolver().Detect(document.Map{}, document.Map{}))
}

func TestDetectEquivalentNumbersDoNotConflict(t *testing.T) {
	// A document round-tripped through JSON carries float64 where the local
	// copy may carry int; structural equality must bridge that.
	local := document.Map{"rating": 5}
	server := document.Map{"rating": 5.0}

	assert.Empty(t, testResolver().Detect(local, server))
}

func TestResolveServer(t *testing.T) {
	local := document.Map{"title": "local"}
	server := document.Map{"title": "server", "updatedAt": "2026-01-01T00:00:00Z"}

	res, err := testResolver().Resolve(local, server, StrategyServer)
	require.NoError(t, err)

	assert.Equal(t, OutcomeServer, res.Outcome)
	if diff := cmp.Diff(server, res.Document); diff != "" {
		t.Errorf("server resolution altered document (-want +got):\n%s", diff)
	}
}

func TestResolveLocalRefreshesTimestamp(t *testing.T) {
	local := document.Map{"title": "local", "updatedAt": "2026-01-01T00:00:00Z"}
	server := document.Map{"title": "server", "updatedAt": "2026-02-01T00:00:00Z"}

	res, err := testResolver().Resolve(local, server, StrategyLocal)
	require.NoError(t, err)

	assert.Equal(t, OutcomeLocal, res.Outcome)
	assert.Equal(t, "local", res.Document["title"])
	assert.Equal(t, "2026-08-23T12:00:00Z", res.Document["updatedAt"])

	// Input untouched.
	assert.Equal(t, "2026-01-01T00:00:00Z", local["updatedAt"])
}

func TestResolveMergeLocalFieldsWin(t *testing.T) {
	local := document.Map{
		"title":    "Local Title",
		"category": "design",
	}
	server := document.Map{
		"title":       "Server Title",
		"description": "server only",
		"createdAt":   "2025-01-01T00:00:00Z",
		"updatedAt":   "2026-02-01T00:00:00Z",
	}

	res, err := testResolver().Resolve(local, server, StrategyMerge)
	require.NoError(t, err)

	assert.Equal(t, OutcomeMerge, res.Outcome)
	assert.Equal(t, "Local Title", res.Document["title"])
	assert.Equal(t, "design", res.Document["category"])
	assert.Equal(t, "server only", res.Document["description"])
}

func TestResolveMergeTimestamps(t *testing.T) {
	local := document.Map{
		"createdAt": "2025-06-01T00:00:00Z",
		"updatedAt": "2026-03-01T00:00:00Z",
	}
	server := document.Map{
		"createdAt": "2025-01-01T00:00:00Z",
		"updatedAt": "2026-02-01T00:00:00Z",
	}

	res, err := testResolver().Resolve(local, server, StrategyMerge)
	require.NoError(t, err)

	// Creation pinned to the server's, update always freshly stamped.
	assert.Equal(t, "2025-01-01T00:00:00Z", res.Document["createdAt"])
	assert.Equal(t, "2026-08-23T12:00:00Z", res.Document["updatedAt"])
}

func TestResolveMergeNeverDropsServerOnlySectionKeys(t *testing.T) {
	local := document.Map{"sections": document.Map{"a": 9}}
	server := document.Map{"sections": document.Map{"a": 1, "b": 2}}

	res, err := testResolver().Resolve(local, server, StrategyMerge)
	require.NoError(t, err)

	sections := res.Document["sections"].(map[string]any)
	assert.True(t, document.DeepEqual(document.Map{"a": 9, "b": 2}, sections))
}

func TestResolveMergeSectionsOneLevelDeep(t *testing.T) {
	local := document.Map{
		"sections": document.Map{
			"hero": document.Map{"heading": "Local Heading"},
		},
	}
	server := document.Map{
		"sections": document.Map{
			"hero":    document.Map{"heading": "Server Heading", "image": "hero.png"},
			"results": document.Map{"metric": "42%"},
		},
	}

	res, err := testResolver().Resolve(local, server, StrategyMerge)
	require.NoError(t, err)

	sections := res.Document["sections"].(map[string]any)
	hero := sections["hero"].(map[string]any)

	// Inner fields favor local, server-only inner fields remain.
	assert.Equal(t, "Local Heading", hero["heading"])
	assert.Equal(t, "hero.png", hero["image"])
	assert.Contains(t, sections, "results")
}

func TestResolveMergeSkipsNilLocalSections(t *testing.T) {
	local := document.Map{"sections": document.Map{"hero": nil}}
	server := document.Map{"sections": document.Map{"hero": document.Map{"heading": "Keep"}}}

	res, err := testResolver().Resolve(local, server, StrategyMerge)
	require.NoError(t, err)

	hero := res.Document["sections"].(map[string]any)["hero"].(map[string]any)
	assert.Equal(t, "Keep", hero["heading"])
}

func TestResolveCancelProducesNoDocument(t *testing.T) {
	res, err := testResolver().Resolve(document.Map{"title": "l"}, document.Map{"title": "s"}, StrategyCancel)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Nil(t, res.Document)
}

func TestResolveUnknownStrategyFailsFast(t *testing.T) {
	_, err := testResolver().Resolve(document.Map{}, document.Map{}, Strategy("theirs"))

	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeValidation))
}

func TestWatchedFieldsCopy(t *testing.T) {
	fields := WatchedFields()
	require.Equal(t, []string{"title", "description", "category", "achievement", "rating", "sections"}, fields)

	fields[0] = "mutated"
	assert.Equal(t, "title", WatchedFields()[0])
}
