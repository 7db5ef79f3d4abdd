// Package conflict implements field-level conflict detection and resolution
// for concurrently edited case-study documents.
//
// When a save is rejected because the stored document changed since it was
// read, the caller holds two diverged copies: its own local edit and the
// current server document. Detect itemizes the watched fields on which they
// differ; Resolve produces a single document under one of four strategies.
package conflict

import (
	"time"

	"github.com/casefolio/casefolio/internal/document"
	"github.com/casefolio/casefolio/internal/errs"
)

// watchedFields is the fixed list of top-level fields compared for
// conflicts, in report order. Differences nested inside sections are not
// itemized individually; sections conflicts as a whole field.
var watchedFields = []string{
	"title",
	"description",
	"category",
	"achievement",
	"rating",
	"sections",
}

// Timestamp field names inside a document.
const (
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
)

// Conflict records a watched field whose local and server values diverged.
type Conflict struct {
	Field       string `json:"field"`
	LocalValue  any    `json:"localValue"`
	ServerValue any    `json:"serverValue"`
}

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	// StrategyServer discards the local edit and keeps the server document.
	StrategyServer Strategy = "server"
	// StrategyLocal keeps the local edit wholesale, stamped as a fresh
	// modification so optimistic-lock checks see it as newest.
	StrategyLocal Strategy = "local"
	// StrategyMerge overlays local fields onto the server document with a
	// one-level-deep section merge.
	StrategyMerge Strategy = "merge"
	// StrategyCancel aborts the save; nothing is persisted.
	StrategyCancel Strategy = "cancel"
)

// Outcome tags the result of a resolution.
type Outcome string

const (
	OutcomeServer    Outcome = "server"
	OutcomeLocal     Outcome = "local"
	OutcomeMerge     Outcome = "merge"
	OutcomeCancelled Outcome = "cancelled"
)

// Resolution is the tagged result of Resolve. Document is nil exactly when
// the outcome is OutcomeCancelled; a cancelled resolution must never be
// persisted.
type Resolution struct {
	Outcome  Outcome      `json:"outcome"`
	Document document.Map `json:"document,omitempty"`
}

// Resolver detects and resolves concurrent-edit conflicts. The clock is
// injectable so resolution timestamps are deterministic under test.
type Resolver struct {
	now func() time.Time
}

// NewResolver creates a resolver using the wall clock.
func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// NewResolverWithClock creates a resolver with a caller-supplied clock.
func NewResolverWithClock(now func() time.Time) *Resolver {
	return &Resolver{now: now}
}

// Detect compares the watched fields of two documents and returns one record
// per field whose values differ structurally. Fields absent (or nil) on both
// sides never conflict.
func (r *Resolver) Detect(local, server document.Map) []Conflict {
	var conflicts []Conflict

	for _, field := range watchedFields {
		localValue := local[field]
		serverValue := server[field]

		if document.DeepEqual(localValue, serverValue) {
			continue
		}

		conflicts = append(conflicts, Conflict{
			Field:       field,
			LocalValue:  localValue,
			ServerValue: serverValue,
		})
	}

	return conflicts
}

// Resolve produces a single document from the diverged pair under the given
// strategy. Inputs are never mutated. An unrecognized strategy is a
// programming error and fails fast.
func (r *Resolver) Resolve(local, server document.Map, strategy Strategy) (Resolution, error) {
	switch strategy {
	case StrategyServer:
		return Resolution{
			Outcome:  OutcomeServer,
			Document: document.ShallowCopy(server),
		}, nil

	case StrategyLocal:
		out := document.ShallowCopy(local)
		out[fieldUpdatedAt] = r.timestamp()
		return Resolution{Outcome: OutcomeLocal, Document: out}, nil

	case StrategyMerge:
		return Resolution{
			Outcome:  OutcomeMerge,
			Document: r.merge(local, server),
		}, nil

	case StrategyCancel:
		return Resolution{Outcome: OutcomeCancelled}, nil

	default:
		return Resolution{}, errs.NewValidationError("unknown_strategy",
			"unknown conflict resolution strategy: "+string(strategy))
	}
}

// merge starts from the server document, overlays every local field, then
// repairs the parts that must not follow that rule: creation stays the
// server's, the update stamp is always fresh, and sections merge one level
// deep so server-only section keys survive.
func (r *Resolver) merge(local, server document.Map) document.Map {
	out := document.ShallowCopy(server)
	for k, v := range local {
		out[k] = v
	}

	if created, ok := server[fieldCreatedAt]; ok {
		out[fieldCreatedAt] = created
	} else {
		delete(out, fieldCreatedAt)
	}
	out[fieldUpdatedAt] = r.timestamp()

	out["sections"] = r.mergeSections(local, server)
	if out["sections"] == nil {
		delete(out, "sections")
	}

	return out
}

// mergeSections takes the server's sections as the base and overlays each
// non-nil local section. When both sides hold a map for the same key the
// local fields win one level deep; keys present only in the server section
// remain.
func (r *Resolver) mergeSections(local, server document.Map) any {
	serverSections, _ := server["sections"].(map[string]any)
	localSections, _ := local["sections"].(map[string]any)

	if serverSections == nil && localSections == nil {
		return nil
	}

	out := make(map[string]any, len(serverSections)+len(localSections))
	for k, v := range serverSections {
		out[k] = document.DeepCopy(v)
	}

	for key, localValue := range localSections {
		if localValue == nil {
			continue
		}

		localMap, localIsMap := localValue.(map[string]any)
		baseMap, baseIsMap := out[key].(map[string]any)
		if !localIsMap || !baseIsMap {
			out[key] = document.DeepCopy(localValue)
			continue
		}

		for k, v := range localMap {
			baseMap[k] = document.DeepCopy(v)
		}
	}

	return out
}

func (r *Resolver) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

// WatchedFields returns the fields compared by Detect, in report order.
func WatchedFields() []string {
	out := make([]string, len(watchedFields))
	copy(out, watchedFields)
	return out
}
