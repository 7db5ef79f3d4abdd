package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/casefolio/casefolio/internal/document"
)

// Repository errors.
var (
	ErrNotFound         = errors.New("case study not found")
	ErrRevisionNotFound = errors.New("revision not found")
	ErrConflict         = errors.New("case study modified since read")
)

// ConflictError carries the current server record alongside the optimistic
// lock failure so the caller can run conflict resolution without a second
// read. It matches ErrConflict under errors.Is.
type ConflictError struct {
	Server *CaseStudy
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("case study %s modified since read", e.Server.ID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// CaseStudy is a stored case-study record. Content mirrors the createdAt and
// updatedAt columns inside the document so the conflict resolver sees the
// same timestamps the optimistic lock checks.
type CaseStudy struct {
	ID        string       `json:"id"`
	Content   document.Map `json:"content"`
	CreatedAt string       `json:"createdAt"`
	UpdatedAt string       `json:"updatedAt"`
}

// Revision is a historical snapshot of a case study, captured from the
// content that an update replaced.
type Revision struct {
	ID          string       `json:"id"`
	CaseStudyID string       `json:"caseStudyId"`
	Revision    int          `json:"revision"`
	Content     document.Map `json:"content"`
	CreatedAt   string       `json:"createdAt"`
}

// CaseStudyRepository handles case-study persistence.
type CaseStudyRepository struct {
	db  *DB
	now func() time.Time
}

// NewCaseStudyRepository creates a repository over db.
func NewCaseStudyRepository(db *DB) *CaseStudyRepository {
	return &CaseStudyRepository{db: db, now: time.Now}
}

func (r *CaseStudyRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

// Create inserts a new case study. The stored content is a copy of doc with
// fresh createdAt/updatedAt stamps; the input is not mutated.
func (r *CaseStudyRepository) Create(ctx context.Context, doc document.Map) (*CaseStudy, error) {
	if err := document.Validate(doc); err != nil {
		return nil, err
	}

	now := r.timestamp()
	record := &CaseStudy{
		ID:        uuid.New().String(),
		Content:   document.CopyMap(doc),
		CreatedAt: now,
		UpdatedAt: now,
	}
	record.Content["createdAt"] = now
	record.Content["updatedAt"] = now

	contentJSON, err := json.Marshal(record.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO case_studies (id, content_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, record.ID, string(contentJSON), record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert case study: %w", err)
	}

	r.db.logger.Info(ctx, "case study created", "id", record.ID)
	return record, nil
}

// Get retrieves a case study by ID.
func (r *CaseStudyRepository) Get(ctx context.Context, id string) (*CaseStudy, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, content_json, created_at, updated_at
		FROM case_studies WHERE id = ?
	`, id)

	return scanCaseStudy(row)
}

// List returns all case studies, most recently updated first.
func (r *CaseStudyRepository) List(ctx context.Context) ([]*CaseStudy, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, content_json, created_at, updated_at
		FROM case_studies
		ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query case studies: %w", err)
	}
	defer rows.Close()

	var records []*CaseStudy
	for rows.Next() {
		record, err := scanCaseStudyFromRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case studies: %w", err)
	}

	return records, nil
}

// Update replaces a case study's content under optimistic concurrency: the
// write only happens when the stored updated_at still equals
// expectedUpdatedAt. A mismatch returns a ConflictError carrying the current
// server record. Every successful update archives the replaced content as a
// new revision.
func (r *CaseStudyRepository) Update(ctx context.Context, id string, doc document.Map, expectedUpdatedAt string) (*CaseStudy, error) {
	if err := document.Validate(doc); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanCaseStudy(tx.QueryRowContext(ctx, `
		SELECT id, content_json, created_at, updated_at
		FROM case_studies WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	if current.UpdatedAt != expectedUpdatedAt {
		return nil, &ConflictError{Server: current}
	}

	if err := r.archiveRevision(ctx, tx, current); err != nil {
		return nil, err
	}

	now := r.timestamp()
	updated := &CaseStudy{
		ID:        id,
		Content:   document.CopyMap(doc),
		CreatedAt: current.CreatedAt,
		UpdatedAt: now,
	}
	updated.Content["createdAt"] = current.CreatedAt
	updated.Content["updatedAt"] = now

	contentJSON, err := json.Marshal(updated.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE case_studies SET content_json = ?, updated_at = ? WHERE id = ?
	`, string(contentJSON), now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update case study: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}

	r.db.logger.Info(ctx, "case study updated", "id", id)
	return updated, nil
}

// archiveRevision stores the record's current content as the next revision.
func (r *CaseStudyRepository) archiveRevision(ctx context.Context, tx *sql.Tx, current *CaseStudy) error {
	contentJSON, err := json.Marshal(current.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal revision content: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (id, case_study_id, revision, content_json, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(revision), 0) + 1 FROM revisions WHERE case_study_id = ?), ?, ?)
	`, uuid.New().String(), current.ID, current.ID, string(contentJSON), r.timestamp())
	if err != nil {
		return fmt.Errorf("failed to archive revision: %w", err)
	}

	return nil
}

// Delete removes a case study and, through the schema's cascade, its
// revision history.
func (r *CaseStudyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM case_studies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete case study: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	r.db.logger.Info(ctx, "case study deleted", "id", id)
	return nil
}

// ListRevisions returns a case study's revision history, oldest first.
func (r *CaseStudyRepository) ListRevisions(ctx context.Context, caseStudyID string) ([]*Revision, error) {
	if _, err := r.Get(ctx, caseStudyID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, case_study_id, revision, content_json, created_at
		FROM revisions
		WHERE case_study_id = ?
		ORDER BY revision
	`, caseStudyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	var revisions []*Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}

	return revisions, nil
}

// GetRevision retrieves one revision of a case study.
func (r *CaseStudyRepository) GetRevision(ctx context.Context, caseStudyID string, revision int) (*Revision, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, case_study_id, revision, content_json, created_at
		FROM revisions
		WHERE case_study_id = ? AND revision = ?
	`, caseStudyID, revision)

	var rev Revision
	var contentJSON string
	err := row.Scan(&rev.ID, &rev.CaseStudyID, &rev.Revision, &contentJSON, &rev.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRevisionNotFound
		}
		return nil, fmt.Errorf("failed to scan revision: %w", err)
	}

	if err := json.Unmarshal([]byte(contentJSON), &rev.Content); err != nil {
		return nil, fmt.Errorf("failed to parse revision content: %w", err)
	}

	return &rev, nil
}

// Restore writes a historical revision's content back as a normal optimistic
// update, so a restore shows up in history like any other edit.
func (r *CaseStudyRepository) Restore(ctx context.Context, caseStudyID string, revision int, expectedUpdatedAt string) (*CaseStudy, error) {
	rev, err := r.GetRevision(ctx, caseStudyID, revision)
	if err != nil {
		return nil, err
	}

	return r.Update(ctx, caseStudyID, rev.Content, expectedUpdatedAt)
}

func scanCaseStudy(row *sql.Row) (*CaseStudy, error) {
	var record CaseStudy
	var contentJSON string

	err := row.Scan(&record.ID, &contentJSON, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan case study: %w", err)
	}

	if err := json.Unmarshal([]byte(contentJSON), &record.Content); err != nil {
		return nil, fmt.Errorf("failed to parse case study content: %w", err)
	}

	return &record, nil
}

func scanCaseStudyFromRows(rows *sql.Rows) (*CaseStudy, error) {
	var record CaseStudy
	var contentJSON string

	if err := rows.Scan(&record.ID, &contentJSON, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan case study: %w", err)
	}

	if err := json.Unmarshal([]byte(contentJSON), &record.Content); err != nil {
		return nil, fmt.Errorf("failed to parse case study content: %w", err)
	}

	return &record, nil
}

func scanRevision(rows *sql.Rows) (*Revision, error) {
	var rev Revision
	var contentJSON string

	if err := rows.Scan(&rev.ID, &rev.CaseStudyID, &rev.Revision, &contentJSON, &rev.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan revision: %w", err)
	}

	if err := json.Unmarshal([]byte(contentJSON), &rev.Content); err != nil {
		return nil, fmt.Errorf("failed to parse revision content: %w", err)
	}

	return &rev, nil
}
