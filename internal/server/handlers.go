package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/casefolio/casefolio/internal/conflict"
	"github.com/casefolio/casefolio/internal/document"
	"github.com/casefolio/casefolio/internal/errs"
	"github.com/casefolio/casefolio/internal/store"
	"github.com/casefolio/casefolio/internal/template"
)

const maxBodyBytes = 1 << 20 // 1 MiB

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"templates": s.templates.Count(),
	})
}

// Case studies

func (s *Server) handleListCaseStudies(w http.ResponseWriter, r *http.Request) {
	records, err := s.repo.List(r.Context())
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"caseStudies": records})
}

func (s *Server) handleCreateCaseStudy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content document.Map `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Content == nil {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	record, err := s.repo.Create(r.Context(), body.Content)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetCaseStudy(w http.ResponseWriter, r *http.Request) {
	record, err := s.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleUpdateCaseStudy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content           document.Map `json:"content"`
		ExpectedUpdatedAt string       `json:"expectedUpdatedAt"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Content == nil {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	record, err := s.repo.Update(r.Context(), r.PathValue("id"), body.Content, body.ExpectedUpdatedAt)
	if err != nil {
		var conflictErr *store.ConflictError
		if errors.As(err, &conflictErr) {
			// Itemize the field-level differences so the client can offer
			// resolution choices immediately.
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":     "case study modified since read",
				"server":    conflictErr.Server,
				"conflicts": s.resolver.Detect(body.Content, conflictErr.Server.Content),
			})
			return
		}
		s.writeRepoError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteCaseStudy(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Strategy conflict.Strategy `json:"strategy"`
		Local    document.Map      `json:"local"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Local == nil && body.Strategy != conflict.StrategyServer && body.Strategy != conflict.StrategyCancel {
		writeError(w, http.StatusBadRequest, "local document is required")
		return
	}

	current, err := s.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}

	resolution, err := s.resolver.Resolve(body.Local, current.Content, body.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if resolution.Outcome == conflict.OutcomeCancelled {
		writeJSON(w, http.StatusOK, map[string]any{"outcome": resolution.Outcome})
		return
	}

	record, err := s.repo.Update(r.Context(), current.ID, resolution.Document, current.UpdatedAt)
	if err != nil {
		// The document moved again between read and write; the client must
		// re-run resolution against the fresh copy.
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "case study changed during resolution, retry")
			return
		}
		s.writeRepoError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"outcome":   resolution.Outcome,
		"caseStudy": record,
	})
}

// Revisions

func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	revisions, err := s.repo.ListRevisions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revisions})
}

func (s *Server) handleGetRevision(w http.ResponseWriter, r *http.Request) {
	rev, ok := revisionNumber(w, r)
	if !ok {
		return
	}

	revision, err := s.repo.GetRevision(r.Context(), r.PathValue("id"), rev)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revision)
}

func (s *Server) handleRestoreRevision(w http.ResponseWriter, r *http.Request) {
	rev, ok := revisionNumber(w, r)
	if !ok {
		return
	}

	var body struct {
		ExpectedUpdatedAt string `json:"expectedUpdatedAt"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	record, err := s.repo.Restore(r.Context(), r.PathValue("id"), rev, body.ExpectedUpdatedAt)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "case study modified since read")
			return
		}
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func revisionNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	rev, err := strconv.Atoi(r.PathValue("rev"))
	if err != nil || rev < 1 {
		writeError(w, http.StatusBadRequest, "revision must be a positive integer")
		return 0, false
	}
	return rev, true
}

// Templates

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	infos := s.templates.List()
	out := make([]map[string]any, len(infos))
	for i, info := range infos {
		out[i] = map[string]any{
			"name":     info.Name,
			"modified": info.LastMod,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	info, ok := s.templates.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    info.Name,
		"content": info.Content,
	})
}

func (s *Server) handleTemplateVariables(w http.ResponseWriter, r *http.Request) {
	info, ok := s.templates.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"variables": template.ExtractVariables(info.Content),
	})
}

func (s *Server) handleValidateTemplate(w http.ResponseWriter, r *http.Request) {
	info, ok := s.templates.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	writeJSON(w, http.StatusOK, template.Validate(info.Content))
}

func (s *Server) handleRenderTemplate(w http.ResponseWriter, r *http.Request) {
	info, ok := s.templates.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}

	var body struct {
		Variables document.Map `json:"variables"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Variables == nil {
		body.Variables = document.Map{}
	}

	processed, err := s.processor.Process(info.Content, body.Variables)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": processed})
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	info, ok := s.templates.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}

	var body struct {
		Content   document.Map `json:"content"`
		Variables document.Map `json:"variables"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Content == nil {
		body.Content = document.Map{}
	}
	if body.Variables == nil {
		body.Variables = document.Map{}
	}

	processed, err := s.processor.Process(info.Content, body.Variables)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"content": template.MergeContent(body.Content, processed),
	})
}

// Helpers

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeRepoError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "case study not found")
	case errors.Is(err, store.ErrRevisionNotFound):
		writeError(w, http.StatusNotFound, "revision not found")
	case errs.IsType(err, errs.TypeValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(r.Context(), err, "storage failure", "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
