package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefolio/casefolio/internal/config"
	"github.com/casefolio/casefolio/internal/document"
	"github.com/casefolio/casefolio/internal/logging"
	"github.com/casefolio/casefolio/internal/registry"
	"github.com/casefolio/casefolio/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.CaseStudyRepository, *registry.TemplateRegistry) {
	t.Helper()

	db, err := store.Open(context.Background(), ":memory:", logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := store.NewCaseStudyRepository(db)
	templates := registry.NewTemplateRegistry()

	cfg := &config.Config{}
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 8090
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

	return New(cfg, logging.NewNop(), repo, templates), repo, templates
}

func registerSampleTemplate(reg *registry.TemplateRegistry) {
	reg.Register(&registry.TemplateInfo{
		Name:     "product-launch",
		FilePath: "templates/product-launch.yaml",
		Content: document.Map{
			"title":       "{{projectName}} Launch",
			"description": "{{#if hasOutcome}}Shipped {{projectName}}.{{/if}}",
			"sections": document.Map{
				"team": "{{#each members}}[{{item}}]{{/each}}",
			},
		},
		LastMod: time.Now(),
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	srv, _, templates := newTestServer(t)
	registerSampleTemplate(templates)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeResponse(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["templates"])
}

func TestCreateAndGetCaseStudy(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/case-studies", map[string]any{
		"content": map[string]any{"title": "Atlas Launch"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeResponse(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/case-studies/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeResponse(t, rec)
	content := got["content"].(map[string]any)
	assert.Equal(t, "Atlas Launch", content["title"])
}

func TestCreateRequiresContent(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/case-studies", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMissingCaseStudy(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/case-studies/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateCaseStudy(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	created, err := repo.Create(context.Background(), document.Map{"title": "v1"})
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), http.MethodPut, "/api/case-studies/"+created.ID, map[string]any{
		"content":           map[string]any{"title": "v2"},
		"expectedUpdatedAt": created.UpdatedAt,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	updated := decodeResponse(t, rec)
	content := updated["content"].(map[string]any)
	assert.Equal(t, "v2", content["title"])
}

func TestUpdateStaleTimestampReturnsConflicts(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	created, err := repo.Create(context.Background(), document.Map{"title": "original"})
	require.NoError(t, err)
	_, err = repo.Update(context.Background(), created.ID,
		document.Map{"title": "server edit"}, created.UpdatedAt)
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), http.MethodPut, "/api/case-studies/"+created.ID, map[string]any{
		"content":           map[string]any{"title": "local edit"},
		"expectedUpdatedAt": created.UpdatedAt,
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeResponse(t, rec)
	server := body["server"].(map[string]any)
	serverContent := server["content"].(map[string]any)
	assert.Equal(t, "server edit", serverContent["title"])

	conflicts := body["conflicts"].([]any)
	require.NotEmpty(t, conflicts)
	first := conflicts[0].(map[string]any)
	assert.Equal(t, "title", first["field"])
	assert.Equal(t, "local edit", first["localValue"])
	assert.Equal(t, "server edit", first["serverValue"])
}

func TestResolveConflictMerge(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	created, err := repo.Create(context.Background(), document.Map{
		"title": "original",
		"sections": document.Map{
			"hero": "server hero",
			"team": "server team",
		},
	})
	require.NoError(t, err)

	local := map[string]any{
		"title": "local title",
		"sections": map[string]any{
			"hero": "local hero",
		},
	}

	rec := doJSON(t, srv.Handler(), http.MethodPost,
		"/api/case-studies/"+created.ID+"/resolve", map[string]any{
			"strategy": "merge",
			"local":    local,
		})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	assert.Equal(t, "merge", body["outcome"])

	record := body["caseStudy"].(map[string]any)
	content := record["content"].(map[string]any)
	assert.Equal(t, "local title", content["title"])

	sections := content["sections"].(map[string]any)
	assert.Equal(t, "local hero", sections["hero"])
	assert.Equal(t, "server team", sections["team"])

	// The resolution persisted.
	stored, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "local title", stored.Content["title"])
}

func TestResolveConflictCancelDoesNotPersist(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	created, err := repo.Create(context.Background(), document.Map{"title": "original"})
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), http.MethodPost,
		"/api/case-studies/"+created.ID+"/resolve", map[string]any{
			"strategy": "cancel",
		})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	assert.Equal(t, "cancelled", body["outcome"])

	stored, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Content["title"])
	assert.Equal(t, created.UpdatedAt, stored.UpdatedAt)
}

func TestResolveConflictUnknownStrategy(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	created, err := repo.Create(context.Background(), document.Map{"title": "x"})
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), http.MethodPost,
		"/api/case-studies/"+created.ID+"/resolve", map[string]any{
			"strategy": "coinflip",
			"local":    map[string]any{"title": "y"},
		})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCaseStudy(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	created, err := repo.Create(context.Background(), document.Map{"title": "x"})
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), http.MethodDelete, "/api/case-studies/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/api/case-studies/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRevisionsAndRestore(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	created, err := repo.Create(context.Background(), document.Map{"title": "v1"})
	require.NoError(t, err)
	edited, err := repo.Update(context.Background(), created.ID,
		document.Map{"title": "v2"}, created.UpdatedAt)
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), http.MethodGet,
		"/api/case-studies/"+created.ID+"/revisions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	revisions := body["revisions"].([]any)
	require.Len(t, revisions, 1)

	rec = doJSON(t, srv.Handler(), http.MethodPost,
		"/api/case-studies/"+created.ID+"/revisions/1/restore", map[string]any{
			"expectedUpdatedAt": edited.UpdatedAt,
		})
	require.Equal(t, http.StatusOK, rec.Code)

	restored := decodeResponse(t, rec)
	content := restored["content"].(map[string]any)
	assert.Equal(t, "v1", content["title"])
}

func TestRestoreBadRevisionNumber(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	created, err := repo.Create(context.Background(), document.Map{"title": "x"})
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), http.MethodPost,
		"/api/case-studies/"+created.ID+"/revisions/zero/restore", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTemplates(t *testing.T) {
	srv, _, templates := newTestServer(t)
	registerSampleTemplate(templates)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	list := body["templates"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "product-launch", first["name"])
}

func TestGetTemplateMissing(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/templates/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplateVariables(t *testing.T) {
	srv, _, templates := newTestServer(t)
	registerSampleTemplate(templates)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/templates/product-launch/variables", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	vars := body["variables"].([]any)
	require.NotEmpty(t, vars)
	first := vars[0].(map[string]any)
	assert.Equal(t, "projectName", first["name"])
	assert.Equal(t, "Project Name", first["label"])
}

func TestRenderTemplate(t *testing.T) {
	srv, _, templates := newTestServer(t)
	registerSampleTemplate(templates)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/templates/product-launch/render",
		map[string]any{
			"variables": map[string]any{
				"projectName": "Atlas",
				"hasOutcome":  true,
				"members":     []any{"ana", "bo"},
			},
		})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	content := body["content"].(map[string]any)
	assert.Equal(t, "Atlas Launch", content["title"])
	assert.Equal(t, "Shipped Atlas.", content["description"])

	sections := content["sections"].(map[string]any)
	assert.Equal(t, "[ana][bo]", sections["team"])
}

func TestApplyTemplatePreservesExistingContent(t *testing.T) {
	srv, _, templates := newTestServer(t)
	registerSampleTemplate(templates)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/templates/product-launch/apply",
		map[string]any{
			"content": map[string]any{
				"title": "Hand-written title",
				"sections": map[string]any{
					"intro": "existing intro",
				},
			},
			"variables": map[string]any{
				"projectName": "Atlas",
				"members":     []any{"ana"},
			},
		})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	content := body["content"].(map[string]any)
	assert.Equal(t, "Hand-written title", content["title"])

	sections := content["sections"].(map[string]any)
	assert.Equal(t, "existing intro", sections["intro"])
	assert.Equal(t, "[ana]", sections["team"])
}

func TestValidateTemplate(t *testing.T) {
	srv, _, templates := newTestServer(t)
	registerSampleTemplate(templates)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/templates/product-launch/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	assert.Equal(t, true, body["valid"])
}

func TestInvalidJSONBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/case-studies",
		bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/case-studies", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
