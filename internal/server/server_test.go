package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigcharles06/remote-course-system/internal/llm"
	"github.com/pigcharles06/remote-course-system/internal/pipeline"
	"github.com/pigcharles06/remote-course-system/internal/storage"
)

type httpErr struct {
	Error string `json:"error"`
}

type fakeGenerator struct {
	err   error
	forms []llm.FormData
}

func (g *fakeGenerator) Generate(ctx context.Context, form llm.FormData) (*pipeline.Output, error) {
	g.forms = append(g.forms, form)
	if g.err != nil {
		return nil, g.err
	}
	report := pipeline.NewReport("template.docx")
	report.Requested, report.Resolved, report.Missing = 3, 2, []string{"備註"}
	report.Rounds, report.Batches = 2, 2
	return &pipeline.Output{Document: []byte("PK-docx-bytes"), Report: report}, nil
}

func (g *fakeGenerator) TemplatePath() string { return "template.docx" }

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	return req, httptest.NewRecorder()
}

func newTestServer(t *testing.T, gen DocumentGenerator, withStore bool) (Server, storage.Store, string) {
	t.Helper()
	var store storage.Store
	if withStore {
		s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		store = s
	}
	outDir := filepath.Join(t.TempDir(), "generated")
	srv := NewServer(&Options{
		DisableReqLogs: true,
		Generator:      gen,
		Store:          store,
		OutputDir:      outDir,
	})
	return srv, store, outDir
}

const formBody = `{"application_id": "app-1", "form_data": {"course_name_zh": "資料結構", "credits": 3}}`

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeGenerator{}, false)
	req, rec := newRequest(http.MethodGet, "/api/health/")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDownload(t *testing.T) {
	gen := &fakeGenerator{}
	srv, store, _ := newTestServer(t, gen, true)

	req, rec := newRequest(http.MethodPost, "/api/documents/download", []byte(formBody))
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, mimeDOCX, rec.Header().Get("Content-Type"))
	assert.Equal(t, "PK-docx-bytes", rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get(headerResolved))
	assert.Equal(t, "3", rec.Header().Get(headerRequested))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="teaching_plan.docx"`)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "filename*=UTF-8''%E8%B3%87")

	require.Len(t, gen.forms, 1)
	assert.Equal(t, "資料結構", gen.forms[0]["course_name_zh"])

	gens, err := store.ListGenerations(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, "app-1", gens[0].ApplicationID)
	assert.Equal(t, storage.StatusPartial, gens[0].Status)
	assert.Equal(t, []string{"備註"}, gens[0].Missing)
	assert.Equal(t, 2, gens[0].Rounds)
}

func TestDownload_Errors(t *testing.T) {
	tests := []struct {
		name     string
		gen      *fakeGenerator
		body     string
		wantCode int
	}{
		{name: "missing form data", gen: &fakeGenerator{}, body: `{"application_id": "x"}`, wantCode: http.StatusBadRequest},
		{name: "invalid json", gen: &fakeGenerator{}, body: `{`, wantCode: http.StatusBadRequest},
		{name: "generation failure", gen: &fakeGenerator{err: errors.New("template missing")}, body: formBody, wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t, tt.gen, false)
			req, rec := newRequest(http.MethodPost, "/api/documents/download", []byte(tt.body))
			srv.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)

			var body httpErr
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestGenerationFailureIsAudited(t *testing.T) {
	srv, store, _ := newTestServer(t, &fakeGenerator{err: errors.New("template missing")}, true)
	req, rec := newRequest(http.MethodPost, "/api/documents/download", []byte(formBody))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	gens, err := store.ListGenerations(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, storage.StatusFailed, gens[0].Status)
	assert.Equal(t, "template missing", gens[0].Error)
}

func TestSaveAndHistory(t *testing.T) {
	srv, _, outDir := newTestServer(t, &fakeGenerator{}, true)

	req, rec := newRequest(http.MethodPost, "/api/documents", []byte(formBody))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var saved savedDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Contains(t, saved.Filename, "資料結構_")
	assert.Equal(t, len("PK-docx-bytes"), saved.Size)
	data, err := os.ReadFile(filepath.Join(outDir, saved.Filename))
	require.NoError(t, err)
	assert.Equal(t, "PK-docx-bytes", string(data))

	req, rec = newRequest(http.MethodGet, saved.DownloadURL)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PK-docx-bytes", rec.Body.String())

	req, rec = newRequest(http.MethodGet, "/api/documents")
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []storage.Generation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, saved.Generation.ID, history[0].ID)
	assert.Equal(t, filepath.Join(outDir, saved.Filename), history[0].OutputPath)

	req, rec = newRequest(http.MethodGet, "/api/documents/"+saved.Generation.ID)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newRequest(http.MethodGet, "/api/documents/unknown")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryWithoutStore(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeGenerator{}, false)
	req, rec := newRequest(http.MethodGet, "/api/documents")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"generation history is not enabled"}`, rec.Body.String())
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "a_b_c", safeName("a/b:c"))
	assert.Equal(t, defaultCourseName, courseName(llm.FormData{"course_name_zh": "  "}))
}
