package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"circuitvc/internal/config"
	"circuitvc/internal/engine"
	"circuitvc/internal/errors"
	"circuitvc/internal/history"
	"circuitvc/internal/logging"
	"circuitvc/internal/revision"
	"circuitvc/internal/triple"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestServer(t *testing.T) (http.Handler, func()) {
	cfg := config.Default()
	cfg.Database.InMemory = true

	e, err := engine.Open(cfg, zap.NewNop())
	require.NoError(t, err)

	handler := NewHandler(e, logging.Nop())
	return handler.Routes(), func() { e.Close() }
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func stmt(s, p, o string) triple.Statement {
	return triple.Statement{Subject: "<http://ex.org/" + s + ">", Predicate: "<http://ex.org/" + p + ">", Object: o}
}

func TestHandler_CreateRepo(t *testing.T) {
	h, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		name       string
		input      any
		wantStatus int
		wantType   errors.ErrorType
	}{
		{
			name:       "valid repository",
			input:      CreateRepoRequest{Name: "cmy", Action: Action{Message: "create"}},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "duplicate name",
			input:      CreateRepoRequest{Name: "cmy"},
			wantStatus: http.StatusConflict,
			wantType:   errors.ErrorTypeDuplicateName,
		},
		{
			name:       "missing name",
			input:      CreateRepoRequest{},
			wantStatus: http.StatusBadRequest,
			wantType:   errors.ErrorTypeValidation,
		},
		{
			name:       "malformed body",
			input:      "not an object",
			wantStatus: http.StatusBadRequest,
			wantType:   errors.ErrorTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/repos", tt.input)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantType != "" {
				e := decode[errors.Error](t, rec)
				assert.Equal(t, tt.wantType, e.Type)
				assert.Equal(t, tt.wantStatus, e.Code)
				return
			}
			repo := decode[revision.Repository](t, rec)
			assert.NotEmpty(t, repo.URI)
			assert.Equal(t, "cmy", repo.Name)
		})
	}

	rec := do(t, h, http.MethodGet, "/api/repos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]revision.Repository](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/repos/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CommitBranchMerge(t *testing.T) {
	h, cleanup := setupTestServer(t)
	defer cleanup()

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/repos", CreateRepoRequest{Name: "cmy"}).Code)

	rec := do(t, h, http.MethodPost, "/api/repos/cmy/commits", CommitRequest{
		Additions: []triple.Statement{stmt("pTet", "role", `"promoter"`)},
		Action:    Action{Message: "rev1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rev1 := decode[revision.Revision](t, rec)
	assert.Empty(t, rev1.Parents)
	assert.Equal(t, 1, rev1.Statements)

	t.Run("stale expected head", func(t *testing.T) {
		stale := "urn:circuitvc:revision/none"
		rec := do(t, h, http.MethodPost, "/api/repos/cmy/commits", CommitRequest{
			ExpectedHead: &stale,
			Additions:    []triple.Statement{stmt("gfp", "role", `"cds"`)},
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, errors.ErrorTypeStaleHead, decode[errors.Error](t, rec).Type)
	})

	rec = do(t, h, http.MethodPost, "/api/repos/cmy/branches", CreateBranchRequest{Name: "bugfix", Source: "master"})
	require.Equal(t, http.StatusCreated, rec.Code)
	bugfix := decode[revision.Branch](t, rec)
	assert.Equal(t, rev1.URI, bugfix.TailRevision)

	rec = do(t, h, http.MethodPost, "/api/repos/cmy/commits", CommitRequest{
		Branch:    "bugfix",
		Additions: []triple.Statement{stmt("gfp", "role", `"cds"`)},
		Action:    Action{Message: "fix"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/repos/cmy/merges", MergeRequest{Target: "master", Source: "bugfix", Action: Action{Message: "merge"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	merge := decode[revision.Revision](t, rec)
	assert.Len(t, merge.Parents, 2)
	assert.Equal(t, 2, merge.Statements)

	rec = do(t, h, http.MethodGet, "/api/repos/cmy/branches?match=bug*", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	branches := decode[[]revision.Branch](t, rec)
	require.Len(t, branches, 1)
	assert.Equal(t, "bugfix", branches[0].Name)

	rec = do(t, h, http.MethodGet, "/api/repos/cmy/revisions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]revision.Revision](t, rec), 3)

	rec = do(t, h, http.MethodPost, "/api/repos/cmy/tags", CreateTagRequest{Name: "v1", Revision: "master"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, merge.URI, decode[revision.Tag](t, rec).TargetRevision)

	rec = do(t, h, http.MethodPost, "/api/repos/cmy/tags", CreateTagRequest{Name: "v1", Revision: rev1.URI})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/repos/cmy/history?show_branches=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[history.View](t, rec)
	require.Len(t, view.Rows, 4)
	assert.Equal(t, merge.URI, view.Rows[0].Ref)
	assert.Equal(t, []string{"v1"}, view.Rows[0].Tags)
	assert.Equal(t, history.KindBranch, view.Rows[2].Kind)
	assert.Equal(t, 2, view.Width)

	rec = do(t, h, http.MethodGet, "/api/repos/cmy/history?show_branches=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/repos/cmy/diff?to=master", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[DiffResponse](t, rec)
	assert.Equal(t, rev1.URI, d.From)
	assert.Equal(t, []triple.Statement{stmt("gfp", "role", `"cds"`)}, d.Additions)
	assert.Empty(t, d.Removals)
	assert.Equal(t, 1, d.Stats.Additions)

	rec = do(t, h, http.MethodGet, "/api/repos/cmy/content?ref=v1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/n-triples", rec.Header().Get("Content-Type"))
	assert.Equal(t, merge.URI, rec.Header().Get("X-Revision"))
	parsed, err := triple.Parse(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.Len())
}

func TestHandler_MergeConflict(t *testing.T) {
	h, cleanup := setupTestServer(t)
	defer cleanup()

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/repos", CreateRepoRequest{Name: "cmy"}).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/repos/cmy/commits", CommitRequest{
		Additions: []triple.Statement{stmt("pTet", "strength", `"low"`)},
	}).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/repos/cmy/branches", CreateBranchRequest{Name: "tune", Source: "master"}).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/repos/cmy/commits", CommitRequest{
		Branch:    "tune",
		Additions: []triple.Statement{stmt("pTet", "strength", `"high"`)},
		Removals:  []triple.Statement{stmt("pTet", "strength", `"low"`)},
	}).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/repos/cmy/commits", CommitRequest{
		Additions: []triple.Statement{stmt("pTet", "strength", `"medium"`)},
		Removals:  []triple.Statement{stmt("pTet", "strength", `"low"`)},
	}).Code)

	rec := do(t, h, http.MethodPost, "/api/repos/cmy/merges", MergeRequest{Target: "master", Source: "tune"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.ErrorTypeMergeConflict, decode[errors.Error](t, rec).Type)

	resolved := []triple.Statement{stmt("pTet", "strength", `"high"`)}
	rec = do(t, h, http.MethodPost, "/api/repos/cmy/merges", MergeRequest{Target: "master", Source: "tune", Resolved: resolved})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode[revision.Revision](t, rec).Parents, 2)
}

func TestHandler_Health(t *testing.T) {
	h, cleanup := setupTestServer(t)
	defer cleanup()

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}
