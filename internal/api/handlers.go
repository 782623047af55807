// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"circuitvc/internal/diff"
	"circuitvc/internal/errors"
	"circuitvc/internal/history"
	"circuitvc/internal/logging"
	"circuitvc/internal/revision"
	"circuitvc/internal/triple"
	"circuitvc/internal/validation"

	"go.uber.org/zap"
)

// Graph is the revision graph the handlers serve. *engine.Engine
// implements it.
type Graph interface {
	CreateRepo(ctx context.Context, name string, info revision.ActionInfo) (*revision.Repository, error)
	FindRepository(ctx context.Context, name string) (*revision.Repository, error)
	ListRepositories(ctx context.Context) ([]*revision.Repository, error)

	Branch(ctx context.Context, sourceRevision, name string, info revision.ActionInfo) (*revision.Branch, error)
	FindBranch(ctx context.Context, repoURI, name string) (*revision.Branch, error)
	ListBranches(ctx context.Context, repoURI, match string) ([]*revision.Branch, error)

	Commit(ctx context.Context, b *revision.Branch, d *diff.Diff, info revision.ActionInfo) (*revision.Revision, error)
	Merge(ctx context.Context, target *revision.Branch, sourceRevision string, info revision.ActionInfo) (*revision.Revision, error)
	MergeWith(ctx context.Context, target *revision.Branch, sourceRevision string, merged triple.Set, info revision.ActionInfo) (*revision.Revision, error)
	ListRevisions(ctx context.Context, repoURI string) ([]*revision.Revision, error)

	Tag(ctx context.Context, revisionURI, name string, info revision.ActionInfo) (*revision.Tag, error)
	ListTags(ctx context.Context, repoURI string) ([]*revision.Tag, error)

	Resolve(ctx context.Context, repoURI, ref string) (*revision.Revision, error)
	History(ctx context.Context, repoURI, headRef string, showBranches bool) (*history.History, error)
	Export(ctx context.Context, revisionURI string) (<-chan triple.Statement, error)
	DiffRevisions(ctx context.Context, from, to string) (*diff.Diff, error)
}

type Handler struct {
	graph  Graph
	logger *logging.Logger
}

func NewHandler(graph Graph, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{graph: graph, logger: logger}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/repos", h.CreateRepo)
	mux.HandleFunc("GET /api/repos", h.ListRepos)
	mux.HandleFunc("GET /api/repos/{repo}", h.GetRepo)

	mux.HandleFunc("GET /api/repos/{repo}/branches", h.ListBranches)
	mux.HandleFunc("POST /api/repos/{repo}/branches", h.CreateBranch)
	mux.HandleFunc("GET /api/repos/{repo}/revisions", h.ListRevisions)
	mux.HandleFunc("POST /api/repos/{repo}/commits", h.Commit)
	mux.HandleFunc("POST /api/repos/{repo}/merges", h.Merge)
	mux.HandleFunc("GET /api/repos/{repo}/tags", h.ListTags)
	mux.HandleFunc("POST /api/repos/{repo}/tags", h.CreateTag)

	mux.HandleFunc("GET /api/repos/{repo}/history", h.History)
	mux.HandleFunc("GET /api/repos/{repo}/content", h.Content)
	mux.HandleFunc("GET /api/repos/{repo}/diff", h.Diff)
	return mux
}

// Action is the author and message part of every mutating request.
type Action struct {
	Message string               `json:"message"`
	Author  *revision.PersonInfo `json:"author,omitempty"`
}

func (a Action) info() revision.ActionInfo {
	info := revision.ActionInfo{Message: a.Message}
	if a.Author != nil {
		info.Author = *a.Author
	}
	return info
}

type CreateRepoRequest struct {
	Name string `json:"name"`
	Action
}

type CreateBranchRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"` // ref of the fork point
	Action
}

type CommitRequest struct {
	Branch string `json:"branch"`
	// ExpectedHead is checked against the branch head; omitted means the
	// current head.
	ExpectedHead *string            `json:"expected_head,omitempty"`
	Additions    []triple.Statement `json:"additions"`
	Removals     []triple.Statement `json:"removals"`
	Action
}

type MergeRequest struct {
	Target string `json:"target"` // branch name
	Source string `json:"source"` // ref
	// Resolved replaces the three-way merge with caller-supplied content.
	Resolved []triple.Statement `json:"resolved,omitempty"`
	Action
}

type CreateTagRequest struct {
	Name     string `json:"name"`
	Revision string `json:"revision"` // ref
	Action
}

func (req *CreateRepoRequest) Validate() error {
	return validation.Name("repository", req.Name)
}

func (req *CreateBranchRequest) Validate() error {
	return validation.Name("branch", req.Name)
}

func (req *CommitRequest) Validate() error {
	if err := validation.Statements("additions", req.Additions); err != nil {
		return err
	}
	return validation.Statements("removals", req.Removals)
}

func (req *MergeRequest) Validate() error {
	if req.Source == "" {
		return errors.ValidationError("merge source is required", nil)
	}
	return validation.Statements("resolved", req.Resolved)
}

func (req *CreateTagRequest) Validate() error {
	return validation.Name("tag", req.Name)
}

type DiffResponse struct {
	From      string             `json:"from"`
	To        string             `json:"to"`
	Additions []triple.Statement `json:"additions"`
	Removals  []triple.Statement `json:"removals"`
	Stats     diff.Stats         `json:"stats"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) CreateRepo(w http.ResponseWriter, r *http.Request) {
	var req CreateRepoRequest
	if !h.decode(w, r, &req) {
		return
	}
	repo, err := h.graph.CreateRepo(r.Context(), req.Name, req.info())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.graph.ListRepositories(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(repos))
}

func (h *Handler) GetRepo(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}
	branches, err := h.graph.ListBranches(r.Context(), repo.URI, r.URL.Query().Get("match"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(branches))
}

func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}
	var req CreateBranchRequest
	if !h.decode(w, r, &req) {
		return
	}

	src, err := h.graph.Resolve(r.Context(), repo.URI, req.Source)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.graph.Branch(r.Context(), src.URI, req.Name, req.info())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}
	revs, err := h.graph.ListRevisions(r.Context(), repo.URI)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(revs))
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}
	var req CommitRequest
	if !h.decode(w, r, &req) {
		return
	}

	b, ok := h.branch(w, r, repo, req.Branch)
	if !ok {
		return
	}
	if req.ExpectedHead != nil {
		b.HeadRevision = *req.ExpectedHead
	}

	rev, err := h.graph.Commit(r.Context(), b, diff.New(req.Additions, req.Removals), req.info())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}
	var req MergeRequest
	if !h.decode(w, r, &req) {
		return
	}

	target, ok := h.branch(w, r, repo, req.Target)
	if !ok {
		return
	}
	src, err := h.graph.Resolve(r.Context(), repo.URI, req.Source)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var rev *revision.Revision
	if req.Resolved != nil {
		rev, err = h.graph.MergeWith(r.Context(), target, src.URI, triple.NewSet(req.Resolved...), req.info())
	} else {
		rev, err = h.graph.Merge(r.Context(), target, src.URI, req.info())
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}
	tags, err := h.graph.ListTags(r.Context(), repo.URI)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tags))
}

func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}
	var req CreateTagRequest
	if !h.decode(w, r, &req) {
		return
	}

	target, err := h.graph.Resolve(r.Context(), repo.URI, req.Revision)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tag, err := h.graph.Tag(r.Context(), target.URI, req.Name, req.info())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	showBranches := false
	if v := q.Get("show_branches"); v != "" {
		var err error
		if showBranches, err = strconv.ParseBool(v); err != nil {
			h.writeError(w, r, errors.ValidationError("show_branches must be a boolean", nil))
			return
		}
	}

	hist, err := h.graph.History(r.Context(), repo.URI, q.Get("head"), showBranches)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	for _, p := range hist.Problems {
		h.logger.WithRequestID(r.Context()).Warn("history problem", zap.Error(p))
	}
	writeJSON(w, http.StatusOK, hist.View())
}

// Content streams a revision as N-Triples.
func (h *Handler) Content(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}
	rev, err := h.graph.Resolve(r.Context(), repo.URI, r.URL.Query().Get("ref"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	stmts, err := h.graph.Export(r.Context(), rev.URI)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/n-triples")
	w.Header().Set("X-Revision", rev.URI)
	w.WriteHeader(http.StatusOK)
	for st := range stmts {
		if _, err := fmt.Fprintln(w, triple.FormatLine(st)); err != nil {
			// client went away; the export goroutine stops on ctx
			return
		}
	}
}

func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repo(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	to, err := h.graph.Resolve(r.Context(), repo.URI, q.Get("to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := DiffResponse{To: to.URI}
	if fromRef := q.Get("from"); fromRef != "" {
		from, err := h.graph.Resolve(r.Context(), repo.URI, fromRef)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.From = from.URI
	} else if len(to.Parents) > 0 {
		resp.From = to.Parents[0]
	}

	d, err := h.graph.DiffRevisions(r.Context(), resp.From, resp.To)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp.Additions = d.Additions.Sorted()
	resp.Removals = d.Removals.Sorted()
	resp.Stats = d.Stats()
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) repo(w http.ResponseWriter, r *http.Request) (*revision.Repository, bool) {
	name := r.PathValue("repo")
	if name == "" {
		h.writeError(w, r, errors.ValidationError("missing repository", nil))
		return nil, false
	}
	repo, err := h.graph.FindRepository(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return repo, true
}

func (h *Handler) branch(w http.ResponseWriter, r *http.Request, repo *revision.Repository, name string) (*revision.Branch, bool) {
	if name == "" {
		name = revision.MasterBranch
	}
	b, err := h.graph.FindBranch(r.Context(), repo.URI, name)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return b, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v validation.Validator) bool {
	if err := validation.DecodeRequest(r, v); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

// writeError sends the typed error body with its status code. Untyped
// errors are reported as INTERNAL without their message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := errors.As(err)
	if !ok {
		e = errors.Internal("internal error", err)
	}

	logger := h.logger.WithRequestID(r.Context())
	if e.Code >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.Error(err))
	}

	body := *e
	if ok {
		// keep the wrapped context in the message
		body.Message = err.Error()
	}
	writeJSON(w, e.Code, &body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
