// client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"circuitvc/internal/api"
	"circuitvc/internal/errors"
	"circuitvc/internal/history"
	"circuitvc/internal/revision"
	"circuitvc/internal/triple"
)

// Client talks to a circuitvc server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// Repository operations
func (c *Client) CreateRepo(ctx context.Context, name, message string) (*revision.Repository, error) {
	var repo revision.Repository
	req := api.CreateRepoRequest{Name: name, Action: api.Action{Message: message}}
	if err := c.do(ctx, http.MethodPost, "/api/repos", nil, req, http.StatusCreated, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

func (c *Client) ListRepos(ctx context.Context) ([]*revision.Repository, error) {
	var repos []*revision.Repository
	if err := c.do(ctx, http.MethodGet, "/api/repos", nil, nil, http.StatusOK, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

func (c *Client) GetRepo(ctx context.Context, name string) (*revision.Repository, error) {
	var repo revision.Repository
	if err := c.do(ctx, http.MethodGet, repoPath(name, ""), nil, nil, http.StatusOK, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// Branch operations
func (c *Client) CreateBranch(ctx context.Context, repo, name, source, message string) (*revision.Branch, error) {
	var b revision.Branch
	req := api.CreateBranchRequest{Name: name, Source: source, Action: api.Action{Message: message}}
	if err := c.do(ctx, http.MethodPost, repoPath(repo, "/branches"), nil, req, http.StatusCreated, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) ListBranches(ctx context.Context, repo, match string) ([]*revision.Branch, error) {
	q := url.Values{}
	if match != "" {
		q.Set("match", match)
	}
	var branches []*revision.Branch
	if err := c.do(ctx, http.MethodGet, repoPath(repo, "/branches"), q, nil, http.StatusOK, &branches); err != nil {
		return nil, err
	}
	return branches, nil
}

// Revision operations
func (c *Client) Commit(ctx context.Context, repo string, req api.CommitRequest) (*revision.Revision, error) {
	var rev revision.Revision
	if err := c.do(ctx, http.MethodPost, repoPath(repo, "/commits"), nil, req, http.StatusCreated, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (c *Client) Merge(ctx context.Context, repo string, req api.MergeRequest) (*revision.Revision, error) {
	var rev revision.Revision
	if err := c.do(ctx, http.MethodPost, repoPath(repo, "/merges"), nil, req, http.StatusCreated, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (c *Client) ListRevisions(ctx context.Context, repo string) ([]*revision.Revision, error) {
	var revs []*revision.Revision
	if err := c.do(ctx, http.MethodGet, repoPath(repo, "/revisions"), nil, nil, http.StatusOK, &revs); err != nil {
		return nil, err
	}
	return revs, nil
}

// Tag operations
func (c *Client) Tag(ctx context.Context, repo, name, ref, message string) (*revision.Tag, error) {
	var tag revision.Tag
	req := api.CreateTagRequest{Name: name, Revision: ref, Action: api.Action{Message: message}}
	if err := c.do(ctx, http.MethodPost, repoPath(repo, "/tags"), nil, req, http.StatusCreated, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (c *Client) ListTags(ctx context.Context, repo string) ([]*revision.Tag, error) {
	var tags []*revision.Tag
	if err := c.do(ctx, http.MethodGet, repoPath(repo, "/tags"), nil, nil, http.StatusOK, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// Query operations
func (c *Client) History(ctx context.Context, repo, head string, showBranches bool) (*history.View, error) {
	q := url.Values{}
	if head != "" {
		q.Set("head", head)
	}
	q.Set("show_branches", strconv.FormatBool(showBranches))

	var view history.View
	if err := c.do(ctx, http.MethodGet, repoPath(repo, "/history"), q, nil, http.StatusOK, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) Diff(ctx context.Context, repo, from, to string) (*api.DiffResponse, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	q.Set("to", to)

	var d api.DiffResponse
	if err := c.do(ctx, http.MethodGet, repoPath(repo, "/diff"), q, nil, http.StatusOK, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Content fetches a revision's statements.
func (c *Client) Content(ctx context.Context, repo, ref string) (triple.Set, error) {
	q := url.Values{}
	q.Set("ref", ref)

	resp, err := c.send(ctx, http.MethodGet, repoPath(repo, "/content"), q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return triple.Parse(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any, want int, out any) error {
	resp, err := c.send(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, q url.Values, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// decodeError turns an error response back into the server's typed error,
// so errors.Is works on the client side too.
func decodeError(resp *http.Response) error {
	var e errors.Error
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Type == "" {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	if e.Code == 0 {
		e.Code = resp.StatusCode
	}
	return &e
}

func repoPath(name, suffix string) string {
	return "/api/repos/" + url.PathEscape(name) + suffix
}
