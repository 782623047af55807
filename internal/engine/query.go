package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"circuitvc/internal/diff"
	"circuitvc/internal/errors"
	"circuitvc/internal/history"
	"circuitvc/internal/revision"
	"circuitvc/internal/triple"

	"github.com/bmatcuk/doublestar/v4"
)

// minPrefix is the shortest revision id prefix Resolve accepts.
const minPrefix = 4

// Snapshot fetches a repository's whole DAG for read-only traversal.
func (e *Engine) Snapshot(ctx context.Context, repoURI string) (*revision.Snapshot, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.snapshot(ctx, repoURI)
}

func (e *Engine) snapshot(ctx context.Context, repoURI string) (*revision.Snapshot, error) {
	repo, err := e.box.GetRepository(ctx, repoURI)
	if err != nil {
		return nil, fmt.Errorf("getting repository: %w", err)
	}
	revs, err := e.box.ListRevisions(ctx, repoURI)
	if err != nil {
		return nil, err
	}
	branches, err := e.box.ListBranches(ctx, repoURI)
	if err != nil {
		return nil, err
	}
	tags, err := e.box.ListTags(ctx, repoURI)
	if err != nil {
		return nil, err
	}
	return revision.NewSnapshot(repo, revs, branches, tags), nil
}

// Resolve turns a ref into a revision. A ref is a revision URI, a branch
// name (its head), a tag name (its target) or a unique prefix of a
// revision id. An empty ref means the master head.
func (e *Engine) Resolve(ctx context.Context, repoURI, ref string) (*revision.Revision, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if ref == "" {
		ref = revision.MasterBranch
	}

	if rev, err := e.box.GetRevision(ctx, ref); err == nil {
		if rev.RepositoryURI != repoURI {
			return nil, errors.NotFound(fmt.Sprintf("revision %s is not in this repository", ref))
		}
		return rev, nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	if b, err := e.box.FindBranch(ctx, repoURI, ref); err == nil {
		if b.HeadRevision == "" {
			return nil, errors.NotFound(fmt.Sprintf("branch %s has no revisions", ref))
		}
		return e.box.GetRevision(ctx, b.HeadRevision)
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	if t, err := e.box.FindTag(ctx, repoURI, ref); err == nil {
		return e.box.GetRevision(ctx, t.TargetRevision)
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	return e.resolvePrefix(ctx, repoURI, ref)
}

func (e *Engine) resolvePrefix(ctx context.Context, repoURI, prefix string) (*revision.Revision, error) {
	if len(prefix) < minPrefix {
		return nil, errors.NotFound(fmt.Sprintf("unknown ref %q", prefix))
	}
	revs, err := e.box.ListRevisions(ctx, repoURI)
	if err != nil {
		return nil, err
	}

	var matches []*revision.Revision
	for _, r := range revs {
		if strings.HasPrefix(ShortID(r.URI), prefix) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errors.NotFound(fmt.Sprintf("unknown ref %q", prefix))
	case 1:
		return matches[0], nil
	}

	candidates := make([]string, len(matches))
	for i, m := range matches {
		candidates[i] = m.URI
	}
	sort.Strings(candidates)
	return nil, errors.ValidationError(fmt.Sprintf("ambiguous ref %q", prefix), candidates)
}

// History assembles the render rows for headRef.
func (e *Engine) History(ctx context.Context, repoURI, headRef string, showBranches bool) (*history.History, error) {
	head, err := e.Resolve(ctx, repoURI, headRef)
	if err != nil {
		return nil, err
	}
	snap, err := e.Snapshot(ctx, repoURI)
	if err != nil {
		return nil, err
	}
	return history.NewAssembler(snap, e.logger).Build(ctx, head.URI, showBranches)
}

// Content returns a revision's materialized snapshot.
func (e *Engine) Content(ctx context.Context, revisionURI string) (triple.Set, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.headContent(ctx, revisionURI)
}

// Export streams a revision's statements in canonical order. The stream is
// not bounded by the store timeout; cancel ctx to stop it early.
func (e *Engine) Export(ctx context.Context, revisionURI string) (<-chan triple.Statement, error) {
	rev, err := e.box.GetRevision(ctx, revisionURI)
	if err != nil {
		return nil, fmt.Errorf("getting revision: %w", err)
	}
	return e.content.ExportFrom(ctx, rev.ContentRef)
}

// DiffRevisions computes the patch taking from's content to to's.
func (e *Engine) DiffRevisions(ctx context.Context, from, to string) (*diff.Diff, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	initial, err := e.headContent(ctx, from)
	if err != nil {
		return nil, err
	}
	final, err := e.headContent(ctx, to)
	if err != nil {
		return nil, err
	}
	return diff.Compute(initial, final), nil
}

func (e *Engine) ListRepositories(ctx context.Context) ([]*revision.Repository, error) {
	return e.box.ListRepositories(ctx)
}

func (e *Engine) GetRepository(ctx context.Context, uri string) (*revision.Repository, error) {
	return e.box.GetRepository(ctx, uri)
}

func (e *Engine) FindRepository(ctx context.Context, name string) (*revision.Repository, error) {
	return e.box.FindRepository(ctx, name)
}

func (e *Engine) GetBranch(ctx context.Context, uri string) (*revision.Branch, error) {
	return e.box.GetBranch(ctx, uri)
}

func (e *Engine) FindBranch(ctx context.Context, repoURI, name string) (*revision.Branch, error) {
	return e.box.FindBranch(ctx, repoURI, name)
}

// ListBranches returns the repository's branches, filtered by a glob such
// as "module*" or "feature/**" when match is non-empty.
func (e *Engine) ListBranches(ctx context.Context, repoURI, match string) ([]*revision.Branch, error) {
	if match != "" && !doublestar.ValidatePattern(match) {
		return nil, errors.ValidationError(fmt.Sprintf("invalid branch pattern %q", match), nil)
	}
	branches, err := e.box.ListBranches(ctx, repoURI)
	if err != nil || match == "" {
		return branches, err
	}

	var result []*revision.Branch
	for _, b := range branches {
		if ok, _ := doublestar.Match(match, b.Name); ok {
			result = append(result, b)
		}
	}
	return result, nil
}

func (e *Engine) ListTags(ctx context.Context, repoURI string) ([]*revision.Tag, error) {
	return e.box.ListTags(ctx, repoURI)
}

func (e *Engine) ListRevisions(ctx context.Context, repoURI string) ([]*revision.Revision, error) {
	return e.box.ListRevisions(ctx, repoURI)
}

func (e *Engine) GetRevision(ctx context.Context, uri string) (*revision.Revision, error) {
	return e.box.GetRevision(ctx, uri)
}
