package engine

import (
	"context"
	"fmt"
	"time"

	"circuitvc/internal/diff"
	"circuitvc/internal/errors"
	"circuitvc/internal/revision"
	"circuitvc/internal/triple"
	"circuitvc/internal/validation"

	"go.uber.org/zap"
)

// CreateRepo creates a repository and its master branch, which has no
// head until the first commit.
func (e *Engine) CreateRepo(ctx context.Context, name string, info revision.ActionInfo) (*revision.Repository, error) {
	if err := validation.Name("repository", name); err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	info = e.action(info)
	repo := &revision.Repository{
		URI:     e.mint("repository"),
		Name:    name,
		Created: info,
	}
	master := &revision.Branch{
		URI:           e.mint("branch"),
		Name:          revision.MasterBranch,
		RepositoryURI: repo.URI,
		Created:       info,
	}

	if err := e.box.CreateRepository(ctx, repo, master); err != nil {
		e.logger.Warn("Repository creation rejected",
			zap.String("name", name),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("Created repository",
		zap.String("repository", repo.URI),
		zap.String("name", name))
	return repo, nil
}

// Branch forks a new branch at sourceRevision. Until its first commit the
// branch's head is the fork point.
func (e *Engine) Branch(ctx context.Context, sourceRevision, name string, info revision.ActionInfo) (*revision.Branch, error) {
	if err := validation.Name("branch", name); err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	src, err := e.box.GetRevision(ctx, sourceRevision)
	if err != nil {
		return nil, fmt.Errorf("getting source revision: %w", err)
	}

	b := &revision.Branch{
		URI:            e.mint("branch"),
		Name:           name,
		RepositoryURI:  src.RepositoryURI,
		ParentRevision: src.URI,
		HeadRevision:   src.URI,
		TailRevision:   src.URI,
		Created:        e.action(info),
	}
	b.Created.Timestamp = e.clamp(b.Created.Timestamp, src.Timestamp())
	if err := e.box.CreateBranch(ctx, b); err != nil {
		e.logger.Warn("Branch creation rejected",
			zap.String("name", name),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("Created branch",
		zap.String("branch", b.URI),
		zap.String("name", name),
		zap.String("tail", src.URI))
	return b, nil
}

// Commit applies d to the content of b's head and appends the result as a
// new revision. b.HeadRevision is the caller's expected head: if the branch
// moved since b was read, Commit fails with a STALE_HEAD error and the
// caller must re-read the branch and recompute d. On success b is advanced.
func (e *Engine) Commit(ctx context.Context, b *revision.Branch, d *diff.Diff, info revision.ActionInfo) (*revision.Revision, error) {
	if d != nil {
		if err := validation.Statements("additions", d.Additions.Sorted()); err != nil {
			return nil, err
		}
		if err := validation.Statements("removals", d.Removals.Sorted()); err != nil {
			return nil, err
		}
	}

	unlock := e.lock(b.URI)
	defer unlock()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	expected := b.HeadRevision
	if err := e.checkHead(ctx, b.URI, expected); err != nil {
		return nil, err
	}

	base, err := e.headContent(ctx, expected)
	if err != nil {
		return nil, err
	}

	var parents []string
	if expected != "" {
		parents = []string{expected}
	}
	return e.appendRevision(ctx, b, parents, d.Apply(base), info)
}

// Merge joins sourceRevision into target. The merged content is the
// three-way reconciliation against the newest common ancestor; overlapping
// subject/predicate edits fail with a MERGE_CONFLICT error carrying the
// conflicts, to be resolved through MergeWith.
func (e *Engine) Merge(ctx context.Context, target *revision.Branch, sourceRevision string, info revision.ActionInfo) (*revision.Revision, error) {
	return e.merge(ctx, target, sourceRevision, nil, info)
}

// MergeWith records a merge of sourceRevision into target whose content the
// caller has already resolved.
func (e *Engine) MergeWith(ctx context.Context, target *revision.Branch, sourceRevision string, merged triple.Set, info revision.ActionInfo) (*revision.Revision, error) {
	if merged == nil {
		return nil, errors.ValidationError("merged content is required", nil)
	}
	if err := validation.Statements("merged", merged.Sorted()); err != nil {
		return nil, err
	}
	return e.merge(ctx, target, sourceRevision, merged, info)
}

func (e *Engine) merge(ctx context.Context, target *revision.Branch, sourceRevision string, merged triple.Set, info revision.ActionInfo) (*revision.Revision, error) {
	unlock := e.lock(target.URI)
	defer unlock()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	head := target.HeadRevision
	if head == "" {
		return nil, errors.ValidationError(fmt.Sprintf("branch %s has no revisions to merge into", target.Name), nil)
	}
	if err := e.checkHead(ctx, target.URI, head); err != nil {
		return nil, err
	}

	source, err := e.box.GetRevision(ctx, sourceRevision)
	if err != nil {
		return nil, fmt.Errorf("getting source revision: %w", err)
	}
	if source.RepositoryURI != target.RepositoryURI {
		return nil, errors.ValidationError("source revision belongs to another repository", nil)
	}

	snap, err := e.snapshot(ctx, target.RepositoryURI)
	if err != nil {
		return nil, err
	}
	if snap.IsAncestor(source.URI, head) {
		return nil, errors.ValidationError(fmt.Sprintf("%s is already merged into %s", source.URI, target.Name), nil)
	}

	if merged == nil {
		merged, err = e.threeWay(ctx, snap, head, source.URI)
		if err != nil {
			e.logger.Warn("Merge rejected",
				zap.String("branch", target.URI),
				zap.String("source", source.URI),
				zap.Error(err))
			return nil, err
		}
	}

	return e.appendRevision(ctx, target, []string{head, source.URI}, merged, info)
}

func (e *Engine) threeWay(ctx context.Context, snap *revision.Snapshot, head, source string) (triple.Set, error) {
	ancestor := triple.NewSet()
	if base := snap.MergeBase(head, source); base != "" {
		var err error
		if ancestor, err = e.headContent(ctx, base); err != nil {
			return nil, err
		}
	}
	target, err := e.headContent(ctx, head)
	if err != nil {
		return nil, err
	}
	src, err := e.headContent(ctx, source)
	if err != nil {
		return nil, err
	}
	return diff.Merge(ancestor, target, src)
}

// appendRevision writes the snapshot, then links the revision and moves the
// head in one store transaction. A revision is never visible before its
// content.
func (e *Engine) appendRevision(ctx context.Context, b *revision.Branch, parents []string, snapshot triple.Set, info revision.ActionInfo) (*revision.Revision, error) {
	rev := &revision.Revision{
		URI:           e.mint("revision"),
		RepositoryURI: b.RepositoryURI,
		BranchURI:     b.URI,
		Parents:       parents,
		Action:        e.action(info),
	}
	rev.ContentRef = rev.URI

	// A revision sorts strictly after its branch and its parents.
	floors := []time.Time{b.Created.Timestamp}
	for _, p := range parents {
		parent, err := e.box.GetRevision(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("getting parent revision: %w", err)
		}
		floors = append(floors, parent.Timestamp())
	}
	rev.Action.Timestamp = e.clamp(rev.Action.Timestamp, floors...)

	meta, err := e.content.Write(ctx, rev.ContentRef, snapshot)
	if err != nil {
		return nil, fmt.Errorf("writing revision content: %w", err)
	}
	rev.Digest = meta.Digest
	rev.Statements = meta.Statements

	updated, err := e.box.AppendRevision(ctx, rev, b.HeadRevision)
	if err != nil {
		e.logger.Warn("Revision rejected",
			zap.String("branch", b.URI),
			zap.String("expected_head", b.HeadRevision),
			zap.Error(err))
		return nil, err
	}
	*b = *updated

	e.logger.Info("Appended revision",
		zap.String("revision", rev.URI),
		zap.String("branch", b.URI),
		zap.Strings("parents", parents),
		zap.Int("statements", rev.Statements))
	return rev, nil
}

// Tag names a revision.
func (e *Engine) Tag(ctx context.Context, revisionURI, name string, info revision.ActionInfo) (*revision.Tag, error) {
	if err := validation.Name("tag", name); err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	target, err := e.box.GetRevision(ctx, revisionURI)
	if err != nil {
		return nil, fmt.Errorf("getting tag target: %w", err)
	}

	t := &revision.Tag{
		URI:            e.mint("tag"),
		Name:           name,
		RepositoryURI:  target.RepositoryURI,
		TargetRevision: target.URI,
		Action:         e.action(info),
	}
	if err := e.box.CreateTag(ctx, t); err != nil {
		e.logger.Warn("Tag creation rejected",
			zap.String("name", name),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("Created tag",
		zap.String("tag", t.URI),
		zap.String("name", name),
		zap.String("target", target.URI))
	return t, nil
}

// checkHead fails early when the stored head already differs from the
// caller's, before any content is written.
func (e *Engine) checkHead(ctx context.Context, branchURI, expected string) error {
	current, err := e.box.GetBranch(ctx, branchURI)
	if err != nil {
		return fmt.Errorf("getting branch: %w", err)
	}
	if current.HeadRevision != expected {
		e.logger.Warn("Stale branch head",
			zap.String("branch", branchURI),
			zap.String("expected", expected),
			zap.String("actual", current.HeadRevision))
		return errors.StaleHead(branchURI, expected, current.HeadRevision)
	}
	return nil
}

// headContent reads a revision's snapshot; the null revision is empty.
func (e *Engine) headContent(ctx context.Context, revisionURI string) (triple.Set, error) {
	if revisionURI == "" {
		return triple.NewSet(), nil
	}
	rev, err := e.box.GetRevision(ctx, revisionURI)
	if err != nil {
		return nil, fmt.Errorf("getting revision: %w", err)
	}
	set, err := e.content.Read(ctx, rev.ContentRef)
	if err != nil {
		return nil, fmt.Errorf("reading revision content: %w", err)
	}
	return set, nil
}
