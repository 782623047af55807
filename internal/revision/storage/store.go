// internal/revision/storage/store.go
package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"

	"circuitvc/internal/errors"
	"circuitvc/internal/revision"
	"circuitvc/internal/storage"

	"github.com/dgraph-io/badger/v4"
)

// Store implements revision.Box on top of badger. Every mutation runs in a
// single transaction, so name claims, records and head moves land together
// or not at all.
type Store struct {
	db *badger.DB

	repositories *storage.BadgerStore
	branches     *storage.BadgerStore
	revisions    *storage.BadgerStore
	tags         *storage.BadgerStore

	repositoryNames *storage.Index
	branchNames     *storage.Index
	tagNames        *storage.Index
}

var _ revision.Box = (*Store)(nil)

func NewStore(db *badger.DB) *Store {
	return &Store{
		db:              db,
		repositories:    storage.NewBadgerStore(db, "repository"),
		branches:        storage.NewBadgerStore(db, "branch"),
		revisions:       storage.NewBadgerStore(db, "revision"),
		tags:            storage.NewBadgerStore(db, "tag"),
		repositoryNames: storage.NewIndex("repository-name"),
		branchNames:     storage.NewIndex("branch-name"),
		tagNames:        storage.NewIndex("tag-name"),
	}
}

// Entity wrappers implementing storage.Entity
type repositoryEntity struct{ *revision.Repository }
type branchEntity struct{ *revision.Branch }
type revisionEntity struct{ *revision.Revision }
type tagEntity struct{ *revision.Tag }

func (e *repositoryEntity) GetID() string { return e.URI }
func (e *branchEntity) GetID() string     { return e.URI }
func (e *revisionEntity) GetID() string   { return e.URI }
func (e *tagEntity) GetID() string        { return e.URI }

// update runs fn in a read-write transaction bounded by ctx. The context
// is checked again before commit so an expired deadline discards the writes.
func (s *Store) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := errors.FromContext(ctx, op); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := fn(txn); err != nil {
			return err
		}
		return errors.FromContext(ctx, op)
	})
	return classify(op, err)
}

func (s *Store) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := errors.FromContext(ctx, op); err != nil {
		return err
	}
	return classify(op, s.db.View(fn))
}

// classify maps storage failures onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound(err.Error())
	}
	return errors.IO(op, err)
}

func (s *Store) CreateRepository(ctx context.Context, repo *revision.Repository, master *revision.Branch) error {
	if repo.Name == "" {
		return errors.ValidationError("repository name is required", nil)
	}
	if master == nil || master.RepositoryURI != repo.URI {
		return errors.ValidationError("repository needs an initial branch", nil)
	}

	return s.update(ctx, "create repository", func(txn *badger.Txn) error {
		if err := s.repositoryNames.ClaimTxn(txn, "", repo.Name, repo.URI); err != nil {
			return claimErr("repository", repo.Name, err)
		}
		if err := s.repositories.InsertTxn(txn, &repositoryEntity{repo}); err != nil {
			return err
		}
		return s.insertBranchTxn(txn, master)
	})
}

func (s *Store) GetRepository(ctx context.Context, uri string) (*revision.Repository, error) {
	repo := &revision.Repository{}
	err := s.view(ctx, "get repository", func(txn *badger.Txn) error {
		return s.repositories.GetTxn(txn, uri, &repositoryEntity{repo})
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *Store) FindRepository(ctx context.Context, name string) (*revision.Repository, error) {
	repo := &revision.Repository{}
	err := s.view(ctx, "find repository", func(txn *badger.Txn) error {
		uri, err := s.repositoryNames.LookupTxn(txn, "", name)
		if err != nil {
			return err
		}
		return s.repositories.GetTxn(txn, uri, &repositoryEntity{repo})
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *Store) ListRepositories(ctx context.Context) ([]*revision.Repository, error) {
	if err := errors.FromContext(ctx, "list repositories"); err != nil {
		return nil, err
	}
	var repos []*revision.Repository
	if err := s.repositories.List(&repos); err != nil {
		return nil, errors.IO("list repositories", err)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })
	return repos, nil
}

func (s *Store) CreateBranch(ctx context.Context, b *revision.Branch) error {
	if b.Name == "" {
		return errors.ValidationError("branch name is required", nil)
	}
	return s.update(ctx, "create branch", func(txn *badger.Txn) error {
		if err := s.repositories.GetTxn(txn, b.RepositoryURI, &repositoryEntity{&revision.Repository{}}); err != nil {
			return err
		}
		if b.TailRevision != "" {
			tail := &revision.Revision{}
			if err := s.revisions.GetTxn(txn, b.TailRevision, &revisionEntity{tail}); err != nil {
				return err
			}
			if tail.RepositoryURI != b.RepositoryURI {
				return errors.ValidationError("fork point belongs to another repository", nil)
			}
		}
		return s.insertBranchTxn(txn, b)
	})
}

func (s *Store) insertBranchTxn(txn *badger.Txn, b *revision.Branch) error {
	if err := s.branchNames.ClaimTxn(txn, b.RepositoryURI, b.Name, b.URI); err != nil {
		return claimErr("branch", b.Name, err)
	}
	return s.branches.InsertTxn(txn, &branchEntity{b})
}

func (s *Store) GetBranch(ctx context.Context, uri string) (*revision.Branch, error) {
	b := &revision.Branch{}
	err := s.view(ctx, "get branch", func(txn *badger.Txn) error {
		return s.branches.GetTxn(txn, uri, &branchEntity{b})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) FindBranch(ctx context.Context, repoURI, name string) (*revision.Branch, error) {
	b := &revision.Branch{}
	err := s.view(ctx, "find branch", func(txn *badger.Txn) error {
		uri, err := s.branchNames.LookupTxn(txn, repoURI, name)
		if err != nil {
			return err
		}
		return s.branches.GetTxn(txn, uri, &branchEntity{b})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) ListBranches(ctx context.Context, repoURI string) ([]*revision.Branch, error) {
	if err := errors.FromContext(ctx, "list branches"); err != nil {
		return nil, err
	}
	var all []*revision.Branch
	if err := s.branches.List(&all); err != nil {
		return nil, errors.IO("list branches", err)
	}

	var result []*revision.Branch
	for _, b := range all {
		if b.RepositoryURI == repoURI {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) AppendRevision(ctx context.Context, rev *revision.Revision, expectedHead string) (*revision.Branch, error) {
	b := &revision.Branch{}
	err := s.update(ctx, "append revision", func(txn *badger.Txn) error {
		if err := s.branches.GetTxn(txn, rev.BranchURI, &branchEntity{b}); err != nil {
			return err
		}
		if b.RepositoryURI != rev.RepositoryURI {
			return errors.ValidationError("branch belongs to another repository", nil)
		}
		if b.HeadRevision != expectedHead {
			return errors.StaleHead(b.URI, expectedHead, b.HeadRevision)
		}

		for _, p := range rev.Parents {
			parent := &revision.Revision{}
			if err := s.revisions.GetTxn(txn, p, &revisionEntity{parent}); err != nil {
				return errors.ValidationError(fmt.Sprintf("unknown parent revision %s", p), nil)
			}
		}
		if err := s.revisions.InsertTxn(txn, &revisionEntity{rev}); err != nil {
			if stderrors.Is(err, storage.ErrExists) {
				return errors.ValidationError(fmt.Sprintf("revision %s already exists", rev.URI), nil)
			}
			return err
		}

		b.HeadRevision = rev.URI
		return s.branches.SaveTxn(txn, &branchEntity{b})
	})
	if stderrors.Is(err, badger.ErrConflict) {
		// a concurrent transaction moved the head between our read and commit
		return nil, errors.StaleHead(rev.BranchURI, expectedHead, "").Wrap(err)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) GetRevision(ctx context.Context, uri string) (*revision.Revision, error) {
	r := &revision.Revision{}
	err := s.view(ctx, "get revision", func(txn *badger.Txn) error {
		return s.revisions.GetTxn(txn, uri, &revisionEntity{r})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRevisions returns a repository's revisions newest first.
func (s *Store) ListRevisions(ctx context.Context, repoURI string) ([]*revision.Revision, error) {
	if err := errors.FromContext(ctx, "list revisions"); err != nil {
		return nil, err
	}
	var all []*revision.Revision
	if err := s.revisions.List(&all); err != nil {
		return nil, errors.IO("list revisions", err)
	}

	var result []*revision.Revision
	for _, r := range all {
		if r.RepositoryURI == repoURI {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return revision.Newer(result[i], result[j]) })
	return result, nil
}

func (s *Store) CreateTag(ctx context.Context, t *revision.Tag) error {
	if t.Name == "" {
		return errors.ValidationError("tag name is required", nil)
	}
	return s.update(ctx, "create tag", func(txn *badger.Txn) error {
		target := &revision.Revision{}
		if err := s.revisions.GetTxn(txn, t.TargetRevision, &revisionEntity{target}); err != nil {
			return err
		}
		if target.RepositoryURI != t.RepositoryURI {
			return errors.ValidationError("tag target belongs to another repository", nil)
		}
		if err := s.tagNames.ClaimTxn(txn, t.RepositoryURI, t.Name, t.URI); err != nil {
			return claimErr("tag", t.Name, err)
		}
		return s.tags.InsertTxn(txn, &tagEntity{t})
	})
}

func (s *Store) GetTag(ctx context.Context, uri string) (*revision.Tag, error) {
	t := &revision.Tag{}
	err := s.view(ctx, "get tag", func(txn *badger.Txn) error {
		return s.tags.GetTxn(txn, uri, &tagEntity{t})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) FindTag(ctx context.Context, repoURI, name string) (*revision.Tag, error) {
	t := &revision.Tag{}
	err := s.view(ctx, "find tag", func(txn *badger.Txn) error {
		uri, err := s.tagNames.LookupTxn(txn, repoURI, name)
		if err != nil {
			return err
		}
		return s.tags.GetTxn(txn, uri, &tagEntity{t})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTags(ctx context.Context, repoURI string) ([]*revision.Tag, error) {
	if err := errors.FromContext(ctx, "list tags"); err != nil {
		return nil, err
	}
	var all []*revision.Tag
	if err := s.tags.List(&all); err != nil {
		return nil, errors.IO("list tags", err)
	}

	var result []*revision.Tag
	for _, t := range all {
		if t.RepositoryURI == repoURI {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func claimErr(kind, name string, err error) error {
	if stderrors.Is(err, storage.ErrExists) {
		return errors.DuplicateName(kind, name)
	}
	return err
}
