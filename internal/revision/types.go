// internal/revision/types.go
package revision

import (
	"context"
	"sort"
	"time"
)

// MasterBranch is the branch every repository is created with.
const MasterBranch = "master"

// PersonInfo identifies the author of an action
type PersonInfo struct {
	URI   string `json:"uri"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// ActionInfo is attached to every mutating operation
type ActionInfo struct {
	Author    PersonInfo `json:"author"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// Repository owns a set of branches and tags
type Repository struct {
	URI     string     `json:"uri"`
	Name    string     `json:"name"`
	Created ActionInfo `json:"created"`
}

// Branch is a mutable named pointer to a revision plus its fork point.
// Revision references are URIs; an empty string is a null reference.
type Branch struct {
	URI            string     `json:"uri"`
	Name           string     `json:"name"`
	RepositoryURI  string     `json:"repository"`
	ParentRevision string     `json:"parent_revision,omitempty"`
	HeadRevision   string     `json:"head_revision,omitempty"`
	TailRevision   string     `json:"tail_revision,omitempty"`
	Created        ActionInfo `json:"created"`
}

// HasCommits reports whether any revision has been committed on b.
func (b *Branch) HasCommits() bool {
	return b.HeadRevision != "" && b.HeadRevision != b.TailRevision
}

// IsRoot reports whether b is a repository's first branch (no fork point).
func (b *Branch) IsRoot() bool {
	return b.TailRevision == ""
}

// Revision is an immutable commit node in the history DAG
type Revision struct {
	URI           string     `json:"uri"`
	RepositoryURI string     `json:"repository"`
	BranchURI     string     `json:"branch"`
	Parents       []string   `json:"parents"`
	Action        ActionInfo `json:"action"`
	ContentRef    string     `json:"content_ref"`
	Digest        string     `json:"digest"`
	Statements    int        `json:"statements"`
}

func (r *Revision) Timestamp() time.Time { return r.Action.Timestamp }

// IsMerge reports whether r has more than one parent.
func (r *Revision) IsMerge() bool { return len(r.Parents) > 1 }

// Tag is an immutable named pointer to a revision
type Tag struct {
	URI            string     `json:"uri"`
	Name           string     `json:"name"`
	RepositoryURI  string     `json:"repository"`
	TargetRevision string     `json:"target_revision"`
	Action         ActionInfo `json:"action"`
}

// Box persists the revision graph. Implementations enforce name uniqueness
// and the head check-and-set atomically with the record writes.
type Box interface {
	// CreateRepository stores repo together with its initial branch.
	CreateRepository(ctx context.Context, repo *Repository, master *Branch) error
	GetRepository(ctx context.Context, uri string) (*Repository, error)
	FindRepository(ctx context.Context, name string) (*Repository, error)
	ListRepositories(ctx context.Context) ([]*Repository, error)

	CreateBranch(ctx context.Context, b *Branch) error
	GetBranch(ctx context.Context, uri string) (*Branch, error)
	FindBranch(ctx context.Context, repoURI, name string) (*Branch, error)
	ListBranches(ctx context.Context, repoURI string) ([]*Branch, error)

	// AppendRevision stores rev and advances its branch head from
	// expectedHead to rev.URI. A moved head fails with a StaleHead error
	// and nothing is written.
	AppendRevision(ctx context.Context, rev *Revision, expectedHead string) (*Branch, error)
	GetRevision(ctx context.Context, uri string) (*Revision, error)
	ListRevisions(ctx context.Context, repoURI string) ([]*Revision, error)

	CreateTag(ctx context.Context, t *Tag) error
	GetTag(ctx context.Context, uri string) (*Tag, error)
	FindTag(ctx context.Context, repoURI, name string) (*Tag, error)
	ListTags(ctx context.Context, repoURI string) ([]*Tag, error)
}

// Snapshot is a fetched, read-only copy of one repository's DAG.
type Snapshot struct {
	Repository *Repository

	revisions map[string]*Revision
	branches  map[string]*Branch
	tags      map[string][]*Tag
}

func NewSnapshot(repo *Repository, revisions []*Revision, branches []*Branch, tags []*Tag) *Snapshot {
	s := &Snapshot{
		Repository: repo,
		revisions:  make(map[string]*Revision, len(revisions)),
		branches:   make(map[string]*Branch, len(branches)),
		tags:       make(map[string][]*Tag),
	}
	for _, r := range revisions {
		s.revisions[r.URI] = r
	}
	for _, b := range branches {
		s.branches[b.URI] = b
	}
	for _, t := range tags {
		s.tags[t.TargetRevision] = append(s.tags[t.TargetRevision], t)
	}
	for _, ts := range s.tags {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Name < ts[j].Name })
	}
	return s
}

func (s *Snapshot) Revision(uri string) (*Revision, bool) {
	r, ok := s.revisions[uri]
	return r, ok
}

func (s *Snapshot) Branch(uri string) (*Branch, bool) {
	b, ok := s.branches[uri]
	return b, ok
}

// TagsFor returns the tags targeting a revision, ordered by name.
func (s *Snapshot) TagsFor(revisionURI string) []*Tag {
	return s.tags[revisionURI]
}

// Branches returns every branch in the snapshot ordered by name.
func (s *Snapshot) Branches() []*Branch {
	out := make([]*Branch, 0, len(s.branches))
	for _, b := range s.branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Revisions returns every revision ordered newest first, ties by URI.
func (s *Snapshot) Revisions() []*Revision {
	out := make([]*Revision, 0, len(s.revisions))
	for _, r := range s.revisions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return Newer(out[i], out[j]) })
	return out
}

// Newer is the strict newest-first order over revisions: timestamp
// descending, then URI ascending.
func Newer(a, b *Revision) bool {
	if !a.Timestamp().Equal(b.Timestamp()) {
		return a.Timestamp().After(b.Timestamp())
	}
	return a.URI < b.URI
}
