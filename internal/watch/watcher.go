// internal/watch/watcher.go
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"circuitvc/internal/diff"
	"circuitvc/internal/errors"
	"circuitvc/internal/revision"
	"circuitvc/internal/triple"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Committer is the part of the revision graph the watcher drives.
type Committer interface {
	FindBranch(ctx context.Context, repoURI, name string) (*revision.Branch, error)
	Content(ctx context.Context, revisionURI string) (triple.Set, error)
	Commit(ctx context.Context, b *revision.Branch, d *diff.Diff, info revision.ActionInfo) (*revision.Revision, error)
}

// Options configures a Watcher
type Options struct {
	RepositoryURI string
	Branch        string
	Path          string        // N-Triples file to mirror
	Debounce      time.Duration // Quiet period after the last write
	MaxAttempts   int           // Commit attempts on a moving head
	Author        revision.PersonInfo
	Logger        *zap.Logger
}

// Watcher commits an N-Triples file onto a branch every time it is saved.
type Watcher struct {
	committer Committer
	opts      Options
	path      string
	watcher   *fsnotify.Watcher
	logger    *zap.Logger
}

func New(c Committer, opts Options) (*Watcher, error) {
	if opts.Path == "" {
		return nil, errors.ValidationError("watch path is required", nil)
	}
	if opts.Branch == "" {
		opts.Branch = revision.MasterBranch
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving watch path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	// Editors often replace the file, so watch its directory.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("adding directory to watcher: %w", err)
	}

	return &Watcher{
		committer: c,
		opts:      opts,
		path:      path,
		watcher:   fw,
		logger:    opts.Logger.With(zap.String("path", path), zap.String("branch", opts.Branch)),
	}, nil
}

// Run processes filesystem events until ctx is done or the watcher is
// closed. Each burst of writes produces at most one commit.
func (w *Watcher) Run(ctx context.Context) error {
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fire = time.After(w.opts.Debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			rev, err := w.Sync(ctx)
			switch {
			case err != nil:
				w.logger.Error("Auto-commit failed", zap.Error(err))
			case rev != nil:
				w.logger.Info("Auto-committed",
					zap.String("revision", rev.URI),
					zap.Int("statements", rev.Statements))
			}
		}
	}
}

// Sync commits the file's current content if it differs from the branch
// head. It returns nil when there was nothing to commit. A head that moves
// underneath is re-read and the diff recomputed, up to MaxAttempts times.
func (w *Watcher) Sync(ctx context.Context) (*revision.Revision, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", w.path, err)
	}
	defer f.Close()

	final, err := triple.Parse(f)
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("parsing %s: %v", w.path, err), nil)
	}

	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		b, err := w.committer.FindBranch(ctx, w.opts.RepositoryURI, w.opts.Branch)
		if err != nil {
			return nil, fmt.Errorf("finding branch: %w", err)
		}

		current := triple.NewSet()
		if b.HeadRevision != "" {
			if current, err = w.committer.Content(ctx, b.HeadRevision); err != nil {
				return nil, fmt.Errorf("reading head content: %w", err)
			}
		}

		d := diff.Compute(current, final)
		if d.IsEmpty() {
			return nil, nil
		}

		rev, err := w.committer.Commit(ctx, b, d, revision.ActionInfo{
			Author:  w.opts.Author,
			Message: fmt.Sprintf("Auto-commit %s (+%d -%d)", filepath.Base(w.path), d.Additions.Len(), d.Removals.Len()),
		})
		if err == nil {
			return rev, nil
		}
		if !errors.Is(err, errors.ErrStaleHead) {
			return nil, err
		}

		w.logger.Debug("Head moved, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
		lastErr = err
	}
	return nil, lastErr
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
