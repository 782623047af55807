// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"circuitvc/internal/config"
	"circuitvc/internal/content"
	"circuitvc/internal/revision"
	revstore "circuitvc/internal/revision/storage"
	"circuitvc/internal/safe"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine is the revision graph: it mutates repositories, branches,
// revisions and tags, persisting snapshots through the content store
// before linking them into the graph.
type Engine struct {
	box     revision.Box
	content content.Store
	logger  *zap.Logger

	baseURI string
	timeout time.Duration
	author  revision.PersonInfo
	now     func() time.Time

	// per-branch commit serialization
	locks sync.Map

	clockMu sync.Mutex
	last    time.Time // newest timestamp handed out by action

	db *badger.DB
}

// Options configures an Engine
type Options struct {
	BaseURI string
	Timeout time.Duration // Bound on each store round-trip; 0 disables
	Author  revision.PersonInfo
	Logger  *zap.Logger
	Now     func() time.Time
}

func New(box revision.Box, store content.Store, opts Options) *Engine {
	if opts.BaseURI == "" {
		opts.BaseURI = config.Default().BaseURI
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Author.Name == "" {
		d := config.Default()
		opts.Author = revision.PersonInfo{URI: d.Author.URI, Name: d.Author.Name}
	}

	return &Engine{
		box:     box,
		content: store,
		logger:  opts.Logger,
		baseURI: opts.BaseURI,
		timeout: opts.Timeout,
		author:  opts.Author,
		now:     opts.Now,
	}
}

// Open builds an Engine over the badger database described by cfg.
func Open(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	opts := badger.DefaultOptions(filepath.Join(cfg.Database.Path, "db"))
	if cfg.Database.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // Disable logging noise

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	contentSafe, err := safe.New(db, safe.Options{
		CacheSize: cfg.Store.CacheSize,
		Compression: safe.CompressionOptions{
			MinSize: cfg.Store.CompressMinSize,
			Level:   cfg.Store.CompressLevel,
		},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing content safe: %w", err)
	}

	e := New(revstore.NewStore(db), contentSafe, Options{
		BaseURI: cfg.BaseURI,
		Timeout: cfg.Store.Timeout.Duration,
		Author: revision.PersonInfo{
			URI:   cfg.Author.URI,
			Name:  cfg.Author.Name,
			Email: cfg.Author.Email,
		},
		Logger: logger,
	})
	e.db = db
	return e, nil
}

// Close releases the database if the Engine opened it.
func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// lock serializes mutations of one branch within this process. The store's
// head check-and-set still guards against other processes.
func (e *Engine) lock(branchURI string) func() {
	v, _ := e.locks.LoadOrStore(branchURI, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// mint returns a fresh URI for an entity kind.
func (e *Engine) mint(kind string) string {
	return e.baseURI + kind + "/" + uuid.NewString()
}

// ShortID is the trailing identifier of a minted URI.
func ShortID(uri string) string {
	if i := strings.LastIndexAny(uri, "/#:"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// action fills in the author and timestamp an operation was called without.
func (e *Engine) action(info revision.ActionInfo) revision.ActionInfo {
	if info.Author.Name == "" && info.Author.URI == "" {
		info.Author = e.author
	}
	if info.Timestamp.IsZero() {
		e.clockMu.Lock()
		info.Timestamp = after(e.now(), e.last)
		e.last = info.Timestamp
		e.clockMu.Unlock()
	}
	info.Timestamp = info.Timestamp.UTC()
	return info
}

// clamp moves ts past floors and records it so later actions sort after it.
func (e *Engine) clamp(ts time.Time, floors ...time.Time) time.Time {
	ts = after(ts, floors...).UTC()
	e.clockMu.Lock()
	if ts.After(e.last) {
		e.last = ts
	}
	e.clockMu.Unlock()
	return ts
}

// after moves ts strictly past every floor.
func after(ts time.Time, floors ...time.Time) time.Time {
	for _, f := range floors {
		if !ts.After(f) {
			ts = f.Add(time.Nanosecond)
		}
	}
	return ts
}
