// internal/safe/safe.go
package safe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"circuitvc/internal/content"
	"circuitvc/internal/errors"
	"circuitvc/internal/triple"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	graphPrefix = "graph:"
	metaPrefix  = "graphmeta:"
)

// Safe is the badger-backed content.Store. Graph bodies are canonical
// N-Triples, zstd-compressed above a size threshold; decoded sets are kept
// in an LRU cache.
type Safe struct {
	db    *badger.DB
	cache *lru.Cache[string, triple.Set]
	codec *graphCodec
	now   func() time.Time
}

var _ content.Store = (*Safe)(nil)

// Options configures Safe behavior
type Options struct {
	CacheSize   int // Number of decoded graphs to cache
	Compression CompressionOptions
}

// New creates a new Safe instance
func New(db *badger.DB, opts Options) (*Safe, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Compression.MinSize == 0 && opts.Compression.Level == 0 {
		opts.Compression = DefaultCompressionOptions()
	}

	cache, err := lru.New[string, triple.Set](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	codec, err := newGraphCodec(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating graph codec: %w", err)
	}

	return &Safe{
		db:    db,
		cache: cache,
		codec: codec,
		now:   time.Now,
	}, nil
}

// Write stores a graph body and its metadata in one transaction.
func (s *Safe) Write(ctx context.Context, graphID string, set triple.Set) (content.Meta, error) {
	if graphID == "" {
		return content.Meta{}, errors.ValidationError("graph id is required", nil)
	}
	if err := errors.FromContext(ctx, "write graph"); err != nil {
		return content.Meta{}, err
	}

	canonical := content.Canonical(set)
	body, compressed := s.codec.encode(canonical)
	meta := content.Meta{
		ID:         graphID,
		Digest:     content.DigestBytes(canonical),
		Statements: set.Len(),
		Size:       int64(len(canonical)),
		Compressed: compressed,
		CreatedAt:  s.now().UTC(),
	}

	existing := false
	err := s.db.Update(func(txn *badger.Txn) error {
		prev, err := getMetaTxn(txn, graphID)
		switch {
		case err == nil:
			if prev.Digest != meta.Digest {
				return errors.ValidationError(
					fmt.Sprintf("graph %s already written with different content", graphID), nil)
			}
			meta = prev
			existing = true
			return nil
		case !errors.Is(err, errors.ErrNotFound):
			return err
		}

		data, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshaling graph meta: %w", err)
		}
		if err := txn.Set([]byte(graphPrefix+graphID), body); err != nil {
			return err
		}
		if err := txn.Set([]byte(metaPrefix+graphID), data); err != nil {
			return err
		}

		// last chance to abandon the transaction untouched
		return errors.FromContext(ctx, "write graph")
	})
	if err != nil {
		return content.Meta{}, wrapIO("write graph", err)
	}

	if !existing {
		s.cache.Add(graphID, set.Clone())
	}
	return meta, nil
}

// Read retrieves a graph by ID
func (s *Safe) Read(ctx context.Context, ref string) (triple.Set, error) {
	if err := errors.FromContext(ctx, "read graph"); err != nil {
		return nil, err
	}

	// Check cache first
	if set, ok := s.cache.Get(ref); ok {
		return set.Clone(), nil
	}

	var (
		meta content.Meta
		body []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if meta, err = getMetaTxn(txn, ref); err != nil {
			return err
		}
		item, err := txn.Get([]byte(graphPrefix + ref))
		if err == badger.ErrKeyNotFound {
			return errors.CorruptHistory(ref, "graph metadata without body")
		}
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, wrapIO("read graph", err)
	}

	canonical, err := s.codec.decode(body, meta.Compressed)
	if err != nil {
		return nil, errors.IO("read graph", err)
	}

	// Verify digest
	if content.DigestBytes(canonical) != meta.Digest {
		return nil, errors.CorruptHistory(ref, "graph digest mismatch")
	}

	set, err := triple.Parse(bytes.NewReader(canonical))
	if err != nil {
		return nil, errors.CorruptHistory(ref, err.Error())
	}

	s.cache.Add(ref, set)
	return set.Clone(), nil
}

// Stat returns graph metadata
func (s *Safe) Stat(ctx context.Context, ref string) (content.Meta, error) {
	if err := errors.FromContext(ctx, "stat graph"); err != nil {
		return content.Meta{}, err
	}
	var meta content.Meta
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = getMetaTxn(txn, ref)
		return err
	})
	if err != nil {
		return content.Meta{}, wrapIO("stat graph", err)
	}
	return meta, nil
}

// ExportFrom streams a graph's statements in canonical order.
func (s *Safe) ExportFrom(ctx context.Context, ref string) (<-chan triple.Statement, error) {
	set, err := s.Read(ctx, ref)
	if err != nil {
		return nil, err
	}

	out := make(chan triple.Statement)
	go func() {
		defer close(out)
		for _, st := range set.Sorted() {
			select {
			case out <- st:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Exists checks if a graph exists
func (s *Safe) Exists(ctx context.Context, ref string) (bool, error) {
	if s.cache.Contains(ref) {
		return true, nil
	}
	_, err := s.Stat(ctx, ref)
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func getMetaTxn(txn *badger.Txn, id string) (content.Meta, error) {
	var meta content.Meta
	item, err := txn.Get([]byte(metaPrefix + id))
	if err == badger.ErrKeyNotFound {
		return meta, errors.NotFound(fmt.Sprintf("graph not found: %s", id))
	}
	if err != nil {
		return meta, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	})
	return meta, err
}

// wrapIO keeps typed errors and classifies the rest as store failures.
func wrapIO(op string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.IO(op, err)
}
