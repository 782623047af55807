package content

import (
	"bytes"
	"context"
	"encoding/hex"
	"time"

	"circuitvc/internal/triple"

	"lukechampine.com/blake3"
)

// Store is durable key -> statement-set storage addressed by graph IDs
// (revision URIs). Implementations must be safe for concurrent use.
type Store interface {
	// Read returns a private copy of the graph's statements.
	Read(ctx context.Context, ref string) (triple.Set, error)

	// Write persists a named graph. Graphs are append-only: rewriting an ID
	// with identical content is a no-op, different content is rejected.
	Write(ctx context.Context, graphID string, set triple.Set) (Meta, error)

	// ExportFrom streams the graph in canonical order. The channel closes
	// when the graph is exhausted or ctx is cancelled.
	ExportFrom(ctx context.Context, ref string) (<-chan triple.Statement, error)

	// Stat returns the graph's metadata without decoding it.
	Stat(ctx context.Context, ref string) (Meta, error)
}

// Meta stores metadata about a stored graph
type Meta struct {
	ID         string    `json:"id"`
	Digest     string    `json:"digest"`
	Statements int       `json:"statements"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Canonical encodes a set as sorted N-Triples, the byte form digests and
// storage use.
func Canonical(set triple.Set) []byte {
	var buf bytes.Buffer
	// bytes.Buffer writes never fail
	_ = triple.Write(&buf, set)
	return buf.Bytes()
}

// Digest is the hex BLAKE3 hash of the canonical encoding.
func Digest(set triple.Set) string {
	return DigestBytes(Canonical(set))
}

func DigestBytes(canonical []byte) string {
	sum := blake3.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
