// internal/safe/compression.go
package safe

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionOptions configures how graph bodies are stored
type CompressionOptions struct {
	// Canonical size in bytes from which bodies are compressed
	MinSize int
	// zstd level (1=fastest, 4=best)
	Level int
}

func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024,
		Level:   2,
	}
}

// graphCodec turns canonical N-Triples into stored bodies and back. The
// zstd coders are safe for concurrent EncodeAll/DecodeAll calls.
type graphCodec struct {
	minSize int
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

func newGraphCodec(opts CompressionOptions) (*graphCodec, error) {
	if opts.Level <= 0 {
		opts.Level = DefaultCompressionOptions().Level
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &graphCodec{minSize: opts.MinSize, enc: enc, dec: dec}, nil
}

// encode returns the stored body and whether it is compressed. Bodies that
// do not shrink are stored as-is.
func (c *graphCodec) encode(canonical []byte) ([]byte, bool) {
	if len(canonical) < c.minSize {
		return canonical, false
	}
	body := c.enc.EncodeAll(canonical, make([]byte, 0, len(canonical)/2))
	if len(body) >= len(canonical) {
		return canonical, false
	}
	return body, true
}

// decode reverses encode using the flag recorded in the graph's metadata.
func (c *graphCodec) decode(body []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return body, nil
	}
	canonical, err := c.dec.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("decoding zstd body: %w", err)
	}
	return canonical, nil
}
