// Package compressor implements engine.Compressor over zstd, used to shrink
// LOAD_SAVESTATE transfers before they hit the wire.
package compressor

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Zstd is a reusable zstd encoder/decoder pair. It is safe for concurrent
// use; the engine only ever calls it from its own single goroutine, but a
// host embedding multiple engines may share one instance.
type Zstd struct {
	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New builds a Zstd compressor at the given level (zstd.SpeedDefault if
// level is zero).
func New(level zstd.EncoderLevel) (*Zstd, error) {
	if level == 0 {
		level = zstd.SpeedDefault
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("compressor: new encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("compressor: new decoder: %w", err)
	}

	return &Zstd{enc: enc, dec: dec}, nil
}

// Compress returns in compressed with zstd framing.
func (z *Zstd) Compress(in []byte) ([]byte, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	return z.enc.EncodeAll(in, make([]byte, 0, len(in))), nil
}

// Decompress restores in to its original uncompressedSize bytes.
func (z *Zstd) Decompress(in []byte, uncompressedSize int) ([]byte, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	out, err := z.dec.DecodeAll(in, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("compressor: decode: %w", err)
	}

	return out, nil
}

// Close releases the encoder's background goroutines.
func (z *Zstd) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	err := z.enc.Close()
	z.dec.Close()

	return err
}
