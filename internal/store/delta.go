package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/loreweave/internal/engine"
)

// Tick deltas are stored as zstd-compressed JSON. EncodeAll and DecodeAll
// are safe for concurrent use, so one encoder and decoder serve every store.
var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

// compressDelta encodes a tick result for the ticks table.
func compressDelta(res *engine.TickResult) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal delta: %w", err)
	}
	enc, _, err := codec()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// decompressDelta reverses compressDelta.
func decompressDelta(blob []byte) (*engine.TickResult, error) {
	_, dec, err := codec()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	data, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress delta: %w", err)
	}
	var res engine.TickResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unmarshal delta: %w", err)
	}
	return &res, nil
}
