package shard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrUnterminated is returned for a shard without the closing sentinel.
var ErrUnterminated = errors.New("shard is not terminated")

// NewReader returns a reader of the JSON payload of a shard. Names ending
// in .zst are decompressed.
func NewReader(name string, r io.Reader) (io.ReadCloser, error) {
	if !strings.HasSuffix(name, ".zst") {
		return io.NopCloser(r), nil
	}
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return dec.IOReadCloser(), nil
}

// ReadRecords streams the records of a shard document to fn, in file order.
// Only a trailing {} is the closing sentinel; an empty object before it is a
// record. The sentinel is not passed to fn.
func ReadRecords(r io.Reader, fn func(rec map[string]any) error) (int64, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return 0, err
	}

	var n int64
	terminated := false
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return n, fmt.Errorf("decode record %d: %w", n, err)
		}
		if !dec.More() {
			if len(rec) != 0 {
				return n, ErrUnterminated
			}
			terminated = true
			break
		}
		if err := fn(rec); err != nil {
			return n, err
		}
		n++
	}
	if err := expectDelim(dec, ']'); err != nil {
		return n, err
	}
	if !terminated {
		return n, ErrUnterminated
	}
	return n, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrUnterminated
		}
		return fmt.Errorf("read token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
