package shard

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"
)

// ErrIO is the kind of every shard write failure.
var ErrIO = errors.New("shard io error")

// IOError reports a failed write to a shard.
type IOError struct {
	Shard string
	Op    string
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("shard %s: %s: %v", e.Shard, e.Op, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }

// Compression of shard payloads.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// ParseCompression accepts "", "none" and "zstd".
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown compression: %s", s)
	}
}

// Name returns the shard name of a worker, e.g. data_3.json or data_3.json.zst.
func Name(prefix string, worker int, c Compression) string {
	name := fmt.Sprintf("%s%d.json", prefix, worker)
	if c == CompressionZstd {
		name += ".zst"
	}
	return name
}

var (
	docOpen   = []byte("[\n")
	docIndent = []byte("  ")
	recordEnd = []byte(",\n")
	// the trailing comma of the last record needs something to precede
	docClose = []byte("  {}\n]\n")
)

// Writer appends records to one shard as a JSON array terminated by an empty
// object. A Writer is owned by a single worker.
type Writer struct {
	name    string
	dst     io.WriteCloser
	enc     *zstd.Encoder
	w       *bufio.Writer
	records int64
	bytes   int64
	closed  bool
}

// Open creates name on sink and writes the document header.
func Open(ctx context.Context, sink Sink, name string, c Compression) (*Writer, error) {
	dst, err := sink.Create(ctx, name)
	if err != nil {
		return nil, &IOError{Shard: name, Op: "create", Err: err}
	}

	sw := &Writer{name: name, dst: dst}
	var out io.Writer = dst
	if c == CompressionZstd {
		enc, err := zstd.NewWriter(dst, zstd.WithEncoderConcurrency(1))
		if err != nil {
			dst.Close()
			return nil, &IOError{Shard: name, Op: "zstd.NewWriter", Err: err}
		}
		sw.enc = enc
		out = enc
	}
	sw.w = bufio.NewWriterSize(out, 64*1024)

	if err := sw.write(docOpen); err != nil {
		sw.Close()
		return nil, err
	}
	return sw, nil
}

// Append serializes rec and appends it to the shard.
func (sw *Writer) Append(rec any) error {
	data, err := json.MarshalIndent(rec, string(docIndent), string(docIndent))
	if err != nil {
		return fmt.Errorf("shard %s: marshal record: %w", sw.name, err)
	}
	if err := sw.write(docIndent, data, recordEnd); err != nil {
		return err
	}
	sw.records++
	return nil
}

// Close writes the closing sentinel and releases the destination. It is safe
// to call more than once; only the first call has an effect.
func (sw *Writer) Close() error {
	if sw.closed {
		return nil
	}
	sw.closed = true

	var result error
	if err := sw.write(docClose); err != nil {
		result = multierror.Append(result, err)
	}
	if err := sw.w.Flush(); err != nil {
		result = multierror.Append(result, &IOError{Shard: sw.name, Op: "flush", Err: err})
	}
	if sw.enc != nil {
		if err := sw.enc.Close(); err != nil {
			result = multierror.Append(result, &IOError{Shard: sw.name, Op: "zstd close", Err: err})
		}
	}
	if err := sw.dst.Close(); err != nil {
		result = multierror.Append(result, &IOError{Shard: sw.name, Op: "close", Err: err})
	}
	return result
}

// Name is the shard name.
func (sw *Writer) Name() string {
	return sw.name
}

// Records is the number of appended records.
func (sw *Writer) Records() int64 {
	return sw.records
}

// Bytes is the number of uncompressed bytes written so far.
func (sw *Writer) Bytes() int64 {
	return sw.bytes
}

func (sw *Writer) write(chunks ...[]byte) error {
	for _, p := range chunks {
		n, err := sw.w.Write(p)
		sw.bytes += int64(n)
		if err != nil {
			return &IOError{Shard: sw.name, Op: "write", Err: err}
		}
	}
	return nil
}
