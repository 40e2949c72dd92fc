package shard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocloud.dev/blob/memblob"
)

type failingSink struct {
	createErr error
	writeErr  error
}

type failingWriter struct {
	err error
}

func (w *failingWriter) Write(p []byte) (int, error) { return 0, w.err }
func (w *failingWriter) Close() error                { return nil }

func (s *failingSink) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &failingWriter{err: s.writeErr}, nil
}
func (s *failingSink) URI(name string) string { return "fail://" + name }
func (s *failingSink) Close() error           { return nil }

func TestName(t *testing.T) {
	if got := Name("data_", 3, CompressionNone); got != "data_3.json" {
		t.Errorf("got %s", got)
	}
	if got := Name("out/p-", 0, CompressionZstd); got != "out/p-0.json.zst" {
		t.Errorf("got %s", got)
	}
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "zstd": CompressionZstd} {
		got, err := ParseCompression(in)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Errorf("expected error for gzip")
	}
}

func TestWriter_LocalDocumentIsValidJSON(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalSink(dir)
	if err != nil {
		t.Fatalf("NewLocalSink: %v", err)
	}
	ctx := context.Background()

	sw, err := Open(ctx, sink, "data_0.json", CompressionNone)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	recs := []map[string]any{
		{"subscription": "this"},
		{"city": "Iasi", "temp": 12.5},
	}
	for _, r := range recs {
		if err := sw.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if sw.Records() != 2 {
		t.Errorf("Records: got %d want 2", sw.Records())
	}

	data, err := os.ReadFile(filepath.Join(dir, "data_0.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if int64(len(data)) != sw.Bytes() {
		t.Errorf("Bytes: got %d, file has %d", sw.Bytes(), len(data))
	}
	if !strings.HasPrefix(string(data), "[\n") || !strings.HasSuffix(string(data), "{}\n]\n") {
		t.Fatalf("unexpected framing:\n%s", data)
	}

	var doc []map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("shard is not valid JSON: %v\n%s", err, data)
	}
	if len(doc) != 3 || len(doc[2]) != 0 {
		t.Fatalf("expected 2 records and the sentinel, got %v", doc)
	}

	n, err := ReadRecords(bytes.NewReader(data), func(map[string]any) error { return nil })
	if err != nil || n != 2 {
		t.Fatalf("ReadRecords: n=%d err=%v", n, err)
	}

	if got := sink.URI("data_0.json"); !strings.HasPrefix(got, "file://") || !strings.HasSuffix(got, "data_0.json") {
		t.Errorf("unexpected URI %s", got)
	}
}

func TestWriter_EmptyShardIsTerminated(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	sink := NewBlobSink(bucket, "mem://test")
	defer sink.Close()

	sw, err := Open(ctx, sink, "data_1.json", CompressionNone)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := bucket.ReadAll(ctx, "data_1.json")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "[\n  {}\n]\n" {
		t.Fatalf("unexpected empty shard %q", data)
	}
	n, err := ReadRecords(bytes.NewReader(data), func(map[string]any) error { return nil })
	if err != nil || n != 0 {
		t.Fatalf("ReadRecords: n=%d err=%v", n, err)
	}
	if got := sink.URI("data_1.json"); got != "mem://test/data_1.json" {
		t.Errorf("unexpected URI %s", got)
	}
}

func TestWriter_Zstd(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	sink := NewBlobSink(bucket, "mem://")
	defer sink.Close()

	name := Name("data_", 0, CompressionZstd)
	sw, err := Open(ctx, sink, name, CompressionZstd)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 100; i++ {
		if err := sw.Append(map[string]any{"i": i}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := bucket.NewReader(ctx, name, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer raw.Close()
	r, err := NewReader(name, raw)
	if err != nil {
		t.Fatalf("shard.NewReader: %v", err)
	}
	defer r.Close()

	var seen int
	n, err := ReadRecords(r, func(rec map[string]any) error {
		if _, ok := rec["i"]; !ok {
			t.Errorf("record without i: %v", rec)
		}
		seen++
		return nil
	})
	if err != nil || n != 100 || seen != 100 {
		t.Fatalf("ReadRecords: n=%d seen=%d err=%v", n, seen, err)
	}
}

func TestOpen_CreateFailureIsIOError(t *testing.T) {
	_, err := Open(context.Background(), &failingSink{createErr: errors.New("denied")}, "x.json", CompressionNone)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	var ioe *IOError
	if !errors.As(err, &ioe) || ioe.Op != "create" {
		t.Fatalf("expected create IOError, got %v", err)
	}
}

func TestWriter_WriteFailureIsIOError(t *testing.T) {
	sw, err := Open(context.Background(), &failingSink{writeErr: errors.New("disk full")}, "x.json", CompressionNone)
	if err != nil {
		// the header is buffered, so Open succeeds
		t.Fatalf("Open: %v", err)
	}
	// bigger than the buffer, so the write reaches the sink
	big := map[string]any{"payload": strings.Repeat("x", 128*1024)}
	if err := sw.Append(big); !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO from Append, got %v", err)
	}
	if err := sw.Close(); !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO from Close, got %v", err)
	}
}

func TestReadRecords_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"no sentinel":     `[{"a": 1}]`,
		"not an array":    `{"a": 1}`,
		"after sentinel":  `[{}, {"a": 1}]`,
		"truncated array": "[\n  {\"a\": 1},\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadRecords(strings.NewReader(doc), func(map[string]any) error { return nil }); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestWriteManifest(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	sink := NewBlobSink(bucket, "mem://")
	defer sink.Close()

	m := &Manifest{
		RunID:         "run-1",
		Status:        StatusOK,
		Threads:       2,
		Publications:  3,
		Subscriptions: 2,
		Shards: []ShardInfo{
			{Worker: 0, Name: "data_0.json", Tasks: 2},
			{Worker: 1, Name: "data_1.json", Tasks: 3},
		},
	}
	if err := WriteManifest(ctx, sink, ManifestName("data_"), m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	data, err := bucket.ReadAll(ctx, "data_manifest.json")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var got Manifest
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunID != "run-1" || len(got.Shards) != 2 || got.Shards[1].Tasks != 3 {
		t.Fatalf("unexpected manifest %+v", got)
	}
}

func TestNewSink(t *testing.T) {
	ctx := context.Background()
	if _, err := NewSink(ctx, SinkConfig{Backend: BackendLocal}); err == nil {
		t.Errorf("expected error without LocalDir")
	}
	if _, err := NewSink(ctx, SinkConfig{Backend: BackendBlob}); err == nil {
		t.Errorf("expected error without BucketURL")
	}
	if _, err := NewSink(ctx, SinkConfig{Backend: "ftp"}); err == nil {
		t.Errorf("expected error for unknown backend")
	}

	s, err := NewSink(ctx, SinkConfig{Backend: BackendBlob, BucketURL: "mem://"})
	if err != nil {
		t.Fatalf("NewSink mem: %v", err)
	}
	defer s.Close()
}

func TestBucketBase(t *testing.T) {
	cases := map[string]string{
		"s3://bucket?region=us-east-1":             "s3://bucket",
		"s3://bucket?region=us-east-1&prefix=gen/": "s3://bucket/gen",
		"gs://bucket/":                             "gs://bucket",
		"file:///tmp/out":                          "file:///tmp/out",
		"mem://":                                   "mem://",
	}
	for in, want := range cases {
		if got := bucketBase(in); got != want {
			t.Errorf("bucketBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadRecords_EmptyRecordsBeforeSentinel(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	sink := NewBlobSink(bucket, "mem://")
	defer sink.Close()

	sw, err := Open(ctx, sink, "data_0.json", CompressionNone)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, r := range []map[string]any{{}, {}, {"subscription": "this"}} {
		if err := sw.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := bucket.ReadAll(ctx, "data_0.json")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var empties int
	n, err := ReadRecords(bytes.NewReader(data), func(rec map[string]any) error {
		if len(rec) == 0 {
			empties++
		}
		return nil
	})
	if err != nil || n != 3 || empties != 2 {
		t.Fatalf("ReadRecords: n=%d empties=%d err=%v\n%s", n, empties, err, data)
	}
}
