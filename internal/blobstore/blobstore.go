// Package blobstore stages materialised revision text to a scratch
// directory so the merger and emitter, which run long after a
// revision's bytes were produced, don't need to hold every blob in
// memory at once. Staging and random-access lookup mirror
// getBlobIDPath/writeBlob in the ancestor codebase's driver and
// export_blob/blobfile's directory fanout.
package blobstore

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// fanout is the widest a staging directory level is allowed to grow;
// chosen to match the ancestor's own blobfile fanout, large enough
// that ext4 and friends never see a slow directory.
const fanout = 256

// Store is a scratch directory of staged blobs, keyed by a
// monotonically increasing serial assigned at Stage time. It is safe
// for concurrent use: §4.3's worker pool stages blobs from multiple
// masters at once.
type Store struct {
	root   string
	serial int64

	mu         sync.Mutex
	removed    map[int64]bool
	compressed map[int64]bool
}

// New creates a staging directory under base (honouring TMPDIR the
// way the ancestor's export_init does) named like
// "cvs-fast-export-XXXXXXXX".
func New(base string) (*Store, error) {
	if base == "" {
		base = os.TempDir()
	}
	dir, err := os.MkdirTemp(base, "cvs-fast-export-")
	if err != nil {
		return nil, fmt.Errorf("blobstore: staging dir creation failed: %w", err)
	}
	return &Store{root: dir, removed: map[int64]bool{}, compressed: map[int64]bool{}}, nil
}

// path places serial under a two-level base-fanout directory tree:
// <root>/<serial/fanout² in hex>/<(serial/fanout) mod fanout in hex>/=<serial mod fanout in hex>,
// so each directory holds at most fanout entries while serials stay
// below fanout³.
func (s *Store) path(serial int64) (dir, file string) {
	dir = filepath.Join(s.root, fmt.Sprintf("%x", serial/(fanout*fanout)), fmt.Sprintf("%x", (serial/fanout)%fanout))
	file = filepath.Join(dir, fmt.Sprintf("=%x", serial%fanout))
	return dir, file
}

// Stage writes data to a freshly assigned serial and returns it. The
// serial is later the blob's fast-import mark candidate once the
// emitter decides the blob is actually referenced. compress requests
// gzip staging for this one blob - callers decide per revision, e.g.
// by sniffing materialised bytes with h2non/filetype, the Go analogue
// of the ancestor's optional ZLIB build applied selectively rather
// than store-wide.
func (s *Store) Stage(data []byte, compress bool) (int64, error) {
	serial := atomic.AddInt64(&s.serial, 1)
	dir, file := s.path(serial)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return 0, fmt.Errorf("blobstore: mkdir %s: %w", dir, err)
	}
	f, err := os.Create(file)
	if err != nil {
		return 0, fmt.Errorf("blobstore: create %s: %w", file, err)
	}
	defer f.Close()

	if compress {
		gz := gzip.NewWriter(f)
		if _, err := gz.Write(data); err != nil {
			return 0, fmt.Errorf("blobstore: write %s: %w", file, err)
		}
		if err := gz.Close(); err != nil {
			return 0, fmt.Errorf("blobstore: close %s: %w", file, err)
		}
	} else if _, err := f.Write(data); err != nil {
		return 0, fmt.Errorf("blobstore: write %s: %w", file, err)
	}

	s.mu.Lock()
	s.compressed[serial] = compress
	s.mu.Unlock()
	return serial, nil
}

// Read loads a staged blob's full content back into memory, for the
// emitter's "data <len>\n<bytes>" line.
func (s *Store) Read(serial int64) ([]byte, error) {
	_, file := s.path(serial)
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", file, err)
	}
	defer f.Close()

	s.mu.Lock()
	compressed := s.compressed[serial]
	s.mu.Unlock()

	if !compressed {
		return io.ReadAll(f)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("blobstore: gzip open %s: %w", file, err)
	}
	defer gz.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, gz); err != nil {
		return nil, fmt.Errorf("blobstore: gzip read %s: %w", file, err)
	}
	return buf.Bytes(), nil
}

// Release removes one blob's staging file once the emitter has
// written it to the output stream, the Go analogue of export_blob's
// unlink-after-emit discipline; double release is a no-op.
func (s *Store) Release(serial int64) error {
	s.mu.Lock()
	if s.removed[serial] {
		s.mu.Unlock()
		return nil
	}
	s.removed[serial] = true
	s.mu.Unlock()

	_, file := s.path(serial)
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: remove %s: %w", file, err)
	}
	return nil
}

// Close removes the entire staging directory, mirroring export_wrap's
// "rm -r blobdir" cleanup. Safe to call even if some blobs were never
// released (an aborted run).
func (s *Store) Close() error {
	return os.RemoveAll(s.root)
}
