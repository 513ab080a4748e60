package fetcher

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
)

// IsGzip reports whether path names a gzip-compressed file.
func IsGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// Open opens a local file for reading, transparently decompressing it when
// the name ends in .gz.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	if !IsGzip(path) {
		return f, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, eris.Wrapf(err, "fetcher: gzip header %s", path)
	}
	return &gzipReadCloser{zr: zr, f: f}, nil
}

type gzipReadCloser struct {
	zr *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	return g.zr.Read(p)
}

func (g *gzipReadCloser) Close() error {
	zerr := g.zr.Close()
	ferr := g.f.Close()
	if zerr != nil {
		return eris.Wrap(zerr, "fetcher: close gzip stream")
	}
	return ferr
}

// AtomicFile is a write-only file that only appears at its final path once
// Commit succeeds. Paths ending in .gz are gzip-compressed.
type AtomicFile struct {
	path string
	tmp  *os.File
	zw   *gzip.Writer
	w    io.Writer
	done bool
}

// Create starts writing path. The parent directory is created if needed.
func Create(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "fetcher: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: create temp file for %s", path)
	}

	af := &AtomicFile{path: path, tmp: tmp, w: tmp}
	if IsGzip(path) {
		af.zw = gzip.NewWriter(tmp)
		af.w = af.zw
	}
	return af, nil
}

// Path returns the final destination path.
func (a *AtomicFile) Path() string {
	return a.path
}

func (a *AtomicFile) Write(p []byte) (int, error) {
	return a.w.Write(p)
}

// Commit flushes, closes and renames the temp file into place.
func (a *AtomicFile) Commit() error {
	if a.done {
		return eris.Errorf("fetcher: %s already closed", a.path)
	}
	a.done = true

	if a.zw != nil {
		if err := a.zw.Close(); err != nil {
			a.discard()
			return eris.Wrapf(err, "fetcher: flush gzip %s", a.path)
		}
	}
	if err := a.tmp.Close(); err != nil {
		_ = os.Remove(a.tmp.Name())
		return eris.Wrapf(err, "fetcher: close %s", a.path)
	}
	if err := os.Rename(a.tmp.Name(), a.path); err != nil {
		_ = os.Remove(a.tmp.Name())
		return eris.Wrapf(err, "fetcher: rename into %s", a.path)
	}
	return nil
}

// Abort discards everything written. It is a no-op after Commit.
func (a *AtomicFile) Abort() {
	if a.done {
		return
	}
	a.done = true
	a.discard()
}

func (a *AtomicFile) discard() {
	_ = a.tmp.Close()
	_ = os.Remove(a.tmp.Name())
}
