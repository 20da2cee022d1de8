// Package archive builds in-memory gzip-compressed tar archives for
// delivery to remote hosts through the bootstrap upload channel.
package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

type entry struct {
	path    string
	mode    os.FileMode
	content []byte
}

// Builder accumulates (path, mode, content) entries and compresses them
// to a single blob on demand. Entries are written in insertion order;
// adding the same path twice keeps the last write. The compressed blob
// is computed once per close and cached until Reset.
type Builder struct {
	entries []entry
	blob    []byte
}

func New() *Builder {
	return &Builder{}
}

// Add stores an in-memory entry under a relative path with an explicit
// permission mode.
func (b *Builder) Add(path string, mode os.FileMode, content []byte) error {
	if b.blob != nil {
		return errors.New("archive already finalized; call Reset first")
	}
	rel, err := relativize(path)
	if err != nil {
		return err
	}
	b.upsert(entry{path: rel, mode: mode, content: append([]byte(nil), content...)})
	return nil
}

// AddFile reads a local file and stores it under name, keeping the
// source file's own permission bits. A missing or unreadable file is a
// fatal I/O error for the whole invocation.
func (b *Builder) AddFile(name, src string) error {
	if b.blob != nil {
		return errors.New("archive already finalized; call Reset first")
	}
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "archive: stat %s", src)
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "archive: read %s", src)
	}
	rel, err := relativize(name)
	if err != nil {
		return err
	}
	b.upsert(entry{path: rel, mode: info.Mode().Perm(), content: content})
	return nil
}

func (b *Builder) upsert(e entry) {
	for i := range b.entries {
		if b.entries[i].path == e.path {
			b.entries[i] = e
			return
		}
	}
	b.entries = append(b.entries, e)
}

func (b *Builder) Len() int {
	return len(b.entries)
}

// Bytes closes the archive and returns the compressed blob. Safe to call
// repeatedly; the blob is computed once and cached until Reset.
func (b *Builder) Bytes() ([]byte, error) {
	if b.blob != nil {
		return b.blob, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range b.entries {
		hdr := &tar.Header{
			Name: e.path,
			Mode: int64(e.mode.Perm()),
			Size: int64(len(e.content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, errors.Wrapf(err, "archive: header %s", e.path)
		}
		if _, err := tw.Write(e.content); err != nil {
			return nil, errors.Wrapf(err, "archive: write %s", e.path)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, "archive: close tar")
	}
	if err := gz.Close(); err != nil {
		return nil, errors.Wrap(err, "archive: close gzip")
	}

	b.blob = buf.Bytes()
	return b.blob, nil
}

// Reset discards all entries and any finalized output so the builder can
// be reused for a fresh archive.
func (b *Builder) Reset() {
	b.entries = nil
	b.blob = nil
}

func relativize(path string) (string, error) {
	if path == "" {
		return "", errors.New("archive: empty entry path")
	}
	if filepath.IsAbs(path) {
		return "", errors.Errorf("archive: entry path must be relative: %s", path)
	}
	return filepath.ToSlash(filepath.Clean(path)), nil
}
