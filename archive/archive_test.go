package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unpacked struct {
	mode    os.FileMode
	content []byte
}

func unpack(t *testing.T, blob []byte) map[string]unpacked {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(blob))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	out := make(map[string]unpacked)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = unpacked{mode: os.FileMode(hdr.Mode).Perm(), content: content}
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]unpacked
	}{
		{
			name: "single executable script",
			entries: map[string]unpacked{
				"app.sh": {mode: 0o700, content: []byte("#!/bin/sh\necho hi\n")},
			},
		},
		{
			name: "multiple entries with mixed modes",
			entries: map[string]unpacked{
				"bin/run":    {mode: 0o755, content: []byte("binary")},
				"etc/conf":   {mode: 0o644, content: []byte("key=value\n")},
				"data/empty": {mode: 0o600, content: []byte{}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			for path, e := range tt.entries {
				require.NoError(t, b.Add(path, e.mode, e.content))
			}

			blob, err := b.Bytes()
			require.NoError(t, err)

			got := unpack(t, blob)
			require.Len(t, got, len(tt.entries))
			for path, want := range tt.entries {
				assert.Equal(t, want.mode, got[path].mode, path)
				assert.Equal(t, want.content, got[path].content, path)
			}
		})
	}
}

func TestBytesIsCached(t *testing.T) {
	b := New()
	require.NoError(t, b.Add("a.txt", 0o644, []byte("aaa")))

	first, err := b.Bytes()
	require.NoError(t, err)
	second, err := b.Bytes()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAddAfterFinalizeFails(t *testing.T) {
	b := New()
	require.NoError(t, b.Add("a.txt", 0o644, []byte("aaa")))
	_, err := b.Bytes()
	require.NoError(t, err)

	assert.Error(t, b.Add("b.txt", 0o644, []byte("bbb")))
}

func TestLastWriteWins(t *testing.T) {
	b := New()
	require.NoError(t, b.Add("conf", 0o644, []byte("old")))
	require.NoError(t, b.Add("conf", 0o600, []byte("new")))

	blob, err := b.Bytes()
	require.NoError(t, err)

	got := unpack(t, blob)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("new"), got["conf"].content)
	assert.Equal(t, os.FileMode(0o600), got["conf"].mode)
}

func TestReset(t *testing.T) {
	b := New()
	require.NoError(t, b.Add("a.txt", 0o644, []byte("aaa")))
	_, err := b.Bytes()
	require.NoError(t, err)

	b.Reset()
	assert.Equal(t, 0, b.Len())

	require.NoError(t, b.Add("b.txt", 0o644, []byte("bbb")))
	blob, err := b.Bytes()
	require.NoError(t, err)

	got := unpack(t, blob)
	require.Len(t, got, 1)
	assert.Contains(t, got, "b.txt")
}

func TestAddFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o755))

	b := New()
	require.NoError(t, b.AddFile("script.sh", src))

	blob, err := b.Bytes()
	require.NoError(t, err)

	got := unpack(t, blob)
	assert.Equal(t, os.FileMode(0o755), got["script.sh"].mode)
	assert.Equal(t, []byte("#!/bin/sh\n"), got["script.sh"].content)
}

func TestAddFileMissingIsFatal(t *testing.T) {
	b := New()
	err := b.AddFile("nope", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestAbsolutePathRejected(t *testing.T) {
	b := New()
	assert.Error(t, b.Add("/etc/passwd", 0o644, []byte("x")))
}
