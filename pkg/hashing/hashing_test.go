// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hashing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, content string) FileEntry {
	t.Helper()
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return FileEntry{Rel: rel, Abs: abs}
}

func TestDirectoryDigestDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "dist/index.js", "const a=1;")
	b := writeFile(t, dir, "package.json", `{"name":"x"}`)

	h1, err := DirectoryDigest([]FileEntry{a, b}, nil)
	require.NoError(t, err)
	h2, err := DirectoryDigest([]FileEntry{b, a}, nil)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "digest must not depend on enumeration order")
	assert.True(t, strings.HasPrefix(h1, HashPrefix))
}

func TestDirectoryDigestContentSensitive(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "dist/index.js", "const a=1;")

	h1, err := DirectoryDigest([]FileEntry{a}, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(a.Abs, []byte("const a=2;"), 0o644))
	h2, err := DirectoryDigest([]FileEntry{a}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestDirectoryDigestPathSensitive(t *testing.T) {
	// The NUL + length framing must distinguish files whose concatenated
	// bytes coincide.
	d1 := t.TempDir()
	d2 := t.TempDir()

	h1, err := DirectoryDigest([]FileEntry{
		writeFile(t, d1, "a", "xy"),
		writeFile(t, d1, "b", ""),
	}, nil)
	require.NoError(t, err)

	h2, err := DirectoryDigest([]FileEntry{
		writeFile(t, d2, "a", "x"),
		writeFile(t, d2, "b", "y"),
	}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestDirectoryDigestEqualAcrossRoots(t *testing.T) {
	d1 := t.TempDir()
	d2 := t.TempDir()

	set1 := []FileEntry{writeFile(t, d1, "lib/a.js", "1"), writeFile(t, d1, "lib/b.js", "2")}
	set2 := []FileEntry{writeFile(t, d2, "lib/a.js", "1"), writeFile(t, d2, "lib/b.js", "2")}

	h1, err := DirectoryDigest(set1, nil)
	require.NoError(t, err)
	h2, err := DirectoryDigest(set2, nil)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestBuildID(t *testing.T) {
	assert.Equal(t, "deadbeef", BuildID("sha256v2:deadbeef00112233"))
}

func TestFileHashDetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	h1, err := FileHash(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))
	h2, err := FileHash(path)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestContentCacheInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	cache := NewContentCache()
	got, err := cache.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	// Same size, different content, bumped mtime: must re-read.
	require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	got, err = cache.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestContentCacheEviction(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a")
	p2 := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(p1, []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(p2, []byte("2"), 0o644))

	cache := NewContentCache()
	_, err := cache.Get(p1)
	require.NoError(t, err)
	_, err = cache.Get(p2)
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())

	cache.EvictExcept([]string{p1})
	assert.Equal(t, 1, cache.Len())
}
