// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package fsutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"v":1}`), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(data))

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := write(t, dir, "src/a.js", "const a=1;")
	dst := filepath.Join(dir, "out", "a.js")

	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "const a=1;", string(data))
}

func TestCopyFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	src := write(t, dir, "src/a.js", "new")
	dst := write(t, dir, "out/a.js", "old-and-longer")

	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestSyncDirInitialAndIncremental(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	write(t, src, "dist/index.js", "const a=1;")
	write(t, src, "package.json", `{"name":"x"}`)

	res, err := SyncDir(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Copied)
	assert.Equal(t, 0, res.Removed)

	// Unchanged source: nothing to do.
	res, err = SyncDir(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Copied)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, res.Removed)
	assert.False(t, res.Changed())

	// One mutation: exactly one copy.
	write(t, src, "dist/index.js", "const a=2;")
	res, err = SyncDir(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Copied)
	assert.Equal(t, 1, res.Skipped)
}

func TestSyncDirSameSizeDifferentContent(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	write(t, src, "a.js", "aaaa")
	write(t, dst, "a.js", "bbbb")

	res, err := SyncDir(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Copied)

	data, err := os.ReadFile(filepath.Join(dst, "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "aaaa", string(data))
}

func TestSyncDirRemovesOrphans(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	write(t, src, "dist/keep.js", "k")
	write(t, dst, "dist/keep.js", "k")
	write(t, dst, "dist/remove-me.js", "r")

	res, err := SyncDir(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)

	_, err = os.Stat(filepath.Join(dst, "dist", "remove-me.js"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "dist", "keep.js"))
	assert.NoError(t, err)
}

func TestMoveDirSameVolume(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a")
	write(t, src, "f", "data")

	dst := filepath.Join(root, "b")
	require.NoError(t, MoveDir(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestDryRunLeavesDiskUntouched(t *testing.T) {
	SetDryRun(true)
	defer SetDryRun(false)

	root := t.TempDir()
	src := filepath.Join(root, "src")
	write(t, src, "a.js", "x")

	require.NoError(t, CopyFile(filepath.Join(src, "a.js"), filepath.Join(root, "dst", "a.js")))
	_, err := os.Stat(filepath.Join(root, "dst"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, WriteFileAtomic(filepath.Join(root, "f.json"), []byte("{}"), 0o644))
	_, err = os.Stat(filepath.Join(root, "f.json"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, RemoveTree(src))
	_, err = os.Stat(src)
	assert.NoError(t, err)
}
