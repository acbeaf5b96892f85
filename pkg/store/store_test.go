// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/pkg/names"
)

func seedEntry(t *testing.T, s *Store, name, version string, publishedAt time.Time) *Entry {
	t.Helper()
	dir := s.EntryDir(name, version)
	require.NoError(t, os.MkdirAll(names.PackageDir(dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(names.PackageDir(dir), "index.js"), []byte("x"), 0o644))
	require.NoError(t, s.WriteMeta(dir, &Meta{
		ContentHash: "sha256v2:abc",
		BuildID:     "abc",
		PublishedAt: publishedAt,
		SourcePath:  "/src/" + name,
	}))
	return &Entry{Name: name, Version: version, Dir: dir}
}

func TestGetEntry(t *testing.T) {
	s := New(t.TempDir(), nil)
	seedEntry(t, s, "@example/api-client", "1.0.0", time.Now())

	e, err := s.GetEntry("@example/api-client", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "sha256v2:abc", e.Meta.ContentHash)
	assert.Equal(t, filepath.Join(s.Root(), "@example+api-client@1.0.0"), e.Dir)
}

func TestGetEntryNotFound(t *testing.T) {
	s := New(t.TempDir(), nil)
	_, err := s.GetEntry("nope", "1.0.0")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFoundInStore))
}

func TestGetEntryCorrupt(t *testing.T) {
	s := New(t.TempDir(), nil)
	dir := s.EntryDir("lib", "1.0.0")

	// Metadata without package dir.
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, s.WriteMeta(dir, &Meta{ContentHash: "sha256v2:abc", PublishedAt: time.Now()}))
	_, err := s.GetEntry("lib", "1.0.0")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindStoreEntryCorrupt))

	// Package dir without metadata.
	require.NoError(t, os.Remove(names.MetaPath(dir)))
	require.NoError(t, os.MkdirAll(names.PackageDir(dir), 0o755))
	_, err = s.GetEntry("lib", "1.0.0")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindStoreEntryCorrupt))
}

func TestFindEntryPicksNewest(t *testing.T) {
	s := New(t.TempDir(), nil)
	seedEntry(t, s, "lib", "1.0.0", time.Now().Add(-time.Hour))
	seedEntry(t, s, "lib", "2.0.0", time.Now())
	seedEntry(t, s, "other", "9.9.9", time.Now().Add(time.Hour))

	e, err := s.FindEntry("lib")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", e.Version)
}

func TestListEntriesSkipsJunk(t *testing.T) {
	s := New(t.TempDir(), nil)
	seedEntry(t, s, "lib", "1.0.0", time.Now())

	// Unparseable directory name.
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "notanentry"), 0o755))
	// Entry directory without metadata.
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "ghost@1.0.0"), 0o755))
	// Orphan temp dir.
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "lib@1.0.0.tmp-123"), 0o755))

	entries, err := s.ListEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lib", entries[0].Name)
}

func TestRemoveEntry(t *testing.T) {
	s := New(t.TempDir(), nil)
	e := seedEntry(t, s, "lib", "1.0.0", time.Now())

	require.NoError(t, s.RemoveEntry("lib", "1.0.0"))
	_, err := os.Stat(e.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepTempDirs(t *testing.T) {
	s := New(t.TempDir(), nil)
	seedEntry(t, s, "lib", "1.0.0", time.Now())
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "lib@1.0.0.tmp-42"), 0o755))

	n, err := s.SweepTempDirs()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := s.ListEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGC(t *testing.T) {
	s := New(t.TempDir(), nil)
	seedEntry(t, s, "old-unref", "1.0.0", time.Now().Add(-time.Hour))
	seedEntry(t, s, "fresh-unref", "1.0.0", time.Now())
	seedEntry(t, s, "referenced", "1.0.0", time.Now().Add(-time.Hour))

	removed, err := s.GC(map[string]bool{"referenced@1.0.0": true}, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "old-unref", removed[0].Name)

	_, err = s.GetEntry("referenced", "1.0.0")
	assert.NoError(t, err)
	_, err = s.GetEntry("fresh-unref", "1.0.0")
	assert.NoError(t, err)
}
