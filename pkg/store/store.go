// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store manages the per-user content-addressed repository of
// published artifacts. Entries are immutable directories named
// <encoded-name>@<version> holding a package/ subtree and a metadata
// file; consistency relies on atomic rename at publish time, not locks.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/pkg/fsutil"
	"github.com/kraklabs/plunk/pkg/names"
)

// Meta is the .plunk-meta.json payload of a store entry.
type Meta struct {
	ContentHash string    `json:"content_hash"`
	BuildID     string    `json:"build_id,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	SourcePath  string    `json:"source_path"`
}

// Entry is one published (name, version) artifact.
type Entry struct {
	Name    string
	Version string
	Dir     string
	Meta    Meta
}

// PackageDir returns the directory holding the entry's packed files.
func (e *Entry) PackageDir() string { return names.PackageDir(e.Dir) }

// Store is a handle on the per-user store root.
type Store struct {
	home   string
	logger *slog.Logger
}

// Open resolves the plunk home (PLUNK_HOME > ~/.plunk) and returns a
// store handle.
func Open(logger *slog.Logger) (*Store, error) {
	home, err := names.Home()
	if err != nil {
		return nil, err
	}
	return New(home, logger), nil
}

// New returns a store rooted at an explicit home directory.
func New(home string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{home: home, logger: logger}
}

// Home returns the plunk home directory.
func (s *Store) Home() string { return s.home }

// Root returns the store directory.
func (s *Store) Root() string { return names.StoreRoot(s.home) }

// EntryDir returns the directory an entry for (name, version) lives in.
func (s *Store) EntryDir(name, version string) string {
	return names.EntryDir(s.home, name, version)
}

// ReadMeta loads the metadata of a store entry.
func (s *Store) ReadMeta(name, version string) (*Meta, error) {
	return readMetaFile(names.MetaPath(s.EntryDir(name, version)))
}

// WriteMeta writes metadata into entryDir (which may be a temp sibling
// during publish).
func (s *Store) WriteMeta(entryDir string, meta *Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(names.MetaPath(entryDir), append(data, '\n'), 0o644)
}

func readMetaFile(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetEntry returns the entry for (name, version). The entry must have
// both readable metadata and a package directory; a directory present
// without either is reported as corrupt.
func (s *Store) GetEntry(name, version string) (*Entry, error) {
	dir := s.EntryDir(name, version)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, errors.NewError(errors.KindNotFoundInStore,
			"Not found in store", fmt.Sprintf("%s@%s", name, version),
			fmt.Sprintf("Publish it first: plunk publish (in the %s source directory)", name), err)
	}
	meta, err := readMetaFile(names.MetaPath(dir))
	if err != nil {
		return nil, errors.NewError(errors.KindStoreEntryCorrupt,
			"Store entry corrupt", fmt.Sprintf("%s@%s: unreadable metadata", name, version),
			"Re-publish the package, or run plunk clean", err)
	}
	if info, err := os.Stat(names.PackageDir(dir)); err != nil || !info.IsDir() {
		return nil, errors.NewError(errors.KindStoreEntryCorrupt,
			"Store entry corrupt", fmt.Sprintf("%s@%s: package directory missing", name, version),
			"Re-publish the package, or run plunk clean", err)
	}
	return &Entry{Name: name, Version: version, Dir: dir, Meta: *meta}, nil
}

// FindEntry returns the most recently published entry for name.
func (s *Store) FindEntry(name string) (*Entry, error) {
	entries, err := s.ListEntries()
	if err != nil {
		return nil, err
	}
	var newest *Entry
	for _, e := range entries {
		if e.Name != name {
			continue
		}
		if newest == nil || e.Meta.PublishedAt.After(newest.Meta.PublishedAt) {
			newest = e
		}
	}
	if newest == nil {
		return nil, errors.NewError(errors.KindNotFoundInStore,
			"Not found in store", name,
			fmt.Sprintf("Publish it first: plunk publish (in the %s source directory)", name), nil)
	}
	return newest, nil
}

// ListEntries enumerates the store root. Directories that do not parse as
// encoded@version, and entries without readable metadata, are skipped.
func (s *Store) ListEntries() ([]*Entry, error) {
	dirents, err := os.ReadDir(s.Root())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewFsError("Cannot read store", s.Root(), err)
	}
	var entries []*Entry
	for _, d := range dirents {
		if !d.IsDir() || strings.Contains(d.Name(), ".tmp-") {
			continue
		}
		name, version, ok := names.ParseEntryDirName(d.Name())
		if !ok {
			continue
		}
		dir := filepath.Join(s.Root(), d.Name())
		meta, err := readMetaFile(names.MetaPath(dir))
		if err != nil {
			s.logger.Debug("store.skip_entry", "dir", d.Name(), "err", err)
			continue
		}
		entries = append(entries, &Entry{Name: name, Version: version, Dir: dir, Meta: *meta})
	}
	return entries, nil
}

// RemoveEntry deletes an entry directory recursively.
func (s *Store) RemoveEntry(name, version string) error {
	return fsutil.RemoveTree(s.EntryDir(name, version))
}

// SweepTempDirs removes orphaned publish temp directories
// (<entry>.tmp-<ts>) left by interrupted publishes. Returns how many were
// removed.
func (s *Store) SweepTempDirs() (int, error) {
	dirents, err := os.ReadDir(s.Root())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range dirents {
		if !d.IsDir() || !strings.Contains(d.Name(), ".tmp-") {
			continue
		}
		if err := fsutil.RemoveTree(filepath.Join(s.Root(), d.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// GC removes entries that are not referenced and were published before
// the grace window. referenced keys are encoded entry dir names. Returns
// the removed entries.
func (s *Store) GC(referenced map[string]bool, grace time.Duration) ([]*Entry, error) {
	entries, err := s.ListEntries()
	if err != nil {
		return nil, err
	}
	var removed []*Entry
	cutoff := time.Now().Add(-grace)
	for _, e := range entries {
		key := names.EntryDirName(e.Name, e.Version)
		if referenced[key] {
			continue
		}
		if e.Meta.PublishedAt.After(cutoff) {
			continue
		}
		if err := fsutil.RemoveTree(e.Dir); err != nil {
			return removed, err
		}
		s.logger.Info("store.gc", "entry", key)
		removed = append(removed, e)
	}
	return removed, nil
}
