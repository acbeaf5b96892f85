// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package packlist resolves which files a publish ships, reproducing
// package-manager pack semantics without invoking an external tool: the
// manifest's files list (literal file, literal directory, or glob), or —
// absent a files list — everything under the pack root minus a default
// ignore set and any .npmignore rules. package.json and common top-level
// docs are always included.
package packlist

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/pkg/hashing"
	"github.com/kraklabs/plunk/pkg/manifest"
	"github.com/kraklabs/plunk/pkg/names"
)

// alwaysSkipDirs are never walked, files list or not.
var alwaysSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// defaultIgnoreDirs are excluded when no files list is declared.
var defaultIgnoreDirs = map[string]bool{
	".svn": true, ".hg": true, "CVS": true,
	".idea": true, ".vscode": true, ".github": true,
	"test": true, "tests": true, "__tests__": true,
	"coverage": true, ".nyc_output": true,
	names.StateDirName: true,
}

// defaultIgnoreFiles are excluded when no files list is declared.
var defaultIgnoreFiles = map[string]bool{
	".gitignore": true, ".npmignore": true, ".npmrc": true,
	".editorconfig": true, ".babelrc": true,
	"package-lock.json": true, "yarn.lock": true,
	"pnpm-lock.yaml": true, "bun.lockb": true, "bun.lock": true,
	".DS_Store": true, "Thumbs.db": true,
}

// defaultIgnorePrefixes catch dotfile config families.
var defaultIgnorePrefixes = []string{".eslintrc", ".prettierrc", "jest.config."}

// Resolve computes the pack list for m. Returned entries carry
// slash-separated paths relative to the pack root and are sorted; the
// list is never empty on success (NoPublishableFiles otherwise).
func Resolve(m *manifest.Manifest, logger *slog.Logger) ([]hashing.FileEntry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root := m.PackRoot()
	if _, err := os.Stat(root); err != nil {
		return nil, errors.NewError(errors.KindManifestFieldMissing,
			"Pack directory missing", root,
			"Check publishConfig.directory in package.json", err)
	}

	seen := make(map[string]hashing.FileEntry)
	add := func(rel, abs string) {
		rel = filepath.ToSlash(rel)
		if _, ok := seen[rel]; !ok {
			seen[rel] = hashing.FileEntry{Rel: rel, Abs: abs}
		}
	}

	if m.HasFilesList() {
		candidates, err := walkFiles(root, nil)
		if err != nil {
			return nil, err
		}
		for _, pattern := range m.Files {
			pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
			if pattern == "" {
				continue
			}
			abs := filepath.Join(root, filepath.FromSlash(pattern))
			if info, err := os.Stat(abs); err == nil {
				if info.IsDir() {
					sub, err := walkFiles(abs, nil)
					if err != nil {
						return nil, err
					}
					for _, rel := range sub {
						add(pattern+"/"+rel, filepath.Join(abs, filepath.FromSlash(rel)))
					}
				} else {
					add(pattern, abs)
				}
				continue
			}
			matched := false
			for _, rel := range candidates {
				if matchGlob(pattern, rel) {
					add(rel, filepath.Join(root, filepath.FromSlash(rel)))
					matched = true
				}
			}
			if !matched {
				logger.Warn("packlist.pattern_no_match", "pattern", pattern)
			}
		}
	} else {
		rules := parseIgnoreFile(filepath.Join(root, ".npmignore"))
		all, err := walkFiles(root, defaultIgnoreDirs)
		if err != nil {
			return nil, err
		}
		for _, rel := range all {
			if defaultIgnored(rel) {
				continue
			}
			if rules.ignored(rel) {
				continue
			}
			add(rel, filepath.Join(root, filepath.FromSlash(rel)))
		}
	}

	// The manifest and top-level docs always ship.
	add(manifest.FileName, filepath.Join(m.Dir(), manifest.FileName))
	addDocs(root, add)

	entries := make([]hashing.FileEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Rel < entries[j].Rel })

	if len(entries) <= 1 {
		// Only the manifest itself: nothing to publish.
		if _, onlyManifest := seen[manifest.FileName]; onlyManifest && len(entries) == 1 {
			return nil, errors.NewError(errors.KindNoPublishableFiles,
				"No publishable files", m.Name,
				"Check the files field in package.json and build the package first", nil)
		}
	}
	if len(entries) == 0 {
		return nil, errors.NewError(errors.KindNoPublishableFiles,
			"No publishable files", m.Name,
			"Check the files field in package.json and build the package first", nil)
	}
	return entries, nil
}

// addDocs includes README*, LICENSE*/LICENCE* and CHANGELOG.md from the
// pack root when present.
func addDocs(root string, add func(rel, abs string)) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		name := d.Name()
		upper := strings.ToUpper(name)
		if strings.HasPrefix(upper, "README") ||
			strings.HasPrefix(upper, "LICENSE") ||
			strings.HasPrefix(upper, "LICENCE") ||
			upper == "CHANGELOG.MD" {
			add(name, filepath.Join(root, name))
		}
	}
}

func defaultIgnored(rel string) bool {
	base := rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		base = rel[i+1:]
	}
	if defaultIgnoreFiles[base] {
		return true
	}
	for _, prefix := range defaultIgnorePrefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}

// walkFiles lists regular files under root as slash-relative paths,
// skipping the unconditional dirs plus extraSkip.
func walkFiles(root string, extraSkip map[string]bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (alwaysSkipDirs[name] || extraSkip[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
