// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package publish

import (
	"os"
	"path/filepath"
	"sort"
)

var discoverSkipDirs = map[string]bool{
	".git": true, "node_modules": true, ".plunk": true,
	"dist": true, "build": true, "coverage": true,
}

// DiscoverPackages finds directories under root holding a package.json,
// for publish --recursive. The root itself is included when it has one.
func DiscoverPackages(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && discoverSkipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if _, err := os.Stat(filepath.Join(path, "package.json")); err == nil {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)
	return dirs, nil
}
