// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pm identifies the package manager of a consumer project by its
// lockfile and adapts dependency-tree paths to the manager's layout,
// including pnpm's virtual store and yarn's alternate linkers.
package pm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/pkg/names"
)

// Manager is a supported package manager.
type Manager string

const (
	Npm  Manager = "npm"
	Pnpm Manager = "pnpm"
	Yarn Manager = "yarn"
	Bun  Manager = "bun"
)

// YarnLinker is yarn's dependency layout mode.
type YarnLinker string

const (
	// YarnNodeModules is the classic node_modules layout.
	YarnNodeModules YarnLinker = "node-modules"
	// YarnPnpmLinker is the pnpm-style virtual-store layout.
	YarnPnpmLinker YarnLinker = "pnpm"
	// YarnPnP is plug-and-play; plunk cannot inject into it.
	YarnPnP YarnLinker = "pnp"
)

// Mode is a detected manager plus layout details.
type Mode struct {
	Manager    Manager
	YarnLinker YarnLinker
}

// lockfiles, in priority order within one directory.
var lockfiles = []struct {
	file    string
	manager Manager
}{
	{"pnpm-lock.yaml", Pnpm},
	{"bun.lockb", Bun},
	{"bun.lock", Bun},
	{"yarn.lock", Yarn},
	{"package-lock.json", Npm},
}

// ParseManager maps a stored manager string back to a Manager.
func ParseManager(s string) (Manager, bool) {
	switch Manager(s) {
	case Npm, Pnpm, Yarn, Bun:
		return Manager(s), true
	}
	return "", false
}

// UsesVirtualStore reports whether injected files live under a pnpm-style
// virtual store rather than the direct dependency path.
func (m Mode) UsesVirtualStore() bool {
	return m.Manager == Pnpm || (m.Manager == Yarn && m.YarnLinker == YarnPnpmLinker)
}

// Compatible returns the incompatibility error for layouts plunk cannot
// inject into, nil otherwise.
func (m Mode) Compatible() error {
	if m.Manager == Yarn && m.YarnLinker == YarnPnP {
		return errors.NewError(errors.KindIncompatiblePM,
			"Incompatible package manager mode",
			"yarn plug-and-play has no dependency directory to inject into",
			`Set nodeLinker: node-modules in .yarnrc.yml to use plunk`, nil)
	}
	return nil
}

// Detect walks upward from dir looking for a lockfile; the closest match
// wins, with the in-directory priority pnpm > bun > yarn > npm. Falls
// back to npm when nothing is found. For yarn, ancestor .yarnrc.yml and
// .pnp.cjs files classify the linker mode.
func Detect(dir string) (Mode, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Mode{}, err
	}
	for cur := abs; ; cur = filepath.Dir(cur) {
		for _, lf := range lockfiles {
			if _, err := os.Stat(filepath.Join(cur, lf.file)); err == nil {
				mode := Mode{Manager: lf.manager}
				if lf.manager == Yarn {
					mode.YarnLinker = detectYarnLinker(abs)
				}
				return mode, nil
			}
		}
		if filepath.Dir(cur) == cur {
			break
		}
	}
	return Mode{Manager: Npm}, nil
}

// yarnrc is the subset of .yarnrc.yml plunk reads.
type yarnrc struct {
	NodeLinker string `yaml:"nodeLinker"`
}

func detectYarnLinker(dir string) YarnLinker {
	for cur := dir; ; cur = filepath.Dir(cur) {
		if _, err := os.Stat(filepath.Join(cur, ".pnp.cjs")); err == nil {
			return YarnPnP
		}
		if _, err := os.Stat(filepath.Join(cur, ".pnp.js")); err == nil {
			return YarnPnP
		}
		data, err := os.ReadFile(filepath.Join(cur, ".yarnrc.yml"))
		if err == nil {
			var rc yarnrc
			if yaml.Unmarshal(data, &rc) == nil {
				switch rc.NodeLinker {
				case "pnpm":
					return YarnPnpmLinker
				case "pnp":
					return YarnPnP
				case "node-modules":
					return YarnNodeModules
				}
			}
		}
		if filepath.Dir(cur) == cur {
			break
		}
	}
	// Yarn 1 has no .yarnrc.yml and always uses node_modules.
	return YarnNodeModules
}

// ResolveTargetDir returns the directory a store entry is injected into
// for one consumer. Direct layout managers use
// <consumer>/node_modules/<name>; virtual-store layouts follow an
// existing symlink or scan <deps>/.pnpm for a matching entry, preferring
// an exact version match.
func ResolveTargetDir(consumerDir, name, version string, mode Mode, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := mode.Compatible(); err != nil {
		return "", err
	}
	direct := names.DepPath(consumerDir, name)
	if !mode.UsesVirtualStore() {
		return direct, nil
	}

	if info, err := os.Lstat(direct); err == nil && info.Mode()&os.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(direct)
		if err == nil && resolved != direct {
			return resolved, nil
		}
	}

	virtualRoot := filepath.Join(consumerDir, names.DepsDirName, ".pnpm")
	dirents, err := os.ReadDir(virtualRoot)
	if err != nil {
		logger.Warn("pm.no_virtual_store", "consumer", consumerDir, "package", name)
		return direct, nil
	}

	prefix := names.Encode(name) + "@"
	exact := names.EntryDirName(name, version)
	firstMatch := ""
	for _, d := range dirents {
		if !d.IsDir() || !strings.HasPrefix(d.Name(), prefix) {
			continue
		}
		if d.Name() == exact || strings.HasPrefix(d.Name(), exact+"_") {
			return virtualStorePath(virtualRoot, d.Name(), name), nil
		}
		if firstMatch == "" {
			firstMatch = d.Name()
		}
	}
	if firstMatch != "" {
		logger.Warn("pm.version_fallback",
			"package", name, "wanted", version, "using", firstMatch)
		return virtualStorePath(virtualRoot, firstMatch, name), nil
	}
	logger.Warn("pm.no_virtual_entry", "package", fmt.Sprintf("%s@%s", name, version))
	return direct, nil
}

func virtualStorePath(virtualRoot, entry, name string) string {
	return filepath.Join(virtualRoot, entry, names.DepsDirName, filepath.FromSlash(name))
}
